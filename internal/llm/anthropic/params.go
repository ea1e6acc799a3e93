package anthropic

import (
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"loom/internal/llm"
)

const defaultMaxTokens = 4096

func stopReason(reason string) (llm.StopReason, error) {
	switch reason {
	case "end_turn", "stop_sequence", "pause_turn":
		return llm.StopReasonStop, nil
	case "max_tokens":
		return llm.StopReasonLength, nil
	case "tool_use":
		return llm.StopReasonToolUse, nil
	case "refusal":
		return llm.StopReasonError, nil
	default:
		return "", fmt.Errorf("unhandled stop reason %q", reason)
	}
}

func toParams(req *llm.Request) (sdk.MessageNewParams, error) {
	if req == nil {
		return sdk.MessageNewParams{}, fmt.Errorf("%w: request is nil", llm.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Model) == "" {
		return sdk.MessageNewParams{}, fmt.Errorf("%w: model is required", llm.ErrInvalidRequest)
	}
	messages, err := toMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	for _, tool := range req.Tools {
		s, err := llm.DecodeObjectSchema(tool.Schema)
		if err != nil {
			return sdk.MessageNewParams{}, fmt.Errorf("tool %q: %w", tool.Name, err)
		}
		param := sdk.ToolParam{
			Name:        tool.Name,
			InputSchema: sdk.ToolInputSchemaParam{Properties: s.Properties, Required: s.Required},
		}
		if desc := strings.TrimSpace(tool.Description); desc != "" {
			param.Description = sdk.String(desc)
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParam{OfTool: &param})
	}
	return params, nil
}

// toMessages maps the transcript. Consecutive tool results collapse into
// one user message, as the API requires.
func toMessages(messages []llm.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(messages))
	var results []sdk.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			out = append(out, sdk.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		if msg.Role != llm.RoleTool {
			flush()
		}
		switch msg.Role {
		case llm.RoleUser:
			if msg.Text != "" {
				out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(msg.Text)))
			}
		case llm.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if msg.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				input, err := llm.DecodeObject(call.Arguments)
				if err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case llm.RoleTool:
			tr := msg.ToolResult
			if tr == nil {
				continue
			}
			if strings.TrimSpace(tr.ToolCallID) == "" {
				return nil, fmt.Errorf("%w: tool result missing tool_call_id", llm.ErrInvalidRequest)
			}
			results = append(results, sdk.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		default:
			return nil, fmt.Errorf("%w: unsupported role %q", llm.ErrInvalidRequest, msg.Role)
		}
	}
	flush()
	return out, nil
}
