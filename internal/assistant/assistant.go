// Package assistant runs the conversation loop between the user, the model
// and the Tool-UI tools.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"loom/internal/llm"
	"loom/internal/logx"
	"loom/internal/tools"
)

const defaultMaxTurns = 24

const (
	maxToolResultContentLen = 10_000
	toolResultHeadLen       = 4_000
	toolResultTailLen       = 4_000
	toolResultTruncateMark  = "\n...[truncated]...\n"
)

var (
	// ErrProviderRequired indicates a missing model provider.
	ErrProviderRequired = errors.New("provider is required")
	// ErrBusy indicates a Send while a previous one is still running.
	ErrBusy = errors.New("assistant is already running")
	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMaxTurnsExceeded indicates the loop hit its turn limit.
	ErrMaxTurnsExceeded = errors.New("max turns exceeded")
)

// State is the coarse runtime status shown in the status bar.
type State string

const (
	StateIdle          State = "idle"
	StateStreaming     State = "streaming"
	StateToolExecuting State = "tool_executing"
)

// Config configures an Assistant.
type Config struct {
	Provider  llm.Provider
	Tools     *tools.Registry
	Model     string
	System    string
	MaxTokens int
	MaxTurns  int
	Retry     llm.RetryPolicy
}

// Assistant owns the conversation history and runs one Send at a time.
type Assistant struct {
	provider  llm.Provider
	tools     *tools.Registry
	model     string
	system    string
	maxTokens int
	maxTurns  int
	retry     llm.RetryPolicy

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	history []llm.Message
	usage   llm.Usage
}

func New(cfg Config) (*Assistant, error) {
	if cfg.Provider == nil {
		return nil, ErrProviderRequired
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Assistant{
		provider:  cfg.Provider,
		tools:     cfg.Tools,
		model:     cfg.Model,
		system:    cfg.System,
		maxTokens: cfg.MaxTokens,
		maxTurns:  maxTurns,
		retry:     cfg.Retry,
		state:     StateIdle,
	}, nil
}

// Send appends a user message and streams the turns it triggers. The channel
// closes once the model stops asking for tools, the turn limit is hit, or
// ctx ends.
func (a *Assistant) Send(ctx context.Context, text string) (<-chan llm.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	req := a.request(append(cloneMessages(a.history), llm.UserText(text)))
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = StateStreaming
	a.mu.Unlock()

	out := make(chan llm.Event, 1)
	forwardedOut := make(chan llm.Event)
	forwardDone := make(chan struct{})

	go func() {
		defer close(forwardDone)
		forwardEvents(forwardedOut, out)
	}()

	go func() {
		var exec func(context.Context, llm.ToolCall) (llm.Message, error)
		if a.tools != nil {
			exec = a.executeToolCall
		}
		terminalForwarded, err := runLoop(runCtx, a.provider, req, a.maxTurns, forwardedOut, loopHooks{
			executeToolCall: exec,
			onUsage:         a.addUsage,
		})
		if err != nil {
			reason := llm.StopReasonError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = llm.StopReasonAborted
			} else {
				logx.Ctx(runCtx).Warn("assistant turn failed", "err", err)
			}
			if !terminalForwarded {
				forwardedOut <- llm.Event{
					Type: llm.EventError,
					Done: &llm.Done{Reason: reason},
					Err:  err,
				}
			}
		}
		close(forwardedOut)
		<-forwardDone
		close(out)
		cancel()
		a.finish(req.Messages)
	}()

	return out, nil
}

// Cancel stops the running Send, if any.
func (a *Assistant) Cancel() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// History returns a copy of the committed conversation.
func (a *Assistant) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneMessages(a.history)
}

// Restore replaces the conversation, typically from a stored session.
func (a *Assistant) Restore(history []llm.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return ErrBusy
	}
	a.history = sanitizeHistory(cloneMessages(history))
	return nil
}

// Usage is the token usage summed over every finished turn.
func (a *Assistant) Usage() llm.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

func (a *Assistant) request(messages []llm.Message) *llm.Request {
	req := &llm.Request{
		Model:     a.model,
		System:    a.system,
		Messages:  messages,
		MaxTokens: a.maxTokens,
		Retry:     a.retry,
	}
	if a.tools != nil {
		req.Tools = a.tools.Specs()
	}
	return req
}

func (a *Assistant) finish(messages []llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = sanitizeHistory(messages)
	a.cancel = nil
	a.state = StateIdle
}

func (a *Assistant) setState(next State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = next
}

func (a *Assistant) addUsage(u llm.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage.Add(u)
}

func (a *Assistant) executeToolCall(ctx context.Context, call llm.ToolCall) (llm.Message, error) {
	a.setState(StateToolExecuting)
	defer a.setState(StateStreaming)

	ctx = llm.WithToolCall(ctx, call)
	log := logx.WithToolCall(logx.Ctx(ctx), call.ID)
	ctx = logx.ContextWithLogger(ctx, log)

	result, err := a.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return llm.Message{}, err
	}

	content := result.Content
	if err != nil {
		if content == "" {
			content = fmt.Sprintf("error: %v", err)
		} else {
			content = fmt.Sprintf("%s\n\nerror: %v", content, err)
		}
	}
	if content == "" {
		content = "ok"
	}

	return llm.Message{
		Role: llm.RoleTool,
		ToolResult: &llm.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    truncateToolResultContent(content),
			IsError:    err != nil,
		},
	}, nil
}

func truncateToolResultContent(content string) string {
	if len(content) <= maxToolResultContentLen {
		return content
	}
	head := toolResultHeadLen
	for head > 0 && !utf8.RuneStart(content[head]) {
		head--
	}
	tail := len(content) - toolResultTailLen
	for tail < len(content) && !utf8.RuneStart(content[tail]) {
		tail++
	}
	return content[:head] + toolResultTruncateMark + content[tail:]
}

// sanitizeHistory drops an assistant tool-use message whose results never
// all arrived, together with the partial results after it. The provider
// rejects a tool_use without a matching tool_result.
func sanitizeHistory(messages []llm.Message) []llm.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != llm.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		answered := make(map[string]bool, len(msg.ToolCalls))
		for _, next := range messages[i+1:] {
			if next.ToolResult != nil {
				answered[next.ToolResult.ToolCallID] = true
			}
		}
		for _, call := range msg.ToolCalls {
			if !answered[call.ID] {
				return messages[:i]
			}
		}
		return messages
	}
	return messages
}

func cloneMessages(messages []llm.Message) []llm.Message {
	if len(messages) == 0 {
		return nil
	}
	cloned := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		cloned = append(cloned, cloneMessage(msg))
	}
	return cloned
}

func cloneMessage(msg llm.Message) llm.Message {
	out := llm.Message{Role: msg.Role, Text: msg.Text}
	if len(msg.ToolCalls) > 0 {
		out.ToolCalls = make([]llm.ToolCall, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, cloneToolCall(call))
		}
	}
	if msg.ToolResult != nil {
		result := *msg.ToolResult
		out.ToolResult = &result
	}
	return out
}
