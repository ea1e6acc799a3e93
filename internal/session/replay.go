package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"loom/internal/llm"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

// History rebuilds the model conversation from a transcript. Surface, action
// and receipt entries are UI state and do not appear in it.
func History(entries []Entry) []llm.Message {
	var out []llm.Message
	for _, e := range entries {
		switch e.Type {
		case TypeUser:
			out = append(out, llm.UserText(e.Content))
		case TypeAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Text: e.Content})
		case TypeToolCall:
			if n := len(out); n > 0 && out[n-1].Role == llm.RoleAssistant {
				out[n-1].ToolCalls = append(out[n-1].ToolCalls, llm.ToolCall{
					ID:        e.ToolCallID,
					Name:      e.Name,
					Arguments: append(json.RawMessage(nil), e.Params...),
				})
			}
		case TypeToolResult:
			out = append(out, llm.Message{
				Role: llm.RoleTool,
				ToolResult: &llm.ToolResult{
					ToolCallID: e.ToolCallID,
					ToolName:   e.Name,
					Content:    e.Content,
					IsError:    e.IsError,
				},
			})
		}
	}
	return out
}

// ExpiredSummary is the receipt summary of an approval left undecided when
// its session ended.
const ExpiredSummary = "Not decided before the session ended"

// Replay re-adds the transcript's surfaces to host and re-attaches their
// receipts. Approvals still undecided are closed with a cancelled receipt.
// Entries that no longer validate are skipped and reported together.
func Replay(ctx context.Context, entries []Entry, host *surface.Host) error {
	ctx = context.WithValue(ctx, replayKey{}, true)
	var errs []error
	for _, e := range entries {
		switch e.Type {
		case TypeSurface:
			if _, err := host.Add(ctx, e.Payload); err != nil {
				errs = append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
			}
		case TypeReceipt:
			var r schema.Receipt
			if err := json.Unmarshal(e.Data, &r); err != nil {
				errs = append(errs, fmt.Errorf("entry %s: decode receipt: %w", e.ID, err))
				continue
			}
			if err := host.AttachReceipt(ctx, e.SurfaceID, r); err != nil {
				errs = append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
			}
		}
	}
	if _, err := host.ExpirePending(ctx, ExpiredSummary); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type replayKey struct{}

// replaying reports whether ctx belongs to a Replay. A Recorder skips those
// calls so a resumed transcript is not written twice.
func replaying(ctx context.Context) bool {
	on, _ := ctx.Value(replayKey{}).(bool)
	return on
}
