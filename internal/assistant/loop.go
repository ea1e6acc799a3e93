package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"loom/internal/llm"
)

const forwardFlushWait = 50 * time.Millisecond

type loopHooks struct {
	executeToolCall func(ctx context.Context, call llm.ToolCall) (llm.Message, error)
	onUsage         func(llm.Usage)
}

// runLoop streams turns into req.Messages until the model stops asking for
// tools. terminalForwarded reports whether a terminal event already reached
// out.
func runLoop(
	ctx context.Context,
	provider llm.Provider,
	req *llm.Request,
	maxTurns int,
	out chan<- llm.Event,
	hooks loopHooks,
) (terminalForwarded bool, err error) {
	if maxTurns <= 0 {
		maxTurns = 1
	}

	for turn := 0; turn < maxTurns; turn++ {
		stream, err := provider.Stream(ctx, req)
		if err != nil {
			return false, err
		}

		terminal, hasTerminal, reply, err := forwardProviderEvents(ctx, stream, out)
		if err != nil {
			return false, err
		}
		if !hasTerminal {
			return false, errors.New("provider stream ended without terminal event")
		}
		if reply != nil {
			req.Messages = append(req.Messages, *reply)
		}
		if terminal.Done != nil && hooks.onUsage != nil {
			hooks.onUsage(terminal.Done.Usage)
		}
		if terminal.Type == llm.EventError {
			return true, terminal.Err
		}
		if terminal.Done == nil || terminal.Done.Reason != llm.StopReasonToolUse {
			return true, nil
		}
		if hooks.executeToolCall == nil || reply == nil || len(reply.ToolCalls) == 0 {
			return true, nil
		}

		for _, call := range reply.ToolCalls {
			result, err := hooks.executeToolCall(ctx, cloneToolCall(call))
			if err != nil {
				return false, err
			}
			req.Messages = append(req.Messages, result)
			if result.ToolResult == nil {
				continue
			}
			toolResult := *result.ToolResult
			if err := llm.Send(ctx, out, llm.Event{Type: llm.EventToolResult, ToolResult: &toolResult}); err != nil {
				return false, err
			}
		}
	}

	return false, ErrMaxTurnsExceeded
}

func forwardProviderEvents(
	ctx context.Context,
	stream <-chan llm.Event,
	out chan<- llm.Event,
) (terminal llm.Event, hasTerminal bool, reply *llm.Message, err error) {
	acc := newReplyAccumulator()

	for {
		select {
		case <-ctx.Done():
			return llm.Event{}, false, nil, ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return llm.Event{}, false, nil, nil
			}
			if err := llm.Send(ctx, out, ev); err != nil {
				return llm.Event{}, false, nil, err
			}
			acc.consume(ev)
			if ev.Type == llm.EventDone || ev.Type == llm.EventError {
				return ev, true, acc.message(), nil
			}
		}
	}
}

// forwardEvents decouples the loop from a slow or departed consumer. On
// close it flushes what is queued only while out keeps accepting.
func forwardEvents(in <-chan llm.Event, out chan<- llm.Event) {
	queue := make([]llm.Event, 0, 8)

	for {
		var next llm.Event
		var outCh chan<- llm.Event
		if len(queue) > 0 {
			next = queue[0]
			outCh = out
		}

		select {
		case ev, ok := <-in:
			if !ok {
				for len(queue) > 0 {
					timer := time.NewTimer(forwardFlushWait)
					select {
					case out <- queue[0]:
						queue = queue[1:]
						timer.Stop()
					case <-timer.C:
						return
					}
				}
				return
			}
			queue = append(queue, ev)
		case outCh <- next:
			queue = queue[1:]
		}
	}
}

type replyAccumulator struct {
	text  strings.Builder
	order []string
	calls map[string]llm.ToolCall
}

func newReplyAccumulator() *replyAccumulator {
	return &replyAccumulator{calls: make(map[string]llm.ToolCall)}
}

func (a *replyAccumulator) consume(ev llm.Event) {
	switch ev.Type {
	case llm.EventTextDelta:
		a.text.WriteString(ev.TextDelta)
	case llm.EventToolCallStart, llm.EventToolCallEnd:
		if ev.ToolCall == nil {
			return
		}
		if _, seen := a.calls[ev.ToolCall.ID]; !seen {
			a.order = append(a.order, ev.ToolCall.ID)
		}
		a.calls[ev.ToolCall.ID] = cloneToolCall(*ev.ToolCall)
	}
}

func (a *replyAccumulator) message() *llm.Message {
	if a.text.Len() == 0 && len(a.order) == 0 {
		return nil
	}
	msg := llm.Message{Role: llm.RoleAssistant, Text: a.text.String()}
	for _, id := range a.order {
		msg.ToolCalls = append(msg.ToolCalls, a.calls[id])
	}
	return &msg
}

func cloneToolCall(call llm.ToolCall) llm.ToolCall {
	cloned := call
	cloned.Arguments = append(json.RawMessage(nil), call.Arguments...)
	return cloned
}
