// Package mock is a scripted llm.Provider for tests and offline demos.
package mock

import (
	"context"
	"sync"
	"time"

	"loom/internal/llm"
)

// Provider replays one script per Stream call, in order. Once the scripts
// run out the last one repeats.
type Provider struct {
	Turns [][]llm.Event
	Delay time.Duration

	mu       sync.Mutex
	requests []llm.Request
}

// Requests returns copies of the requests seen so far.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

func (p *Provider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	p.mu.Lock()
	turn := len(p.requests)
	snapshot := *req
	snapshot.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, snapshot)
	p.mu.Unlock()

	var script []llm.Event
	if n := len(p.Turns); n > 0 {
		script = p.Turns[min(turn, n-1)]
	}

	out := make(chan llm.Event, 1)
	go func() {
		defer close(out)
		for _, ev := range script {
			if p.Delay > 0 {
				if err := llm.Sleep(ctx, p.Delay); err != nil {
					llm.SendTerminal(out, llm.Aborted(err))
					return
				}
			}
			if err := llm.Send(ctx, out, ev); err != nil {
				llm.SendTerminal(out, llm.Aborted(err))
				return
			}
		}
	}()
	return out, nil
}

// Text is a complete turn that answers with text.
func Text(text string) []llm.Event {
	return []llm.Event{
		{Type: llm.EventStart},
		{Type: llm.EventTextDelta, TextDelta: text},
		{Type: llm.EventDone, Done: &llm.Done{Reason: llm.StopReasonStop}},
	}
}

// ToolUse is a complete turn that calls one tool with raw JSON arguments.
func ToolUse(id, name, args string) []llm.Event {
	call := &llm.ToolCall{ID: id, Name: name, Arguments: []byte(args)}
	return []llm.Event{
		{Type: llm.EventStart},
		{Type: llm.EventToolCallStart, ToolCall: &llm.ToolCall{ID: id, Name: name}},
		{Type: llm.EventToolCallEnd, ToolCall: call},
		{Type: llm.EventDone, Done: &llm.Done{Reason: llm.StopReasonToolUse}},
	}
}
