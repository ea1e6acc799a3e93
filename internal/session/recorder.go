package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"loom/internal/llm"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

var ErrRecorderStoreRequired = errors.New("session recorder store is required")

// Recorder appends a live conversation to a transcript. It consumes the
// assistant's event stream and is the surface host's journal.
type Recorder struct {
	store     *Store
	sessionID string
	now       func() time.Time

	mu       sync.Mutex
	nextID   int
	parentID string
	text     strings.Builder
	calls    []llm.ToolCall
	usage    *llm.Usage
}

var _ surface.Journal = (*Recorder)(nil)

// OpenRecorder continues an existing transcript or starts a new one.
func OpenRecorder(ctx context.Context, store *Store, sessionID string) (*Recorder, error) {
	if store == nil {
		return nil, ErrRecorderStoreRequired
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, ErrIDRequired
	}
	r := &Recorder{store: store, sessionID: id, now: time.Now, nextID: 1}

	entries, err := store.Load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return r, nil
	case err != nil:
		return nil, err
	}
	if n := len(entries); n > 0 {
		r.nextID = n + 1
		r.parentID = entries[n-1].ID
	}
	return r, nil
}

func (r *Recorder) SessionID() string { return r.sessionID }

// RecordMeta writes a metadata entry such as the model in use.
func (r *Recorder) RecordMeta(ctx context.Context, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, Entry{Type: TypeMeta, Data: raw})
}

func (r *Recorder) RecordUser(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, Entry{Type: TypeUser, Content: text})
}

// RecordEvent folds one assistant stream event into the transcript. Text and
// tool calls are buffered until the turn's terminal event.
func (r *Recorder) RecordEvent(ctx context.Context, ev llm.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case llm.EventTextDelta:
		r.text.WriteString(ev.TextDelta)
	case llm.EventToolCallEnd:
		if ev.ToolCall != nil {
			call := *ev.ToolCall
			call.Arguments = append(json.RawMessage(nil), call.Arguments...)
			r.calls = append(r.calls, call)
		}
	case llm.EventUsage:
		if ev.Usage != nil {
			u := *ev.Usage
			r.usage = &u
		}
	case llm.EventDone, llm.EventError:
		return r.flushLocked(ctx)
	case llm.EventToolResult:
		if ev.ToolResult == nil {
			return nil
		}
		return r.appendLocked(ctx, Entry{
			Type:       TypeToolResult,
			ToolCallID: ev.ToolResult.ToolCallID,
			Name:       ev.ToolResult.ToolName,
			Content:    ev.ToolResult.Content,
			IsError:    ev.ToolResult.IsError,
		})
	}
	return nil
}

// Finalize flushes a turn whose stream closed without a terminal event.
func (r *Recorder) Finalize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Recorder) RecordSurface(ctx context.Context, surfaceID string, raw []byte) error {
	if replaying(ctx) {
		return nil
	}
	entry := Entry{Type: TypeSurface, SurfaceID: surfaceID, Payload: append(json.RawMessage(nil), raw...)}
	if call, ok := llm.ToolCallFrom(ctx); ok {
		entry.ToolCallID = call.ID
		entry.Name = call.Name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, entry)
}

func (r *Recorder) RecordAction(ctx context.Context, res surface.Resolution) error {
	if replaying(ctx) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, Entry{Type: TypeAction, SurfaceID: res.SurfaceID, Action: res.ActionID})
}

func (r *Recorder) RecordReceipt(ctx context.Context, surfaceID string, receipt schema.Receipt) error {
	if replaying(ctx) {
		return nil
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, Entry{Type: TypeReceipt, SurfaceID: surfaceID, Data: raw})
}

// flushLocked writes the buffered assistant turn followed by its tool calls.
func (r *Recorder) flushLocked(ctx context.Context) error {
	text := strings.TrimSpace(r.text.String())
	if text == "" && len(r.calls) == 0 {
		return nil
	}
	entry := Entry{Type: TypeAssistant, Content: text}
	if r.usage != nil {
		raw, err := json.Marshal(r.usage)
		if err != nil {
			return fmt.Errorf("marshal usage: %w", err)
		}
		entry.Data = raw
	}
	if err := r.appendLocked(ctx, entry); err != nil {
		return err
	}
	for _, call := range r.calls {
		if err := r.appendLocked(ctx, Entry{
			Type:       TypeToolCall,
			ToolCallID: call.ID,
			Name:       call.Name,
			Params:     call.Arguments,
		}); err != nil {
			return err
		}
	}
	r.text.Reset()
	r.calls = nil
	r.usage = nil
	return nil
}

func (r *Recorder) appendLocked(ctx context.Context, entry Entry) error {
	entry.ID = fmt.Sprintf("%06d", r.nextID)
	entry.ParentID = r.parentID
	if entry.TS <= 0 {
		entry.TS = r.now().Unix()
	}
	if err := r.store.Append(ctx, r.sessionID, entry); err != nil {
		return err
	}
	r.parentID = entry.ID
	r.nextID++
	return nil
}
