// Package llm is the provider-agnostic streaming protocol between the
// assistant loop and a model backend.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest indicates missing or malformed request input.
	ErrInvalidRequest = errors.New("invalid llm request")
	// ErrMissingAPIKey indicates a provider without credentials.
	ErrMissingAPIKey = errors.New("missing api key")
)

// Provider streams model events for a single request. The channel is closed
// after a terminal EventDone or EventError.
type Provider interface {
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

type EventType string

const (
	EventStart         EventType = "start"
	EventTextDelta     EventType = "text_delta"
	EventToolCallStart EventType = "tool_call_start"
	EventToolCallDelta EventType = "tool_call_delta"
	EventToolCallEnd   EventType = "tool_call_end"
	EventToolResult    EventType = "tool_result"
	EventUsage         EventType = "usage"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "tool_use"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// ToolSpec describes a tool exposed to the model. Schema is a JSON Schema
// object document.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// Request is one streaming model call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
	Retry     RetryPolicy
}

// ToolCall is a model-emitted tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is the local outcome of a tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Message is one conversation record. Text is empty for pure tool turns.
type Message struct {
	Role       Role        `json:"role"`
	Text       string      `json:"text,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Usage tracks token accounting.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
}

func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

type Done struct {
	Reason StopReason
	Usage  Usage
}

// Event is one streaming event.
type Event struct {
	Type          EventType
	TextDelta     string
	ToolCall      *ToolCall
	ToolCallDelta string
	ToolResult    *ToolResult
	Usage         *Usage
	Done          *Done
	Err           error
}

// Send forwards an event unless ctx ends first.
func Send(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case events <- ev:
		return nil
	}
}

// SendTerminal emits a terminal event without blocking. The channel needs a
// buffer of at least one so an abandoned consumer cannot hang the producer.
func SendTerminal(events chan<- Event, ev Event) {
	select {
	case events <- ev:
	default:
	}
}

// Aborted is the terminal event for a cancelled stream.
func Aborted(err error) Event {
	return Event{Type: EventError, Done: &Done{Reason: StopReasonAborted}, Err: err}
}

type toolCallKey struct{}

// WithToolCall records the tool call being executed on ctx.
func WithToolCall(ctx context.Context, call ToolCall) context.Context {
	return context.WithValue(ctx, toolCallKey{}, call)
}

// ToolCallFrom returns the tool call recorded by WithToolCall.
func ToolCallFrom(ctx context.Context) (ToolCall, bool) {
	call, ok := ctx.Value(toolCallKey{}).(ToolCall)
	return call, ok
}

// ObjectSchema is the part of a tool schema providers forward.
type ObjectSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// DecodeObjectSchema validates that raw is an object schema.
func DecodeObjectSchema(raw json.RawMessage) (ObjectSchema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ObjectSchema{Type: "object", Properties: map[string]any{}}, nil
	}
	var s ObjectSchema
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return ObjectSchema{}, fmt.Errorf("%w: invalid tool schema json", ErrInvalidRequest)
	}
	if strings.TrimSpace(s.Type) == "" {
		s.Type = "object"
	}
	if s.Type != "object" {
		return ObjectSchema{}, fmt.Errorf("%w: tool schema type must be object", ErrInvalidRequest)
	}
	if s.Properties == nil {
		s.Properties = map[string]any{}
	}
	return s, nil
}

// DecodeObject decodes tool arguments, treating empty input as {}.
func DecodeObject(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	obj := map[string]any{}
	if len(trimmed) == 0 {
		return obj, nil
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: tool arguments: %v", ErrInvalidRequest, err)
	}
	return obj, nil
}
