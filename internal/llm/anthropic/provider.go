// Package anthropic adapts the Anthropic Messages streaming API to llm.Provider.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"pkt.systems/pslog"

	"loom/internal/llm"
	"loom/internal/logx"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
	Retry      llm.RetryPolicy
}

// Provider wraps the official SDK client. SDK retries are disabled; the
// provider retries itself, and only before any output reached the caller.
type Provider struct {
	apiKey string
	retry  llm.RetryPolicy
	client sdk.Client
}

func New(cfg Config) *Provider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if version := strings.TrimSpace(cfg.Version); version != "" {
		opts = append(opts, option.WithHeader("anthropic-version", version))
	}
	return &Provider{
		apiKey: apiKey,
		retry:  cfg.Retry.Normalize(),
		client: sdk.NewClient(opts...),
	}
}

// Stream runs one Messages API call.
func (p *Provider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	if p.apiKey == "" {
		return nil, llm.ErrMissingAPIKey
	}
	params, err := toParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan llm.Event, 1)
	policy := p.retry.Merge(req.Retry)
	log := logx.Ctx(ctx).With("model", req.Model)

	go func() {
		defer close(events)
		st := &stream{reason: llm.StopReasonStop, tools: map[int64]*toolCall{}}
		if err := p.run(ctx, log, params, policy, events, st); err != nil {
			reason := llm.StopReasonError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = llm.StopReasonAborted
			}
			llm.SendTerminal(events, llm.Event{
				Type: llm.EventError,
				Done: &llm.Done{Reason: reason, Usage: st.usage},
				Err:  fmt.Errorf("anthropic stream: %w", err),
			})
		}
	}()
	return events, nil
}

type stream struct {
	usage   llm.Usage
	reason  llm.StopReason
	visible bool
	started bool
	done    bool
	tools   map[int64]*toolCall
}

type toolCall struct {
	id   string
	name string
	buf  bytes.Buffer
}

func (p *Provider) run(ctx context.Context, log pslog.Logger, params sdk.MessageNewParams, policy llm.RetryPolicy, events chan<- llm.Event, st *stream) error {
	for attempt := 0; ; attempt++ {
		err := p.once(ctx, params, events, st)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !llm.IsRetryable(err) || st.visible || attempt >= policy.MaxRetries {
			return err
		}
		delay := policy.Backoff(attempt)
		log.Warn("anthropic stream retry", "attempt", attempt+1, "delay", delay.String(), "err", err)
		if err := llm.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p *Provider) once(ctx context.Context, params sdk.MessageNewParams, events chan<- llm.Event, st *stream) error {
	s := p.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = s.Close() }()

	if !st.started {
		if err := llm.Send(ctx, events, llm.Event{Type: llm.EventStart}); err != nil {
			return err
		}
		st.started = true
	}

	for s.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.handle(ctx, s.Current(), events); err != nil {
			return err
		}
		if st.done {
			return nil
		}
	}
	if err := s.Err(); err != nil {
		wrapped := fmt.Errorf("anthropic sdk stream: %w", err)
		if retryableTransport(err) {
			return llm.Retryable(wrapped)
		}
		return wrapped
	}
	if st.done {
		return nil
	}
	return llm.Retryable(errors.New("stream ended without message_stop"))
}

func (st *stream) handle(ctx context.Context, ev sdk.MessageStreamEventUnion, events chan<- llm.Event) error {
	switch v := ev.AsAny().(type) {
	case sdk.MessageStartEvent:
		u := v.Message.Usage
		st.usage = llm.Usage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
		usage := st.usage
		return llm.Send(ctx, events, llm.Event{Type: llm.EventUsage, Usage: &usage})

	case sdk.ContentBlockStartEvent:
		block, ok := v.ContentBlock.AsAny().(sdk.ToolUseBlock)
		if !ok {
			return nil
		}
		call := &toolCall{id: block.ID, name: block.Name}
		if raw := bytes.TrimSpace(block.Input); len(raw) > 0 && string(raw) != "{}" {
			call.buf.Write(raw)
		}
		st.tools[v.Index] = call
		st.visible = true
		return llm.Send(ctx, events, llm.Event{
			Type:     llm.EventToolCallStart,
			ToolCall: &llm.ToolCall{ID: block.ID, Name: block.Name},
		})

	case sdk.ContentBlockDeltaEvent:
		switch d := v.Delta.AsAny().(type) {
		case sdk.TextDelta:
			st.visible = true
			return llm.Send(ctx, events, llm.Event{Type: llm.EventTextDelta, TextDelta: d.Text})
		case sdk.InputJSONDelta:
			call, ok := st.tools[v.Index]
			if !ok {
				return fmt.Errorf("input_json_delta for unknown block %d", v.Index)
			}
			call.buf.WriteString(d.PartialJSON)
			return llm.Send(ctx, events, llm.Event{Type: llm.EventToolCallDelta, ToolCallDelta: d.PartialJSON})
		}
		return nil

	case sdk.ContentBlockStopEvent:
		call, ok := st.tools[v.Index]
		if !ok {
			return nil
		}
		delete(st.tools, v.Index)
		args := bytes.TrimSpace(call.buf.Bytes())
		if len(args) == 0 {
			args = []byte("{}")
		}
		if !json.Valid(args) {
			return fmt.Errorf("tool call %s arguments are not valid JSON", call.id)
		}
		return llm.Send(ctx, events, llm.Event{
			Type:     llm.EventToolCallEnd,
			ToolCall: &llm.ToolCall{ID: call.id, Name: call.name, Arguments: bytes.Clone(args)},
		})

	case sdk.MessageDeltaEvent:
		if v.Delta.StopReason != "" {
			reason, err := stopReason(string(v.Delta.StopReason))
			if err != nil {
				return err
			}
			st.reason = reason
		}
		u := v.Usage
		st.usage = llm.Usage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
		usage := st.usage
		return llm.Send(ctx, events, llm.Event{Type: llm.EventUsage, Usage: &usage})

	case sdk.MessageStopEvent:
		st.done = true
		return llm.Send(ctx, events, llm.Event{
			Type: llm.EventDone,
			Done: &llm.Done{Reason: st.reason, Usage: st.usage},
		})
	}
	return nil
}

func retryableTransport(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
