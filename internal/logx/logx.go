// Package logx builds the structured logger and annotates it with Tool-UI
// identifiers. The terminal belongs to the TUI, so logs go to a file or
// nowhere.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

// New returns a structured logger writing to w at the named minimum level.
// Unknown levels mean info.
func New(w io.Writer, level string) pslog.Logger {
	opts := pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.InfoLevel,
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "warn", "warning":
		opts.MinLevel = pslog.WarnLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	}
	return pslog.NewWithOptions(w, opts)
}

// Discard is a logger that drops everything.
func Discard() pslog.Logger {
	return New(io.Discard, "error")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open appends to the log file at path, creating parent directories. An
// empty path discards logs.
func Open(path, level string) (pslog.Logger, io.Closer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Discard(), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return New(f, level), f, nil
}

// Ctx returns the logger bound to ctx.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSurface annotates the logger with a surface id and kind.
func WithSurface(log pslog.Logger, id, kind string) pslog.Logger {
	if id != "" {
		log = log.With("surface", id)
	}
	if kind != "" {
		log = log.With("kind", kind)
	}
	return log
}

// WithToolCall annotates the logger with a tool call id.
func WithToolCall(log pslog.Logger, callID string) pslog.Logger {
	if callID != "" {
		log = log.With("tool_call", callID)
	}
	return log
}

// ContextWithLogger binds log to ctx for Ctx to find.
func ContextWithLogger(ctx context.Context, log pslog.Logger) context.Context {
	return pslog.ContextWithLogger(ctx, log)
}
