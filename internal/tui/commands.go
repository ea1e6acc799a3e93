package tui

import (
	"context"
	"fmt"
	"strings"

	"loom/internal/llm"
	"loom/internal/session"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

const maxListedSessions = 10

// SessionLister lists stored transcripts, newest first.
type SessionLister interface {
	List(ctx context.Context) ([]session.Info, error)
}

// commandEnv provides hooks so slash commands stay independent of the
// bubbletea model.
type commandEnv struct {
	Context      context.Context
	SessionID    string
	Sessions     SessionLister
	Surfaces     []*surface.Entry
	Usage        llm.Usage
	Turns        int
	ActiveStream bool

	ClearChat       func()
	AppendAssistant func(text string)
	AppendError     func(errText string)
}

// isSlashCommand reports whether input should run locally instead of going
// to the assistant.
func isSlashCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// executeSlashCommand parses and handles one slash command.
func executeSlashCommand(content string, env commandEnv) {
	parts := strings.Fields(strings.TrimSpace(content))
	if len(parts) == 0 {
		return
	}
	command := strings.TrimPrefix(parts[0], "/")

	switch command {
	case "help":
		appendAssistant(env, strings.Join([]string{
			"Slash commands:",
			"/help",
			"/session",
			"/surfaces",
			"/sessions",
			"/clear",
		}, "\n"))
	case "session":
		awaiting := 0
		for _, e := range env.Surfaces {
			if surfaceState(e) == "awaiting decision" {
				awaiting++
			}
		}
		appendAssistant(env, fmt.Sprintf(
			"session=%s turns=%d surfaces=%d awaiting=%d tokens=(in:%d out:%d cache_read:%d cache_write:%d)",
			fallbackText(env.SessionID, "unsaved"),
			env.Turns,
			len(env.Surfaces),
			awaiting,
			env.Usage.InputTokens,
			env.Usage.OutputTokens,
			env.Usage.CacheReadTokens,
			env.Usage.CacheWriteTokens,
		))
	case "surfaces":
		if len(env.Surfaces) == 0 {
			appendAssistant(env, "No surfaces yet.")
			return
		}
		lines := []string{"Surfaces:"}
		for _, e := range env.Surfaces {
			lines = append(lines, fmt.Sprintf("- %s %s: %s", e.ID, surface.DisplayName(e.Kind), surfaceState(e)))
		}
		appendAssistant(env, strings.Join(lines, "\n"))
	case "sessions":
		if env.Sessions == nil {
			appendError(env, "session store is not available")
			return
		}
		ctx := env.Context
		if ctx == nil {
			ctx = context.Background()
		}
		infos, err := env.Sessions.List(ctx)
		if err != nil {
			appendError(env, err.Error())
			return
		}
		if len(infos) == 0 {
			appendAssistant(env, "No sessions found.")
			return
		}
		lines := []string{"Sessions (resume with loom --resume <id>):"}
		for i, info := range infos {
			if i == maxListedSessions {
				lines = append(lines, fmt.Sprintf("… %d more", len(infos)-maxListedSessions))
				break
			}
			mark := " "
			if info.ID == env.SessionID {
				mark = "*"
			}
			lines = append(lines, fmt.Sprintf("%s %s  %s  %d bytes", mark, info.ID, info.UpdatedAt.UTC().Format("2006-01-02 15:04"), info.SizeBytes))
		}
		appendAssistant(env, strings.Join(lines, "\n"))
	case "clear":
		if env.ActiveStream {
			appendError(env, "cannot clear while the assistant is replying")
			return
		}
		if env.ClearChat != nil {
			env.ClearChat()
		}
	default:
		appendError(env, "unknown slash command: /"+command)
	}
}

func surfaceState(e *surface.Entry) string {
	switch {
	case e.Failed():
		return "failed to render"
	case e.Receipt() != nil:
		return "decided (" + string(e.Receipt().Outcome) + ")"
	case e.Actions != nil && e.Kind == schema.SurfaceApproval:
		return "awaiting decision"
	default:
		return "shown"
	}
}

func appendAssistant(env commandEnv, text string) {
	if env.AppendAssistant != nil {
		env.AppendAssistant(text)
	}
}

func appendError(env commandEnv, errText string) {
	if env.AppendError != nil {
		env.AppendError(errText)
	}
}
