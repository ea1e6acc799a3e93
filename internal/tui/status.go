package tui

import (
	"fmt"
	"strings"
)

// StatusModel renders the top status bar.
type StatusModel struct {
	Version   string
	ModelName string
	SessionID string
	State     string
	Surfaces  int
	Pending   int
	Spinner   string
}

func NewStatusModel(version, modelName, sessionID string) StatusModel {
	return StatusModel{
		Version:   strings.TrimSpace(version),
		ModelName: strings.TrimSpace(modelName),
		SessionID: strings.TrimSpace(sessionID),
		State:     "idle",
	}
}

// SetState updates the runtime state token.
func (m *StatusModel) SetState(state string) {
	m.State = fallbackText(state, "idle")
}

// Render draws a one-line status bar.
func (m StatusModel) Render(width int, theme Theme) string {
	state := fallbackText(m.State, "idle")
	if m.Spinner != "" && state != "idle" && state != "error" {
		state = m.Spinner + " " + state
	}
	parts := []string{
		"loom " + fallbackText(m.Version, "dev"),
		fallbackText(m.ModelName, "unknown-model"),
		"session: " + fallbackText(m.SessionID, "new"),
		"state: " + state,
		fmt.Sprintf("surfaces: %d", m.Surfaces),
	}
	if m.Pending > 0 {
		parts = append(parts, fmt.Sprintf("awaiting: %d", m.Pending))
	}
	style := theme.StatusBarStyle
	if width > 0 {
		style = style.Width(width).MaxHeight(1)
	}
	return style.Render(strings.Join(parts, " | "))
}

func fallbackText(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
