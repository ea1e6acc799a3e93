package tui

import (
	"fmt"
	"sort"
	"strings"

	"loom/internal/llm"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

// InspectorModel is the side panel with runtime and surface counters.
type InspectorModel struct {
	State      string
	Turn       int
	Usage      llm.Usage
	ToolCounts map[string]int

	Surfaces map[schema.SurfaceKind]int
	Pending  int
	Receipts int
	Failed   int
}

func NewInspectorModel() InspectorModel {
	return InspectorModel{
		State:      "idle",
		ToolCounts: make(map[string]int),
		Surfaces:   make(map[schema.SurfaceKind]int),
	}
}

func (m *InspectorModel) SetState(state string) {
	m.State = fallbackText(state, "idle")
}

func (m *InspectorModel) IncrementTurn() {
	m.Turn++
}

// AddUsage accumulates the usage reported at the end of a model turn.
func (m *InspectorModel) AddUsage(usage llm.Usage) {
	m.Usage.Add(usage)
}

func (m *InspectorModel) RecordToolCall(toolName string) {
	m.ToolCounts[fallbackText(toolName, "unknown")]++
}

// CountSurfaces recomputes the surface counters from the host.
func (m *InspectorModel) CountSurfaces(entries []*surface.Entry) {
	clear(m.Surfaces)
	m.Pending, m.Receipts, m.Failed = 0, 0, 0
	for _, e := range entries {
		m.Surfaces[e.Kind]++
		switch {
		case e.Receipt() != nil:
			m.Receipts++
		case e.Kind == schema.SurfaceApproval:
			m.Pending++
		}
		if e.Failed() {
			m.Failed++
		}
	}
}

func (m InspectorModel) Render(width int, theme Theme) string {
	lines := []string{
		"Status: " + m.State,
		fmt.Sprintf("Turn: %d", m.Turn),
		fmt.Sprintf("Tokens: %d", m.Usage.Total()),
		"Tools:",
	}
	lines = append(lines, countLines(m.ToolCounts)...)

	lines = append(lines, "Surfaces:")
	kinds := make(map[string]int, len(m.Surfaces))
	for kind, n := range m.Surfaces {
		kinds[string(kind)] = n
	}
	lines = append(lines, countLines(kinds)...)
	lines = append(lines,
		fmt.Sprintf("Awaiting: %d", m.Pending),
		fmt.Sprintf("Receipts: %d", m.Receipts),
		fmt.Sprintf("Failed: %d", m.Failed),
	)
	return renderPanel(width, theme.InspectorStyle, strings.Join(lines, "\n"))
}

func countLines(counts map[string]int) []string {
	if len(counts) == 0 {
		return []string{"  none"}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("  %s (%d)", name, counts[name]))
	}
	return out
}
