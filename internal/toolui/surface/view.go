package surface

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"loom/internal/toolui/format"
	"loom/internal/toolui/render"
	"loom/internal/toolui/schema"
)

// RenderOptions tune one paint of a surface.
type RenderOptions struct {
	Width   int
	Theme   render.Theme
	Focused bool
}

// Render paints a surface through its boundary. Unknown ids render nothing.
func (h *Host) Render(id string, opts RenderOptions) string {
	e, ok := h.Get(id)
	if !ok {
		return ""
	}
	return e.Render(opts)
}

// Render paints the entry. Failures are contained and shown in place.
func (e *Entry) Render(opts RenderOptions) string {
	return e.boundary.Render(e.Fingerprint(), opts.Width, opts.Theme, func() (string, error) {
		return e.paint(opts)
	})
}

// Failed reports whether the entry currently shows its fallback.
func (e *Entry) Failed() bool { return e.boundary.Failed() }

func (e *Entry) paint(opts RenderOptions) (string, error) {
	theme := opts.Theme
	var blocks []string

	switch p := e.Payload().(type) {
	case schema.DataTable:
		body, err := e.Table.Render(opts.Width, theme)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, body)
	case schema.StatsDisplay:
		body, err := e.Stats.Render(opts.Width, theme)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, body)
	case schema.ApprovalPrompt:
		blocks = append(blocks, theme.Title.Render(format.Sanitize(p.Title)))
		if desc := strings.TrimSpace(format.Sanitize(p.Description)); desc != "" {
			blocks = append(blocks, theme.Muted.Render(wrap(desc, opts.Width)))
		}
	default:
		return "", fmt.Errorf("unsupported surface %T", p)
	}

	if r := e.Receipt(); r != nil {
		blocks = append(blocks, ReceiptLine(*r, theme))
	} else if e.Actions != nil {
		selected := -1
		if opts.Focused {
			selected = e.Selected()
		}
		blocks = append(blocks, render.Actions(e.Actions.View(), selected, theme))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...), nil
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

var outcomeGlyphs = map[schema.Outcome]string{
	schema.OutcomeSuccess:   "✓",
	schema.OutcomePartial:   "◐",
	schema.OutcomeFailed:    "✗",
	schema.OutcomeCancelled: "⊘",
}

var outcomeTones = map[schema.Outcome]schema.Tone{
	schema.OutcomeSuccess:   schema.ToneSuccess,
	schema.OutcomePartial:   schema.ToneWarning,
	schema.OutcomeFailed:    schema.ToneDanger,
	schema.OutcomeCancelled: schema.ToneNeutral,
}

// ReceiptLine is the one-line summary shown once a surface has a receipt.
func ReceiptLine(r schema.Receipt, theme render.Theme) string {
	parts := []string{outcomeGlyphs[r.Outcome] + " " + format.Sanitize(r.Summary)}
	keys := make([]string, 0, len(r.Identifiers))
	for k := range r.Identifiers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, format.Sanitize(k+": "+r.Identifiers[k]))
	}
	if !r.At.IsZero() {
		parts = append(parts, r.At.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return theme.Tone(outcomeTones[r.Outcome]).Render(strings.Join(parts, " · "))
}

// Fallback renders the contained form of a payload that failed validation.
func Fallback(raw []byte, err error, opts RenderOptions) string {
	return FallbackFor(schema.SurfaceKind(gjson.GetBytes(raw, "surface").String()), err, opts)
}

// FallbackFor is Fallback when the kind is known from elsewhere, such as the
// tool that carried the payload.
func FallbackFor(kind schema.SurfaceKind, err error, opts RenderOptions) string {
	return render.ErrorBlock(DisplayName(kind), err.Error(), opts.Width, opts.Theme)
}
