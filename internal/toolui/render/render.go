package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"loom/internal/toolui/action"
	"loom/internal/toolui/format"
	"loom/internal/toolui/schema"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "…"

// SkeletonGlyph fills loading placeholders.
const SkeletonGlyph = "░"

// Value styles one formatted value. When hyperlinks is set, safe links are
// emitted as OSC 8 hyperlinks.
func Value(r format.Rendered, theme Theme, hyperlinks bool) string {
	text := format.Sanitize(r.Text)
	if r.Placeholder {
		return theme.Muted.Render(text)
	}

	if glyph := r.Arrow.Glyph(); glyph != "" {
		text = glyph + " " + text
	}
	if r.Href != "" {
		if r.External {
			text += " ↗"
		}
		if hyperlinks {
			text = ansi.SetHyperlink(r.Href) + text + ansi.ResetHyperlink()
		}
		return theme.Focus.Render(text)
	}
	if r.Tone != "" {
		return theme.Tone(r.Tone).Render(text)
	}
	return theme.Cell.Render(text)
}

// Truncate shortens s to width cells, keeping escape sequences intact.
func Truncate(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, Ellipsis)
}

// Skeleton is a loading bar of the given width.
func Skeleton(width int, theme Theme) string {
	return theme.Muted.Render(strings.Repeat(SkeletonGlyph, max(width, 1)))
}

// ErrorBlock is the fixed fallback shown in place of a surface that failed.
func ErrorBlock(name, message string, width int, theme Theme) string {
	style := theme.Error
	if width > 2 {
		style = style.Width(width - 2)
	}
	return style.Render(fmt.Sprintf("%s failed to render: %s", format.Sanitize(name), format.Sanitize(message)))
}

// Button renders a single action.
func Button(v action.View, selected bool, theme Theme) string {
	label := format.Sanitize(v.Label)
	if v.Loading {
		label = "… " + label
	}
	if v.Shortcut != "" {
		label += " (" + format.Sanitize(v.Shortcut) + ")"
	}
	label = "[" + label + "]"

	style := theme.Variant(v.Variant)
	switch {
	case v.Disabled:
		style = theme.Muted
	case v.Confirming:
		style = theme.Tone(schema.ToneWarning).Bold(true)
	}
	out := style.Render(label)
	if selected {
		return theme.Focus.Render("›") + out
	}
	return " " + out
}

// Actions renders a row of buttons. selected is the focused index or -1.
// A confirming action adds its sentence, if any, on a second line.
func Actions(views []action.View, selected int, theme Theme) string {
	if len(views) == 0 {
		return ""
	}
	buttons := make([]string, 0, len(views))
	var sentence string
	for i, v := range views {
		buttons = append(buttons, Button(v, i == selected, theme))
		if v.Confirming && v.Sentence != "" {
			sentence = v.Sentence
		}
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
	if sentence == "" {
		return row
	}
	return lipgloss.JoinVertical(lipgloss.Left, row, theme.Muted.Render(format.Sanitize(sentence)))
}
