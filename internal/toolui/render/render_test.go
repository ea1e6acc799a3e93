package render

import (
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"

	"loom/internal/toolui/action"
	"loom/internal/toolui/format"
	"loom/internal/toolui/schema"
)

func TestValueArrowAndPlaceholder(t *testing.T) {
	t.Parallel()

	theme := Plain()
	assert.Equal(t, "▲ +2.5", ansi.Strip(Value(format.Rendered{Text: "+2.5", Arrow: format.ArrowUp, Tone: schema.ToneSuccess}, theme, false)))
	assert.Equal(t, format.Placeholder, ansi.Strip(Value(format.Rendered{Text: format.Placeholder, Placeholder: true}, theme, false)))
}

func TestValueHyperlink(t *testing.T) {
	t.Parallel()

	r := format.Rendered{Text: "order", Href: "https://example.com/o/1", External: true}
	out := Value(r, Plain(), true)
	assert.Contains(t, out, ansi.SetHyperlink("https://example.com/o/1"))
	assert.Equal(t, "order ↗", ansi.Strip(out))
	assert.Equal(t, "order ↗", ansi.Strip(Value(r, Plain(), false)))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "abcdefgh", Truncate("abcdefgh", 0))
}

func TestErrorBlock(t *testing.T) {
	t.Parallel()

	out := ansi.Strip(ErrorBlock("DataTable", "columns: required", 0, Plain()))
	assert.Contains(t, out, "DataTable failed to render: columns: required")
	assert.Contains(t, out, "┌")
}

func TestActions(t *testing.T) {
	t.Parallel()

	views := []action.View{
		{ID: "cancel", Label: "Cancel", Variant: schema.VariantGhost},
		{ID: "approve", Label: "Really?", Confirming: true, Sentence: "Approve 12 payslips.", Shortcut: "y"},
		{ID: "export", Label: "Export", Disabled: true},
	}
	out := ansi.Strip(Actions(views, 1, Plain()))
	assert.Contains(t, out, " [Cancel]›[Really? (y)] [Export]")
	assert.Contains(t, out, "Approve 12 payslips.")
	assert.Empty(t, Actions(nil, -1, Plain()))
}

func TestResolveTheme(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dark", ResolveTheme("").Name)
	assert.Equal(t, "light", ResolveTheme(" Light ").Name)
	assert.Equal(t, "plain", ResolveTheme("plain").Name)

	theme := ResolveTheme("dark")
	assert.Equal(t, theme.Tones[schema.ToneNeutral], theme.Tone("mystery"))
	assert.Equal(t, theme.Variants[schema.VariantDefault], theme.Variant("mystery"))
}
