// Package render holds the style tokens and small building blocks shared by
// the Tool-UI surface renderers. Engines decide what to show; the theme
// decides how it looks.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"loom/internal/toolui/schema"
)

// Theme contains style tokens used by surface renderers.
type Theme struct {
	Name     string
	Title    lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Border   lipgloss.Style
	Muted    lipgloss.Style
	Focus    lipgloss.Style
	Error    lipgloss.Style
	Panel    lipgloss.Style
	Tones    map[schema.Tone]lipgloss.Style
	Variants map[schema.Variant]lipgloss.Style
}

// Tone returns the style for a semantic tone. Unknown tones are neutral.
func (t Theme) Tone(tone schema.Tone) lipgloss.Style {
	if s, ok := t.Tones[tone]; ok {
		return s
	}
	return t.Tones[schema.ToneNeutral]
}

// Variant returns the button style for an action variant.
func (t Theme) Variant(v schema.Variant) lipgloss.Style {
	if s, ok := t.Variants[v]; ok {
		return s
	}
	return t.Variants[schema.VariantDefault]
}

// ResolveTheme returns the configured theme or the dark default.
func ResolveTheme(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light":
		return newLightTheme()
	case "plain", "none":
		return Plain()
	default:
		return newDarkTheme()
	}
}

// Plain is a theme without colour or emphasis. Layout is unchanged, which
// makes it the theme of choice for golden output and piping.
func Plain() Theme {
	bare := lipgloss.NewStyle()
	return Theme{
		Name:   "plain",
		Title:  bare,
		Header: bare,
		Cell:   bare,
		Border: bare,
		Muted:  bare,
		Focus:  bare,
		Error:  bare.Border(lipgloss.NormalBorder()).Padding(0, 1),
		Panel:  bare.Border(lipgloss.NormalBorder()).Padding(0, 1),
		Tones: map[schema.Tone]lipgloss.Style{
			schema.ToneSuccess: bare,
			schema.ToneWarning: bare,
			schema.ToneDanger:  bare,
			schema.ToneInfo:    bare,
			schema.ToneNeutral: bare,
		},
		Variants: map[schema.Variant]lipgloss.Style{
			schema.VariantDefault:     bare,
			schema.VariantDestructive: bare,
			schema.VariantSecondary:   bare,
			schema.VariantGhost:       bare,
			schema.VariantOutline:     bare,
		},
	}
}

func newDarkTheme() Theme {
	border := lipgloss.Color("63")
	muted := lipgloss.Color("245")
	return Theme{
		Name:   "dark",
		Title:  lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Bold(true),
		Header: lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true),
		Cell:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Border: lipgloss.NewStyle().Foreground(border),
		Muted:  lipgloss.NewStyle().Foreground(muted),
		Focus:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		Error: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("160")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		Tones: map[schema.Tone]lipgloss.Style{
			schema.ToneSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			schema.ToneWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			schema.ToneDanger:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
			schema.ToneInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
			schema.ToneNeutral: lipgloss.NewStyle().Foreground(muted),
		},
		Variants: map[schema.Variant]lipgloss.Style{
			schema.VariantDefault: lipgloss.NewStyle().
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("63")).
				Padding(0, 1),
			schema.VariantDestructive: lipgloss.NewStyle().
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("160")).
				Padding(0, 1),
			schema.VariantSecondary: lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("238")).
				Padding(0, 1),
			schema.VariantGhost:   lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
			schema.VariantOutline: lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Underline(true).Padding(0, 1),
		},
	}
}

func newLightTheme() Theme {
	border := lipgloss.Color("246")
	muted := lipgloss.Color("240")
	return Theme{
		Name:   "light",
		Title:  lipgloss.NewStyle().Foreground(lipgloss.Color("16")).Bold(true),
		Header: lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
		Cell:   lipgloss.NewStyle().Foreground(lipgloss.Color("16")),
		Border: lipgloss.NewStyle().Foreground(border),
		Muted:  lipgloss.NewStyle().Foreground(muted),
		Focus:  lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
		Error: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("124")).
			Foreground(lipgloss.Color("124")).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		Tones: map[schema.Tone]lipgloss.Style{
			schema.ToneSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
			schema.ToneWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("130")),
			schema.ToneDanger:  lipgloss.NewStyle().Foreground(lipgloss.Color("124")),
			schema.ToneInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("25")),
			schema.ToneNeutral: lipgloss.NewStyle().Foreground(muted),
		},
		Variants: map[schema.Variant]lipgloss.Style{
			schema.VariantDefault: lipgloss.NewStyle().
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("25")).
				Padding(0, 1),
			schema.VariantDestructive: lipgloss.NewStyle().
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("124")).
				Padding(0, 1),
			schema.VariantSecondary: lipgloss.NewStyle().
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("252")).
				Padding(0, 1),
			schema.VariantGhost:   lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
			schema.VariantOutline: lipgloss.NewStyle().Foreground(lipgloss.Color("16")).Underline(true).Padding(0, 1),
		},
	}
}
