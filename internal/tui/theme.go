package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"loom/internal/toolui/render"
)

// Theme holds the chrome styles of the app plus the surface theme embedded
// Tool-UI surfaces are painted with.
type Theme struct {
	Name                 string
	StatusBarStyle       lipgloss.Style
	PanelStyle           lipgloss.Style
	InspectorStyle       lipgloss.Style
	UserPrefixStyle      lipgloss.Style
	AssistantPrefixStyle lipgloss.Style
	ToolPrefixStyle      lipgloss.Style
	ErrorPrefixStyle     lipgloss.Style
	InputPromptStyle     lipgloss.Style
	InputTextStyle       lipgloss.Style
	InputPlaceholder     lipgloss.Style
	FocusMarkStyle       lipgloss.Style
	Surface              render.Theme
}

// ResolveTheme returns the named theme. Unknown names get the dark theme.
func ResolveTheme(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light":
		return newLightTheme()
	case "plain", "none":
		return newPlainTheme()
	default:
		return newDarkTheme()
	}
}

func panel(border lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

func newDarkTheme() Theme {
	border := lipgloss.Color("63")
	return Theme{
		Name: "dark",
		StatusBarStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("63")).
			Padding(0, 1),
		PanelStyle:           panel(border),
		InspectorStyle:       panel(border),
		UserPrefixStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		AssistantPrefixStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		ToolPrefixStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true),
		ErrorPrefixStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		InputPromptStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		InputTextStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		InputPlaceholder:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
		FocusMarkStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		Surface:              render.ResolveTheme("dark"),
	}
}

func newLightTheme() Theme {
	border := lipgloss.Color("246")
	return Theme{
		Name: "light",
		StatusBarStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("189")).
			Padding(0, 1),
		PanelStyle:           panel(border),
		InspectorStyle:       panel(border),
		UserPrefixStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
		AssistantPrefixStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("94")).Bold(true),
		ToolPrefixStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("31")).Bold(true),
		ErrorPrefixStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("124")).Bold(true),
		InputPromptStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
		InputTextStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("16")),
		InputPlaceholder:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
		FocusMarkStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("127")).Bold(true),
		Surface:              render.ResolveTheme("light"),
	}
}

// newPlainTheme keeps borders but drops colour, for tests and dumb terminals.
func newPlainTheme() Theme {
	bare := lipgloss.NewStyle()
	return Theme{
		Name:                 "plain",
		StatusBarStyle:       bare,
		PanelStyle:           bare.Border(lipgloss.NormalBorder()).Padding(0, 1),
		InspectorStyle:       bare.Border(lipgloss.NormalBorder()).Padding(0, 1),
		UserPrefixStyle:      bare,
		AssistantPrefixStyle: bare,
		ToolPrefixStyle:      bare,
		ErrorPrefixStyle:     bare,
		InputPromptStyle:     bare,
		InputTextStyle:       bare,
		InputPlaceholder:     bare,
		FocusMarkStyle:       bare,
		Surface:              render.Plain(),
	}
}
