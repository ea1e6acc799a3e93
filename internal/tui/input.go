package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// InputModel is the single-line prompt under the transcript.
type InputModel struct {
	field textinput.Model
}

func NewInputModel(prompt, placeholder string, theme Theme) InputModel {
	field := textinput.New()
	field.Prompt = fallbackText(prompt, ">") + " "
	field.Placeholder = placeholder
	field.PromptStyle = theme.InputPromptStyle
	field.TextStyle = theme.InputTextStyle
	field.PlaceholderStyle = theme.InputPlaceholder
	field.Focus()
	return InputModel{field: field}
}

func (m InputModel) Value() string { return m.field.Value() }

func (m *InputModel) SetValue(value string) { m.field.SetValue(value) }

func (m *InputModel) Clear() { m.field.Reset() }

func (m InputModel) Focused() bool { return m.field.Focused() }

func (m *InputModel) Focus() tea.Cmd { return m.field.Focus() }

func (m *InputModel) Blur() { m.field.Blur() }

// Update feeds a key to the field.
func (m *InputModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.field, cmd = m.field.Update(msg)
	return cmd
}

func (m InputModel) Render(width int) string {
	field := m.field
	if width > 0 {
		field.Width = max(width-lipgloss.Width(field.Prompt)-1, 1)
		return lipgloss.NewStyle().Width(width).Render(field.View())
	}
	return field.View()
}
