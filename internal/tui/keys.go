package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap lists the bindings shown in the help line. Chat mode and surface
// mode share one map; Focused decides which half is shown.
type keyMap struct {
	Focused bool

	Submit    key.Binding
	Focus     key.Binding
	Scroll    key.Binding
	Page      key.Binding
	Interrupt key.Binding
	Quit      key.Binding

	Select  key.Binding
	Invoke  key.Binding
	Escape  key.Binding
	Sort    key.Binding
	Card    key.Binding
	Toggle  key.Binding
	Inspect key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Focus:     key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "focus surface")),
		Scroll:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "scroll")),
		Page:      key.NewBinding(key.WithKeys("pgup", "pgdown", "home", "end"), key.WithHelp("pgup/pgdn", "page")),
		Interrupt: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop reply")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		Select:    key.NewBinding(key.WithKeys("left", "right"), key.WithHelp("←/→", "select action")),
		Invoke:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "invoke")),
		Escape:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel/leave")),
		Sort:      key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "sort column")),
		Card:      key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "card")),
		Toggle:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "expand card")),
		Inspect:   key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "inspector")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	if k.Focused {
		return []key.Binding{k.Select, k.Invoke, k.Escape, k.Sort, k.Card, k.Toggle, k.Focus}
	}
	return []key.Binding{k.Submit, k.Focus, k.Scroll, k.Interrupt, k.Inspect, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Focus, k.Scroll, k.Page, k.Interrupt, k.Inspect, k.Quit},
		{k.Select, k.Invoke, k.Escape, k.Sort, k.Card, k.Toggle},
	}
}
