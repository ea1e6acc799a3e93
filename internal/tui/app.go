// Package tui is the bubbletea front end: a chat transcript with live Tool-UI
// surfaces the user can focus and act on.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"loom/internal/llm"
	"loom/internal/logx"
	"loom/internal/session"
	"loom/internal/tools"
	"loom/internal/toolui/action"
	"loom/internal/toolui/surface"
)

const (
	defaultAppWidth         = 100
	defaultInspectorWidth   = 36
	minimumChatPanelWidth   = 40
	minimumInspectorVisible = 22
)

// Assistant is the conversation the app drives.
type Assistant interface {
	Send(ctx context.Context, text string) (<-chan llm.Event, error)
	Cancel()
}

// Config configures the root model.
type Config struct {
	// Context carries the logger into assistant turns and action handlers.
	Context       context.Context
	Version       string
	ModelName     string
	SessionID     string
	ThemeName     string
	ShowInspector bool
	Assistant     Assistant
	Host          *surface.Host
	Recorder      *session.Recorder
	Sessions      SessionLister
	// Transcript is a resumed session; its surfaces must already be in Host.
	Transcript []session.Entry
}

// SurfaceChangedMsg tells the app a surface was added or needs repainting.
// The host's change hook sends it from any goroutine via tea.Program.Send.
type SurfaceChangedMsg struct {
	ID string
}

type streamReadMsg struct {
	Event  llm.Event
	Closed bool
}

type actionDoneMsg struct {
	SurfaceID string
	ActionID  string
	Result    action.Result
	Err       error
}

// App is the root model.
type App struct {
	ctx           context.Context
	theme         Theme
	keys          keyMap
	showInspector bool

	assistant Assistant
	host      *surface.Host
	recorder  *session.Recorder
	sessions  SessionLister

	width  int
	height int

	status    StatusModel
	chat      ChatModel
	input     InputModel
	inspector InspectorModel
	help      help.Model
	spinner   spinner.Model

	focus        string
	reply        strings.Builder
	activeStream <-chan llm.Event
}

func NewApp(cfg Config) *App {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	theme := ResolveTheme(cfg.ThemeName)
	m := &App{
		ctx:           ctx,
		theme:         theme,
		keys:          newKeyMap(),
		showInspector: cfg.ShowInspector,
		assistant:     cfg.Assistant,
		host:          cfg.Host,
		recorder:      cfg.Recorder,
		sessions:      cfg.Sessions,
		width:         defaultAppWidth,
		status:        NewStatusModel(cfg.Version, cfg.ModelName, cfg.SessionID),
		chat:          NewChatModel(0),
		input:         NewInputModel(">", "Ask about orders, stock or payroll", theme),
		inspector:     NewInspectorModel(),
		help:          help.New(),
		spinner:       spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
	m.rebuildChat(cfg.Transcript)
	m.refreshSurfaces()
	return m
}

func (m *App) Init() tea.Cmd {
	return nil
}

func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.chat.SetViewportHeight(m.chatViewportHeight())
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case spinner.TickMsg:
		if m.activeStream == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SurfaceChangedMsg:
		if m.host != nil {
			if _, ok := m.host.Get(msg.ID); ok {
				m.chat.AppendSurface(msg.ID)
			}
		}
		m.refreshSurfaces()
		return m, nil

	case actionDoneMsg:
		if msg.Err != nil {
			m.appendError(fmt.Sprintf("%s: %s: %v", msg.SurfaceID, msg.ActionID, msg.Err))
		}
		m.refreshSurfaces()
		return m, nil

	case streamReadMsg:
		if msg.Closed {
			if m.recorder != nil {
				if err := m.recorder.Finalize(m.ctx); err != nil {
					m.appendError(err.Error())
				}
			}
			m.flushReply()
			m.activeStream = nil
			if m.status.State != "error" {
				m.setState("idle")
			}
			m.refreshSurfaces()
			return m, nil
		}
		m.consumeEvent(msg.Event)
		if m.activeStream != nil {
			return m, readStream(m.activeStream)
		}
		return m, nil
	}
	return m, nil
}

func (m *App) View() string {
	width := m.width
	if width <= 0 {
		width = defaultAppWidth
	}
	m.keys.Focused = m.focus != ""
	if m.activeStream != nil {
		m.status.Spinner = m.spinner.View()
	} else {
		m.status.Spinner = ""
	}
	return strings.Join([]string{
		m.status.Render(width, m.theme),
		m.renderBody(width),
		m.input.Render(width),
		m.help.View(m.keys),
	}, "\n")
}

// Focus is the id of the surface that owns the keyboard, or "".
func (m *App) Focus() string { return m.focus }

func (m *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.assistant != nil && m.activeStream != nil {
			m.assistant.Cancel()
		}
		return tea.Quit
	case key.Matches(msg, m.keys.Inspect):
		m.showInspector = !m.showInspector
		return nil
	case msg.String() == "tab":
		return m.cycleFocus(1)
	case msg.String() == "shift+tab":
		return m.cycleFocus(-1)
	}

	if m.focus != "" {
		return m.handleSurfaceKey(msg)
	}

	switch msg.Type {
	case tea.KeyEsc:
		if m.assistant != nil && m.activeStream != nil {
			m.assistant.Cancel()
		}
		return nil
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Clear()
		return m.submit(text)
	case tea.KeyUp:
		m.chat.ScrollUp(1)
		return nil
	case tea.KeyDown:
		m.chat.ScrollDown(1)
		return nil
	case tea.KeyPgUp:
		m.chat.PageUp()
		return nil
	case tea.KeyPgDown:
		m.chat.PageDown()
		return nil
	case tea.KeyHome:
		m.chat.ScrollToTop()
		return nil
	case tea.KeyEnd:
		m.chat.ScrollToBottom()
		return nil
	}
	return m.input.Update(msg)
}

func (m *App) handleSurfaceKey(msg tea.KeyMsg) tea.Cmd {
	e, ok := m.host.Get(m.focus)
	if !ok {
		return m.setFocus("")
	}

	switch {
	case msg.Type == tea.KeyLeft:
		e.MoveSelection(-1)
	case msg.Type == tea.KeyRight:
		e.MoveSelection(1)
	case msg.Type == tea.KeyEnter:
		if id := e.SelectedAction(); id != "" {
			return m.invoke(e.ID, id)
		}
	case msg.Type == tea.KeyEsc:
		if !m.host.Escape(e.ID) {
			return m.setFocus("")
		}
	case key.Matches(msg, m.keys.Sort):
		if e.Table != nil {
			n := int(msg.String()[0] - '1')
			if _, err := e.Table.ClickHeaderAt(n); err != nil {
				logx.WithSurface(logx.Ctx(m.ctx), e.ID, string(e.Kind)).Debug("header click ignored", "err", err)
			}
		}
	case msg.Type == tea.KeyUp && e.Table != nil:
		e.Table.MoveCursor(-1)
	case msg.Type == tea.KeyDown && e.Table != nil:
		e.Table.MoveCursor(1)
	case key.Matches(msg, m.keys.Toggle) && e.Table != nil:
		e.Table.ToggleCursor()
	}
	return nil
}

// invoke presses an action off the update loop; resolvers may block.
func (m *App) invoke(surfaceID, actionID string) tea.Cmd {
	host, ctx := m.host, m.ctx
	return func() tea.Msg {
		res, err := host.Invoke(ctx, surfaceID, actionID)
		return actionDoneMsg{SurfaceID: surfaceID, ActionID: actionID, Result: res, Err: err}
	}
}

// cycleFocus walks input, then each surface in transcript order.
func (m *App) cycleFocus(delta int) tea.Cmd {
	stops := []string{""}
	if m.host != nil {
		for _, id := range m.chat.SurfaceIDs() {
			if _, ok := m.host.Get(id); ok {
				stops = append(stops, id)
			}
		}
	}
	if len(stops) == 1 {
		return nil
	}
	pos := 0
	for i, id := range stops {
		if id == m.focus {
			pos = i
		}
	}
	pos = ((pos+delta)%len(stops) + len(stops)) % len(stops)
	return m.setFocus(stops[pos])
}

func (m *App) setFocus(id string) tea.Cmd {
	m.focus = id
	if id == "" {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m *App) submit(text string) tea.Cmd {
	if text == "" {
		return nil
	}
	if isSlashCommand(text) {
		m.runCommand(text)
		return nil
	}
	if m.assistant == nil {
		m.appendError("no assistant configured")
		return nil
	}
	if m.activeStream != nil {
		m.appendError("assistant is still replying; press esc to stop it")
		return nil
	}

	m.chat.Append("user", text)
	m.chat.ScrollToBottom()
	m.inspector.IncrementTurn()
	if m.recorder != nil {
		if err := m.recorder.RecordUser(m.ctx, text); err != nil {
			m.appendError(err.Error())
		}
	}

	stream, err := m.assistant.Send(m.ctx, text)
	if err != nil {
		m.appendError(err.Error())
		return nil
	}
	m.activeStream = stream
	m.setState("streaming")
	return tea.Batch(readStream(stream), m.spinner.Tick)
}

func (m *App) runCommand(text string) {
	var entries []*surface.Entry
	if m.host != nil {
		entries = m.host.List()
	}
	executeSlashCommand(text, commandEnv{
		Context:      m.ctx,
		SessionID:    m.status.SessionID,
		Sessions:     m.sessions,
		Surfaces:     entries,
		Usage:        m.inspector.Usage,
		Turns:        m.inspector.Turn,
		ActiveStream: m.activeStream != nil,
		ClearChat: func() {
			m.chat.Clear()
			m.focus = ""
		},
		AppendAssistant: func(text string) { m.chat.Append("assistant", text) },
		AppendError:     m.appendError,
	})
	m.chat.ScrollToBottom()
}

func readStream(stream <-chan llm.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-stream
		if !ok {
			return streamReadMsg{Closed: true}
		}
		return streamReadMsg{Event: ev}
	}
}

func (m *App) consumeEvent(ev llm.Event) {
	if m.recorder != nil {
		if err := m.recorder.RecordEvent(m.ctx, ev); err != nil {
			m.appendError(err.Error())
		}
	}

	switch ev.Type {
	case llm.EventStart, llm.EventTextDelta:
		m.reply.WriteString(ev.TextDelta)
		m.setState("streaming")
	case llm.EventToolCallEnd:
		if ev.ToolCall != nil {
			m.inspector.RecordToolCall(ev.ToolCall.Name)
		}
	case llm.EventToolResult:
		m.showToolResult(ev.ToolResult)
	case llm.EventDone:
		m.flushReply()
		if ev.Done != nil {
			m.inspector.AddUsage(ev.Done.Usage)
			if ev.Done.Reason == llm.StopReasonToolUse {
				m.setState("tool_executing")
				return
			}
		}
		m.setState("idle")
	case llm.EventError:
		m.flushReply()
		if ev.Done != nil && ev.Done.Reason == llm.StopReasonAborted {
			m.chat.Append("assistant", "(stopped)")
			m.setState("idle")
			return
		}
		errText := "stream error"
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		m.appendError(errText)
	}
}

// showToolResult puts failed surface payloads in the transcript as their
// fallback block. Successful surface tools already appeared via the host.
func (m *App) showToolResult(res *llm.ToolResult) {
	if res == nil {
		return
	}
	kind, isSurface := tools.SurfaceKindOf(res.ToolName)
	switch {
	case isSurface && res.IsError:
		m.chat.AppendFallback(kind, errors.New(strings.TrimPrefix(res.Content, "error: ")))
	case !isSurface:
		m.chat.Append("tool", res.ToolName+": "+res.Content)
	}
}

func (m *App) flushReply() {
	m.chat.Append("assistant", m.reply.String())
	m.reply.Reset()
}

func (m *App) appendError(text string) {
	m.chat.Append("error", text)
	m.setState("error")
}

func (m *App) setState(state string) {
	m.status.SetState(state)
	m.inspector.SetState(state)
}

func (m *App) refreshSurfaces() {
	if m.host == nil {
		return
	}
	m.inspector.CountSurfaces(m.host.List())
	m.status.Surfaces = m.host.Len()
	m.status.Pending = m.inspector.Pending
}

// rebuildChat restores the transcript of a resumed session.
func (m *App) rebuildChat(entries []session.Entry) {
	for _, e := range entries {
		switch e.Type {
		case session.TypeUser:
			m.chat.Append("user", e.Content)
			m.inspector.IncrementTurn()
		case session.TypeAssistant:
			m.chat.Append("assistant", e.Content)
		case session.TypeSurface:
			if m.host != nil {
				if _, ok := m.host.Get(e.SurfaceID); ok {
					m.chat.AppendSurface(e.SurfaceID)
				}
			}
		case session.TypeToolResult:
			m.showToolResult(&llm.ToolResult{ToolName: e.Name, Content: e.Content, IsError: e.IsError})
		}
	}
}

func (m *App) painter() SurfacePainter {
	if m.host == nil {
		return nil
	}
	return m.host
}

func (m *App) renderBody(width int) string {
	m.chat.SetViewportHeight(m.chatViewportHeight())
	if !m.showInspector {
		return m.chat.Render(width, m.theme, m.painter(), m.focus)
	}

	inspectorWidth := min(defaultInspectorWidth, width/3)
	inspectorWidth = max(inspectorWidth, minimumInspectorVisible)
	chatWidth := width - inspectorWidth - 1
	if chatWidth < minimumChatPanelWidth {
		chatWidth = minimumChatPanelWidth
		inspectorWidth = max(width-chatWidth-1, 0)
	}

	chatView := m.chat.Render(chatWidth, m.theme, m.painter(), m.focus)
	if inspectorWidth <= 0 {
		return chatView
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chatView, m.inspector.Render(inspectorWidth, m.theme))
}

func (m *App) chatViewportHeight() int {
	if m.height <= 0 {
		return 0
	}
	const nonBodyRows = 3 // status, input, help
	contentHeight := m.height - nonBodyRows - m.theme.PanelStyle.GetVerticalFrameSize()
	return max(contentHeight, 1)
}
