package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

const defaultChatLimit = 500

// ChatItem is one transcript entry: a text message, a live surface, or the
// fallback block of a payload that never became a surface.
type ChatItem struct {
	Role      string
	Content   string
	SurfaceID string
	Fallback  *FallbackItem
}

// FallbackItem is a surface payload rejected before it could be added.
type FallbackItem struct {
	Kind schema.SurfaceKind
	Err  error
}

// SurfacePainter paints a surface by id.
type SurfacePainter interface {
	Render(id string, opts surface.RenderOptions) string
}

// ChatModel stores the transcript and its scroll position.
type ChatModel struct {
	items    []ChatItem
	maxItems int

	// viewportHeight is the number of visible lines; 0 means unconstrained.
	viewportHeight int
	scrollTop      int
	follow         bool
	lineCount      int
}

func NewChatModel(maxItems int) ChatModel {
	if maxItems <= 0 {
		maxItems = defaultChatLimit
	}
	return ChatModel{maxItems: maxItems, follow: true}
}

// Append records a text message. Blank content is ignored.
func (m *ChatModel) Append(role, content string) {
	text := strings.TrimSpace(content)
	if text == "" {
		return
	}
	m.push(ChatItem{Role: strings.TrimSpace(role), Content: text})
}

// AppendSurface places a surface in the transcript once.
func (m *ChatModel) AppendSurface(id string) bool {
	if id == "" || m.HasSurface(id) {
		return false
	}
	m.push(ChatItem{Role: "surface", SurfaceID: id})
	return true
}

func (m *ChatModel) AppendFallback(kind schema.SurfaceKind, err error) {
	if err == nil {
		return
	}
	m.push(ChatItem{Role: "surface", Fallback: &FallbackItem{Kind: kind, Err: err}})
}

func (m *ChatModel) push(item ChatItem) {
	m.items = append(m.items, item)
	if overflow := len(m.items) - m.maxItems; overflow > 0 {
		m.items = append([]ChatItem(nil), m.items[overflow:]...)
	}
}

func (m ChatModel) Items() []ChatItem {
	return append([]ChatItem(nil), m.items...)
}

func (m ChatModel) HasSurface(id string) bool {
	for _, item := range m.items {
		if item.SurfaceID == id {
			return true
		}
	}
	return false
}

// SurfaceIDs lists the transcript's surfaces in display order.
func (m ChatModel) SurfaceIDs() []string {
	var ids []string
	for _, item := range m.items {
		if item.SurfaceID != "" {
			ids = append(ids, item.SurfaceID)
		}
	}
	return ids
}

func (m *ChatModel) Clear() {
	m.items = nil
	m.scrollTop = 0
	m.follow = true
}

func (m *ChatModel) SetViewportHeight(height int) {
	m.viewportHeight = max(height, 0)
	m.clampScrollTop()
}

func (m *ChatModel) ScrollUp(lines int) {
	if lines <= 0 {
		return
	}
	if m.follow {
		m.scrollTop = m.maxScrollTop()
		m.follow = false
	}
	m.scrollTop -= lines
	m.clampScrollTop()
}

func (m *ChatModel) ScrollDown(lines int) {
	if lines <= 0 || m.follow {
		return
	}
	m.scrollTop += lines
	if m.scrollTop >= m.maxScrollTop() {
		m.ScrollToBottom()
	}
}

func (m *ChatModel) PageUp() { m.ScrollUp(m.pageStep()) }

func (m *ChatModel) PageDown() { m.ScrollDown(m.pageStep()) }

func (m *ChatModel) ScrollToTop() {
	m.follow = false
	m.scrollTop = 0
}

// ScrollToBottom jumps to the newest lines and keeps following them.
func (m *ChatModel) ScrollToBottom() {
	m.follow = true
	m.scrollTop = m.maxScrollTop()
}

// Render draws the transcript inside a panel. focused names the surface
// that owns the keyboard, if any.
func (m *ChatModel) Render(width int, theme Theme, painter SurfacePainter, focused string) string {
	if len(m.items) == 0 {
		m.lineCount = 0
		return renderPanel(width, theme.PanelStyle, "No messages yet.")
	}

	inner := 0
	if width > 0 {
		inner = max(width-theme.PanelStyle.GetHorizontalFrameSize(), 1)
	}

	var lines []string
	for _, item := range m.items {
		switch {
		case item.SurfaceID != "":
			mark := "  "
			if item.SurfaceID == focused {
				mark = theme.FocusMarkStyle.Render("▶ ")
			}
			lines = append(lines, mark+theme.ToolPrefixStyle.Render(item.SurfaceID))
			if painter != nil {
				body := painter.Render(item.SurfaceID, surface.RenderOptions{
					Width:   max(inner-2, 0),
					Theme:   theme.Surface,
					Focused: item.SurfaceID == focused,
				})
				lines = append(lines, indent(body, "  ")...)
			}
		case item.Fallback != nil:
			body := surface.FallbackFor(item.Fallback.Kind, item.Fallback.Err, surface.RenderOptions{
				Width: max(inner-2, 0),
				Theme: theme.Surface,
			})
			lines = append(lines, indent(body, "  ")...)
		default:
			prefix, style := rolePrefix(item.Role, theme)
			raw := strings.Split(item.Content, "\n")
			lines = append(lines, style.Render(prefix)+" "+raw[0])
			lines = append(lines, raw[1:]...)
		}
	}

	m.lineCount = len(lines)
	if m.viewportHeight > 0 && len(lines) > m.viewportHeight {
		start := m.scrollTop
		if m.follow {
			start = m.maxScrollTop()
		}
		start = min(max(start, 0), m.maxScrollTop())
		lines = lines[start : start+m.viewportHeight]
	}
	return renderPanel(width, theme.PanelStyle, strings.Join(lines, "\n"))
}

func indent(block, pad string) []string {
	if block == "" {
		return nil
	}
	lines := strings.Split(block, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return lines
}

func rolePrefix(role string, theme Theme) (string, lipgloss.Style) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant":
		return "assistant:", theme.AssistantPrefixStyle
	case "tool":
		return "tool:", theme.ToolPrefixStyle
	case "error":
		return "error:", theme.ErrorPrefixStyle
	default:
		return "user:", theme.UserPrefixStyle
	}
}

func renderPanel(width int, style lipgloss.Style, content string) string {
	if width > 0 {
		return style.Width(width).Render(content)
	}
	return style.Render(content)
}

func (m *ChatModel) pageStep() int {
	if m.viewportHeight <= 0 {
		return 10
	}
	return m.viewportHeight
}

func (m *ChatModel) maxScrollTop() int {
	if m.viewportHeight <= 0 {
		return 0
	}
	return max(m.lineCount-m.viewportHeight, 0)
}

func (m *ChatModel) clampScrollTop() {
	m.scrollTop = min(max(m.scrollTop, 0), m.maxScrollTop())
}
