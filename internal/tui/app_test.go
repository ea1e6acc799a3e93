package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"loom/internal/llm"
	"loom/internal/session"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

const ordersTable = `{
	"surface": "data-table",
	"id": "orders",
	"columns": [
		{"key": "sku", "label": "SKU"},
		{"key": "qty", "label": "Quantity"}
	],
	"data": [{"sku": "B-7", "qty": 12}, {"sku": "A-10", "qty": 4}]
}`

const payrollApproval = `{
	"surface": "approval",
	"id": "payroll-run",
	"title": "Run payroll for week 41?",
	"actions": [
		{"id": "cancel", "label": "Not now"},
		{"id": "run", "label": "Run payroll", "confirmLabel": "Really run?", "variant": "destructive"}
	]
}`

type fakeAssistant struct {
	sent      []string
	cancelled int
	events    []llm.Event
	err       error
}

func (a *fakeAssistant) Send(_ context.Context, text string) (<-chan llm.Event, error) {
	a.sent = append(a.sent, text)
	if a.err != nil {
		return nil, a.err
	}
	ch := make(chan llm.Event, len(a.events))
	for _, ev := range a.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (a *fakeAssistant) Cancel() { a.cancelled++ }

func typeText(app *App, text string) {
	for _, r := range text {
		app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

// pump feeds the active stream to the app the way the readStream command
// would, until it closes.
func pump(t *testing.T, app *App) {
	t.Helper()
	stream := app.activeStream
	if stream == nil {
		t.Fatalf("no active stream")
	}
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				app.Update(streamReadMsg{Closed: true})
				return
			}
			app.Update(streamReadMsg{Event: ev})
		case <-time.After(time.Second):
			t.Fatalf("stream did not close")
		}
	}
}

func newTestApp(t *testing.T, assistant Assistant, host *surface.Host) *App {
	t.Helper()
	return NewApp(Config{
		Version:   "test",
		ModelName: "claude-sonnet-4-5",
		ThemeName: "plain",
		Assistant: assistant,
		Host:      host,
	})
}

func addSurface(t *testing.T, app *App, host *surface.Host, raw string) *surface.Entry {
	t.Helper()
	e, err := host.Add(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	app.Update(SurfaceChangedMsg{ID: e.ID})
	return e
}

func TestAppSubmitsAndShowsReply(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{events: []llm.Event{
		{Type: llm.EventStart},
		{Type: llm.EventTextDelta, TextDelta: "Nine open "},
		{Type: llm.EventTextDelta, TextDelta: "orders."},
		{Type: llm.EventDone, Done: &llm.Done{Reason: llm.StopReasonStop, Usage: llm.Usage{InputTokens: 10, OutputTokens: 4}}},
	}}
	app := newTestApp(t, assistant, surface.NewHost())

	typeText(app, "open orders?")
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(assistant.sent) != 1 || assistant.sent[0] != "open orders?" {
		t.Fatalf("sent = %q", assistant.sent)
	}
	if app.input.Value() != "" {
		t.Fatalf("input was not cleared")
	}
	pump(t, app)

	items := app.chat.Items()
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Role != "user" || items[1].Role != "assistant" || items[1].Content != "Nine open orders." {
		t.Fatalf("items = %+v", items)
	}
	if app.status.State != "idle" {
		t.Fatalf("state = %q, want idle", app.status.State)
	}
	if app.inspector.Usage.Total() != 14 || app.inspector.Turn != 1 {
		t.Fatalf("inspector = %+v", app.inspector)
	}
	if app.activeStream != nil {
		t.Fatalf("stream still active")
	}
}

func TestAppIgnoresBlankSubmitAndReportsSendError(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{err: errors.New("provider offline")}
	app := newTestApp(t, assistant, surface.NewHost())

	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(assistant.sent) != 0 {
		t.Fatalf("blank input was sent")
	}

	typeText(app, "hi")
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	items := app.chat.Items()
	last := items[len(items)-1]
	if last.Role != "error" || last.Content != "provider offline" {
		t.Fatalf("last item = %+v", last)
	}
	if app.status.State != "error" {
		t.Fatalf("state = %q, want error", app.status.State)
	}
}

func TestAppAbortedStreamIsShownAsStopped(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{events: []llm.Event{
		{Type: llm.EventTextDelta, TextDelta: "Let me"},
		llm.Aborted(context.Canceled),
	}}
	app := newTestApp(t, assistant, surface.NewHost())
	typeText(app, "hi")
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	pump(t, app)

	items := app.chat.Items()
	var contents []string
	for _, item := range items {
		contents = append(contents, item.Content)
	}
	if strings.Join(contents, "|") != "hi|Let me|(stopped)" {
		t.Fatalf("contents = %q", contents)
	}
	if app.status.State != "idle" {
		t.Fatalf("state = %q, want idle", app.status.State)
	}
}

func TestAppEscCancelsActiveReply(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{events: []llm.Event{{Type: llm.EventStart}}}
	app := newTestApp(t, assistant, surface.NewHost())
	typeText(app, "hi")
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})

	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if assistant.cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", assistant.cancelled)
	}
}

func TestAppShowsFallbackForRejectedPayload(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil, surface.NewHost())
	app.consumeEvent(llm.Event{Type: llm.EventToolResult, ToolResult: &llm.ToolResult{
		ToolCallID: "call-1",
		ToolName:   "show_table",
		Content:    "error: invalid data-table payload: columns: must not be empty",
		IsError:    true,
	}})

	items := app.chat.Items()
	if len(items) != 1 || items[0].Fallback == nil {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Fallback.Kind != schema.SurfaceDataTable {
		t.Fatalf("fallback kind = %q", items[0].Fallback.Kind)
	}
	if got := items[0].Fallback.Err.Error(); got != "invalid data-table payload: columns: must not be empty" {
		t.Fatalf("fallback error = %q", got)
	}
	if view := app.View(); !strings.Contains(view, "DataTable") {
		t.Fatalf("view does not name the component:\n%s", view)
	}
}

func TestAppSurfaceChangedAppendsOnce(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	app := newTestApp(t, nil, host)
	addSurface(t, app, host, ordersTable)
	app.Update(SurfaceChangedMsg{ID: "orders"})
	app.Update(SurfaceChangedMsg{ID: "missing"})

	if ids := app.chat.SurfaceIDs(); len(ids) != 1 || ids[0] != "orders" {
		t.Fatalf("SurfaceIDs() = %q", ids)
	}
	if app.status.Surfaces != 1 {
		t.Fatalf("status surfaces = %d", app.status.Surfaces)
	}
	if view := app.View(); !strings.Contains(view, "A-10") {
		t.Fatalf("view misses table rows:\n%s", view)
	}
}

func TestAppTabCyclesFocus(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	app := newTestApp(t, nil, host)
	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	if app.Focus() != "" {
		t.Fatalf("focus moved with no surfaces")
	}

	addSurface(t, app, host, ordersTable)
	addSurface(t, app, host, payrollApproval)

	var seen []string
	for range 3 {
		app.Update(tea.KeyMsg{Type: tea.KeyTab})
		seen = append(seen, app.Focus())
	}
	if strings.Join(seen, ",") != "orders,payroll-run," {
		t.Fatalf("focus order = %q", seen)
	}
	if !app.input.Focused() {
		t.Fatalf("input did not regain focus")
	}

	app.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if app.Focus() != "payroll-run" {
		t.Fatalf("shift+tab focus = %q", app.Focus())
	}
	if app.input.Focused() {
		t.Fatalf("input kept focus while a surface is focused")
	}
}

func TestAppDigitSortsFocusedTable(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	app := newTestApp(t, nil, host)
	e := addSurface(t, app, host, ordersTable)
	app.Update(tea.KeyMsg{Type: tea.KeyTab})

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	if got := e.Table.Sort(); got.By != "qty" || got.Direction != schema.SortAsc {
		t.Fatalf("sort = %+v", got)
	}
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("9")})
	if got := e.Table.Sort(); got.By != "qty" {
		t.Fatalf("out of range header changed sort: %+v", got)
	}
	if app.input.Value() != "" {
		t.Fatalf("digits leaked into the input: %q", app.input.Value())
	}
}

func TestAppInvokesApprovalAction(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	app := newTestApp(t, nil, host)
	e := addSurface(t, app, host, payrollApproval)
	app.Update(tea.KeyMsg{Type: tea.KeyTab})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("enter on a focused surface returned no command")
	}
	msg := cmd()
	done, ok := msg.(actionDoneMsg)
	if !ok {
		t.Fatalf("command message = %T", msg)
	}
	if done.Err != nil || done.ActionID != "cancel" {
		t.Fatalf("actionDoneMsg = %+v", done)
	}
	app.Update(done)

	r := e.Receipt()
	if r == nil || r.Outcome != schema.OutcomeCancelled {
		t.Fatalf("receipt = %+v", r)
	}
	if app.inspector.Receipts != 1 || app.status.Pending != 0 {
		t.Fatalf("inspector = %+v, pending = %d", app.inspector, app.status.Pending)
	}
}

func TestAppEscLeavesIdleSurface(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	app := newTestApp(t, nil, host)
	e := addSurface(t, app, host, payrollApproval)
	app.Update(tea.KeyMsg{Type: tea.KeyTab})

	app.Update(tea.KeyMsg{Type: tea.KeyRight})
	if e.SelectedAction() != "run" {
		t.Fatalf("selected = %q", e.SelectedAction())
	}
	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if app.Focus() != "" {
		t.Fatalf("focus = %q, want input", app.Focus())
	}
}

func TestAppRebuildsResumedTranscript(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	if _, err := host.Add(context.Background(), []byte(ordersTable)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	app := NewApp(Config{ThemeName: "plain", Host: host, Transcript: []session.Entry{
		{Type: session.TypeUser, Content: "orders?"},
		{Type: session.TypeAssistant, Content: "Here they are."},
		{Type: session.TypeSurface, SurfaceID: "orders"},
		{Type: session.TypeSurface, SurfaceID: "gone"},
		{Type: session.TypeToolResult, Name: "show_stats", Content: "error: invalid stats-display payload: stats: required", IsError: true},
	}})

	items := app.chat.Items()
	if len(items) != 4 {
		t.Fatalf("items = %+v", items)
	}
	if items[2].SurfaceID != "orders" || items[3].Fallback == nil || items[3].Fallback.Kind != schema.SurfaceStats {
		t.Fatalf("items = %+v", items)
	}
	if app.inspector.Turn != 1 || app.status.Surfaces != 1 {
		t.Fatalf("turn = %d, surfaces = %d", app.inspector.Turn, app.status.Surfaces)
	}
}

func TestAppInspectorToggle(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil, surface.NewHost())
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	if strings.Contains(app.View(), "Receipts:") {
		t.Fatalf("inspector shown before toggle")
	}
	app.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	if !strings.Contains(app.View(), "Receipts:") {
		t.Fatalf("inspector hidden after toggle")
	}
}
