package surface

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"loom/internal/toolui/action"
	"loom/internal/toolui/render"
	"loom/internal/toolui/schema"
)

const ordersTable = `{
	"surface": "data-table",
	"id": "orders",
	"columns": [
		{"key": "sku", "label": "SKU"},
		{"key": "qty", "label": "Quantity"}
	],
	"data": [{"sku": "A-10", "qty": 4}, {"sku": "B-7", "qty": 12}],
	"actions": [{"id": "export", "label": "Export"}]
}`

const payrollApproval = `{
	"surface": "approval",
	"id": "payroll-run",
	"title": "Run payroll for week 41?",
	"description": "Pays 14 seamstresses a total of $18,250.50.",
	"actions": [
		{"id": "cancel", "label": "Not now"},
		{"id": "run", "label": "Run payroll", "confirmLabel": "Really run?", "variant": "destructive"}
	]
}`

type manualTimer struct{ stopped bool }

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) action.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
	return &manualTimer{}
}

var fixedNow = time.Date(2026, 10, 12, 9, 30, 15, 500, time.UTC)

func newHost(t *testing.T, opts ...Option) *Host {
	t.Helper()
	base := []Option{
		WithScheduler(&manualScheduler{}),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewHost(append(base, opts...)...)
}

func TestAddBuildsModels(t *testing.T) {
	t.Parallel()

	var changed []string
	h := newHost(t, OnChange(func(id string) { changed = append(changed, id) }))
	ctx := context.Background()

	e, err := h.Add(ctx, []byte(ordersTable))
	require.NoError(t, err)
	assert.Equal(t, "orders", e.ID)
	assert.Equal(t, schema.SurfaceDataTable, e.Kind)
	require.NotNil(t, e.Table)
	require.NotNil(t, e.Actions)
	assert.Nil(t, e.Stats)

	_, err = h.Add(ctx, []byte(`{"surface":"stats-display","id":"wk","stats":[{"key":"k","label":"K","value":1}]}`))
	require.NoError(t, err)

	assert.Equal(t, 2, h.Len())
	ids := []string{}
	for _, e := range h.List() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"orders", "wk"}, ids)
	assert.Equal(t, []string{"orders", "wk"}, changed)
}

func TestAddRejectsDuplicatesAndInvalid(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(ordersTable))
	require.NoError(t, err)

	_, err = h.Add(ctx, []byte(ordersTable))
	require.ErrorIs(t, err, ErrDuplicateSurface)

	_, err = h.Add(ctx, []byte(`{"surface":"data-table","id":"bad","columns":[]}`))
	require.ErrorIs(t, err, schema.ErrInvalidPayload)
	_, ok := h.Get("bad")
	assert.False(t, ok, "invalid payloads are never stored")
	assert.Equal(t, 1, h.Len())
}

func TestFallbackNamesTheSurface(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"surface":"stats-display","id":"s","stats":[]}`)
	_, err := NewHost().Add(context.Background(), raw)
	require.Error(t, err)

	out := ansi.Strip(Fallback(raw, err, RenderOptions{Theme: render.Plain()}))
	assert.Contains(t, out, "StatsDisplay failed to render: invalid stats-display payload")
	assert.Contains(t, ansi.Strip(Fallback([]byte(`{}`), errors.New("x"), RenderOptions{Theme: render.Plain()})), "ToolUI failed to render: x")
}

func TestApprovalSettlesWithReceipt(t *testing.T) {
	t.Parallel()

	var resolved []Resolution
	h := newHost(t, WithResolver(func(_ context.Context, r Resolution) error {
		resolved = append(resolved, r)
		return nil
	}))
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(payrollApproval))
	require.NoError(t, err)

	res, err := h.Invoke(ctx, "payroll-run", "run")
	require.NoError(t, err)
	assert.Equal(t, action.Confirming, res)

	res, err = h.Invoke(ctx, "payroll-run", "run")
	require.NoError(t, err)
	assert.Equal(t, action.Executed, res)

	id, err := h.Await(ctx, "payroll-run")
	require.NoError(t, err)
	assert.Equal(t, "run", id)
	assert.Equal(t, []Resolution{{SurfaceID: "payroll-run", ActionID: "run"}}, resolved)

	e, _ := h.Get("payroll-run")
	r := e.Receipt()
	require.NotNil(t, r)
	assert.Equal(t, schema.OutcomeSuccess, r.Outcome)
	assert.Equal(t, "Run payroll", r.Summary)
	assert.Equal(t, map[string]string{"action": "run"}, r.Identifiers)
	assert.Equal(t, fixedNow.Truncate(time.Second), r.At)

	assert.Equal(t, "success", gjson.GetBytes(e.Raw(), "receipt.outcome").String())
	assert.Equal(t, "Run payroll for week 41?", gjson.GetBytes(e.Raw(), "title").String())

	res, err = h.Invoke(ctx, "payroll-run", "cancel")
	require.NoError(t, err)
	assert.Equal(t, action.Dropped, res, "actions close once a receipt lands")
}

func TestApprovalCancelAndFailureOutcomes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	h := newHost(t)
	_, err := h.Add(ctx, []byte(payrollApproval))
	require.NoError(t, err)
	_, err = h.Invoke(ctx, "payroll-run", "cancel")
	require.NoError(t, err)
	e, _ := h.Get("payroll-run")
	require.NotNil(t, e.Receipt())
	assert.Equal(t, schema.OutcomeCancelled, e.Receipt().Outcome)
	assert.Equal(t, "Not now", e.Receipt().Summary)

	boom := errors.New("backend unavailable")
	h = newHost(t, WithResolver(func(context.Context, Resolution) error { return boom }))
	_, err = h.Add(ctx, []byte(payrollApproval))
	require.NoError(t, err)
	_, _ = h.Invoke(ctx, "payroll-run", "run")
	res, err := h.Invoke(ctx, "payroll-run", "run")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, action.Executed, res)
	e, _ = h.Get("payroll-run")
	require.NotNil(t, e.Receipt())
	assert.Equal(t, schema.OutcomeFailed, e.Receipt().Outcome)
	assert.Equal(t, "Run payroll: backend unavailable", e.Receipt().Summary)
}

func TestReceiptIsAttachedOnce(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(ordersTable))
	require.NoError(t, err)
	e, _ := h.Get("orders")
	before := e.Fingerprint()

	r := schema.Receipt{Outcome: schema.OutcomePartial, Summary: "Exported 2 of 3 rows", At: fixedNow.Truncate(time.Second)}
	require.NoError(t, h.AttachReceipt(ctx, "orders", r))
	assert.NotEqual(t, before, e.Fingerprint())
	assert.Equal(t, "partial", gjson.GetBytes(e.Raw(), "receipt.outcome").String())

	err = h.AttachReceipt(ctx, "orders", schema.Receipt{Outcome: schema.OutcomeSuccess, Summary: "again", At: fixedNow})
	require.ErrorIs(t, err, ErrReceiptExists)
	assert.Equal(t, "Exported 2 of 3 rows", e.Receipt().Summary)

	require.ErrorIs(t, h.AttachReceipt(ctx, "nope", r), ErrUnknownSurface)
}

func TestInvalidReceiptLeavesPayloadUntouched(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(ordersTable))
	require.NoError(t, err)

	err = h.AttachReceipt(ctx, "orders", schema.Receipt{Outcome: "maybe", Summary: "x", At: fixedNow})
	require.ErrorIs(t, err, schema.ErrInvalidPayload)
	e, _ := h.Get("orders")
	assert.Nil(t, e.Receipt())
	assert.False(t, gjson.GetBytes(e.Raw(), "receipt").Exists())
}

func TestAwaitHonoursContext(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	_, err := h.Add(context.Background(), []byte(payrollApproval))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.Await(ctx, "payroll-run")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = h.Await(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownSurface)
}

func TestInvokeErrors(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(`{"surface":"stats-display","id":"wk","stats":[{"key":"k","label":"K","value":1}]}`))
	require.NoError(t, err)

	_, err = h.Invoke(ctx, "wk", "export")
	require.ErrorIs(t, err, ErrNoActions)
	_, err = h.Invoke(ctx, "nope", "export")
	require.ErrorIs(t, err, ErrUnknownSurface)
	assert.False(t, h.Escape("wk"))
}

func TestSelectionWraps(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	e, err := h.Add(context.Background(), []byte(payrollApproval))
	require.NoError(t, err)

	assert.Equal(t, "cancel", e.SelectedAction())
	e.MoveSelection(1)
	assert.Equal(t, "run", e.SelectedAction())
	e.MoveSelection(1)
	assert.Equal(t, "cancel", e.SelectedAction())
	e.MoveSelection(-1)
	assert.Equal(t, "run", e.SelectedAction())
}

func TestRenderApprovalAndReceipt(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(payrollApproval))
	require.NoError(t, err)

	opts := RenderOptions{Width: 60, Theme: render.Plain(), Focused: true}
	out := ansi.Strip(h.Render("payroll-run", opts))
	assert.Contains(t, out, "Run payroll for week 41?")
	assert.Contains(t, out, "[Not now]")
	assert.Contains(t, out, "[Run payroll]")

	_, err = h.Invoke(ctx, "payroll-run", "cancel")
	require.NoError(t, err)
	out = ansi.Strip(h.Render("payroll-run", opts))
	assert.Contains(t, out, "⊘ Not now · action: cancel · 2026-10-12 09:30 UTC")
	assert.NotContains(t, out, "[Run payroll]")

	assert.Empty(t, h.Render("missing", opts))
}

func TestRenderTableWithFooter(t *testing.T) {
	t.Parallel()

	h := newHost(t)
	_, err := h.Add(context.Background(), []byte(ordersTable))
	require.NoError(t, err)

	out := ansi.Strip(h.Render("orders", RenderOptions{Width: 100, Theme: render.Plain()}))
	assert.Contains(t, out, "A-10")
	assert.Contains(t, out, "Quantity")
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, " \n"), "[Export]"))
}

func TestRenderFailureIsContained(t *testing.T) {
	t.Parallel()

	var failures []string
	h := newHost(t, OnRenderFailure(func(name string, err error) { failures = append(failures, name+": "+err.Error()) }))
	raw := `{"surface":"data-table","id":"t","columns":[{"key":"n","label":"N","format":{"kind":"number"}}],"data":[{"n":"lots"}]}`
	_, err := h.Add(context.Background(), []byte(raw))
	require.NoError(t, err)

	out := ansi.Strip(h.Render("t", RenderOptions{Width: 80, Theme: render.Plain()}))
	assert.Contains(t, out, "DataTable failed to render:")
	require.Len(t, failures, 1)

	h.Render("t", RenderOptions{Width: 80, Theme: render.Plain()})
	assert.Len(t, failures, 1, "observer fires once per failure")
	e, _ := h.Get("t")
	assert.True(t, e.Failed())
}

func TestRenderStripsEscapesFromPayloadText(t *testing.T) {
	t.Parallel()

	const hostileTable = `{
		"surface": "data-table",
		"id": "hostile",
		"columns": [{"key": "note", "label": "Note\u001b[2J"}],
		"data": [{"note": "\u001b]8;;file:///etc/passwd\u0007click me\u001b]8;;\u0007 \u001b]52;c;aGk=\u0007"}],
		"actions": [{"id": "go", "label": "Go\u001b]52;c;aGk=\u0007"}]
	}`
	const hostileApproval = `{
		"surface": "approval",
		"id": "hostile-approval",
		"title": "Ship\u001b]8;;file:///etc/passwd\u0007 now",
		"description": "\u001b[2JAll stock",
		"actions": [{"id": "ok", "label": "OK"}]
	}`

	h := newHost(t)
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(hostileTable))
	require.NoError(t, err)
	_, err = h.Add(ctx, []byte(hostileApproval))
	require.NoError(t, err)

	opts := RenderOptions{Width: 80, Theme: render.Plain()}
	for _, id := range []string{"hostile", "hostile-approval"} {
		out := h.Render(id, opts)
		assert.NotContains(t, out, "\x1b]", id)
		assert.NotContains(t, out, "\x07", id)
		assert.NotContains(t, out, "\x1b[2J", id)
		assert.NotContains(t, out, "file:///etc/passwd", id)
	}
	assert.Contains(t, ansi.Strip(h.Render("hostile", opts)), "click me")
	assert.Contains(t, ansi.Strip(h.Render("hostile-approval", opts)), "Ship now")

	err = h.AttachReceipt(ctx, "hostile-approval", schema.Receipt{
		Outcome: schema.OutcomeSuccess,
		Summary: "Shipped\u001b]52;c;aGk=\u0007",
		At:      fixedNow,
	})
	require.NoError(t, err)
	out := h.Render("hostile-approval", opts)
	assert.NotContains(t, out, "\x1b]")
	assert.Contains(t, ansi.Strip(out), "✓ Shipped")
}

func TestExpirePendingCancelsOpenApprovals(t *testing.T) {
	t.Parallel()

	var changed []string
	h := newHost(t, OnChange(func(id string) { changed = append(changed, id) }))
	ctx := context.Background()
	_, err := h.Add(ctx, []byte(ordersTable))
	require.NoError(t, err)
	_, err = h.Add(ctx, []byte(payrollApproval))
	require.NoError(t, err)
	changed = nil

	expired, err := h.ExpirePending(ctx, "Not decided in time")
	require.NoError(t, err)
	assert.Equal(t, []string{"payroll-run"}, expired)
	assert.Equal(t, []string{"payroll-run"}, changed)

	e, _ := h.Get("payroll-run")
	require.NotNil(t, e.Receipt())
	assert.Equal(t, schema.OutcomeCancelled, e.Receipt().Outcome)
	assert.True(t, fixedNow.Truncate(time.Second).Equal(e.Receipt().At))
	assert.Contains(t, ansi.Strip(h.Render("payroll-run", RenderOptions{Width: 60, Theme: render.Plain()})), "⊘ Not decided in time")

	orders, _ := h.Get("orders")
	assert.Nil(t, orders.Receipt(), "only approvals expire")

	expired, err = h.ExpirePending(ctx, "again")
	require.NoError(t, err)
	assert.Empty(t, expired)
}
