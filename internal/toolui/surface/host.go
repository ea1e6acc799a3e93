// Package surface keeps the Tool-UI surfaces of one conversation: it
// validates incoming payloads, builds their engine models, runs their action
// groups and stamps receipts once a decision settles.
package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"loom/internal/logx"
	"loom/internal/toolui/action"
	"loom/internal/toolui/boundary"
	"loom/internal/toolui/format"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/stats"
	"loom/internal/toolui/table"
)

var (
	ErrDuplicateSurface = errors.New("duplicate surface id")
	ErrUnknownSurface   = errors.New("unknown surface")
	ErrReceiptExists    = errors.New("surface already has a receipt")
	ErrNoActions        = errors.New("surface has no actions")
)

// Resolution is what a settled action reports upward: only ids.
type Resolution struct {
	SurfaceID string
	ActionID  string
}

// Resolver receives every confirmed action. Its error becomes the action's
// error and, for approvals, a failed receipt.
type Resolver func(ctx context.Context, r Resolution) error

// Journal records what happened to surfaces so a conversation can be
// replayed later.
type Journal interface {
	RecordSurface(ctx context.Context, surfaceID string, raw []byte) error
	RecordAction(ctx context.Context, r Resolution) error
	RecordReceipt(ctx context.Context, surfaceID string, r schema.Receipt) error
}

// Entry is one surface in the conversation.
type Entry struct {
	ID      string
	Kind    schema.SurfaceKind
	Table   *table.Table
	Stats   *stats.Panel
	Actions *action.Group

	boundary *boundary.Boundary
	decided  chan string

	mu          sync.Mutex
	payload     schema.Payload
	raw         []byte
	fingerprint string
	selected    int
}

// Payload is the validated payload, receipt included once attached.
func (e *Entry) Payload() schema.Payload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payload
}

// Raw is the stored payload JSON.
func (e *Entry) Raw() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.raw...)
}

// Receipt is the attached receipt, if any.
func (e *Entry) Receipt() *schema.Receipt {
	return e.Payload().Identity().Receipt
}

func (e *Entry) Fingerprint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fingerprint
}

// Selected is the focused action index.
func (e *Entry) Selected() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// MoveSelection shifts action focus by delta, wrapping around.
func (e *Entry) MoveSelection(delta int) {
	if e.Actions == nil {
		return
	}
	n := len(e.Actions.Actions())
	e.mu.Lock()
	e.selected = ((e.selected+delta)%n + n) % n
	e.mu.Unlock()
}

// SelectedAction is the id of the focused action, or "".
func (e *Entry) SelectedAction() string {
	if e.Actions == nil {
		return ""
	}
	actions := e.Actions.Actions()
	i := e.Selected()
	if i < 0 || i >= len(actions) {
		return ""
	}
	return actions[i].ID
}

// Host owns the surfaces of one conversation.
type Host struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string

	locale         string
	breakpoint     int
	confirmTimeout time.Duration
	maxVisible     int
	hyperlinks     bool
	scheduler      action.Scheduler
	guard          action.Guard
	resolver       Resolver
	journal        Journal
	onChange       func(surfaceID string)
	onFailure      boundary.Observer
	now            func() time.Time
}

type Option func(*Host)

// WithLocale sets the locale for payloads that carry none.
func WithLocale(locale string) Option {
	return func(h *Host) { h.locale = locale }
}

func WithBreakpoint(cells int) Option {
	return func(h *Host) { h.breakpoint = cells }
}

func WithConfirmTimeout(d time.Duration) Option {
	return func(h *Host) { h.confirmTimeout = d }
}

func WithMaxVisible(n int) Option {
	return func(h *Host) { h.maxVisible = n }
}

func WithHyperlinks(on bool) Option {
	return func(h *Host) { h.hyperlinks = on }
}

func WithScheduler(s action.Scheduler) Option {
	return func(h *Host) { h.scheduler = s }
}

func WithGuard(g action.Guard) Option {
	return func(h *Host) { h.guard = g }
}

func WithResolver(r Resolver) Option {
	return func(h *Host) { h.resolver = r }
}

// WithJournal records added surfaces, resolved actions and receipts.
func WithJournal(j Journal) Option {
	return func(h *Host) { h.journal = j }
}

// OnChange is called whenever a surface needs repainting, including from
// timer goroutines.
func OnChange(fn func(surfaceID string)) Option {
	return func(h *Host) { h.onChange = fn }
}

// OnRenderFailure observes contained render failures.
func OnRenderFailure(fn boundary.Observer) Option {
	return func(h *Host) { h.onFailure = fn }
}

func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHost(opts ...Option) *Host {
	h := &Host{
		entries:    make(map[string]*Entry),
		locale:     format.DefaultLocale,
		maxVisible: format.DefaultMaxVisible,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DisplayName is the component name shown in fallbacks.
func DisplayName(kind schema.SurfaceKind) string {
	switch kind {
	case schema.SurfaceDataTable:
		return "DataTable"
	case schema.SurfaceStats:
		return "StatsDisplay"
	case schema.SurfaceApproval:
		return "ApprovalPrompt"
	default:
		return "ToolUI"
	}
}

// Add validates raw and registers the surface. Nothing is stored unless the
// whole payload is valid.
func (h *Host) Add(ctx context.Context, raw []byte) (*Entry, error) {
	payload, err := schema.ParseAny(raw)
	if err != nil {
		logx.WithSurface(logx.Ctx(ctx), gjson.GetBytes(raw, "id").String(), gjson.GetBytes(raw, "surface").String()).
			Warn("tool-ui payload rejected", "err", err)
		return nil, err
	}
	id := payload.Identity().ID

	h.mu.Lock()
	if _, ok := h.entries[id]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w %q", ErrDuplicateSurface, id)
	}
	e := h.build(payload, raw)
	h.entries[id] = e
	h.order = append(h.order, id)
	h.mu.Unlock()

	log := logx.WithSurface(logx.Ctx(ctx), id, string(e.Kind))
	log.Info("tool-ui surface added")
	if h.journal != nil {
		if err := h.journal.RecordSurface(ctx, id, raw); err != nil {
			log.Warn("tool-ui surface not journaled", "err", err)
		}
	}
	h.changed(id)
	return e, nil
}

func (h *Host) formatter(locale string) *format.Formatter {
	if locale == "" {
		locale = h.locale
	}
	return format.New(locale, format.WithMaxVisible(h.maxVisible))
}

func (h *Host) build(payload schema.Payload, raw []byte) *Entry {
	id := payload.Identity().ID
	e := &Entry{
		ID:          id,
		Kind:        payload.SurfaceKind(),
		payload:     payload,
		raw:         append([]byte(nil), raw...),
		fingerprint: boundary.Fingerprint(raw),
		decided:     make(chan string, 1),
	}
	e.boundary = boundary.New(DisplayName(e.Kind), h.onFailure)

	var actions []schema.Action
	timeout := h.confirmTimeout
	switch p := payload.(type) {
	case schema.DataTable:
		e.Table = table.New(p,
			table.WithFormatter(h.formatter(p.Locale)),
			table.WithBreakpoint(h.breakpoint),
			table.WithHyperlinks(h.hyperlinks),
			table.OnSortChange(func(schema.SortState) { h.changed(id) }),
		)
		actions = p.Actions
	case schema.StatsDisplay:
		e.Stats = stats.New(p, stats.WithFormatter(h.formatter(p.Locale)))
	case schema.ApprovalPrompt:
		actions = p.Actions
		if p.ConfirmTimeoutMS > 0 {
			timeout = time.Duration(p.ConfirmTimeoutMS) * time.Millisecond
		}
	}

	if len(actions) > 0 {
		opts := []action.Option{
			action.WithConfirmTimeout(timeout),
			action.WithScheduler(h.scheduler),
			action.OnChange(func() { h.changed(id) }),
		}
		if h.guard != nil {
			opts = append(opts, action.WithGuard(h.guard))
		}
		e.Actions = action.NewGroup(actions, func(ctx context.Context, actionID string) error {
			return h.settle(ctx, e, actionID)
		}, opts...)
		if e.Receipt() != nil {
			e.Actions.Close()
		}
	}
	return e
}

// settle runs inside the action handler: report upward, stamp the approval
// receipt, then wake anyone awaiting the decision.
func (h *Host) settle(ctx context.Context, e *Entry, actionID string) error {
	log := logx.WithSurface(logx.Ctx(ctx), e.ID, string(e.Kind))
	log.Info("tool-ui action resolved", "action", actionID)

	res := Resolution{SurfaceID: e.ID, ActionID: actionID}
	if h.journal != nil {
		if jerr := h.journal.RecordAction(ctx, res); jerr != nil {
			log.Warn("tool-ui action not journaled", "err", jerr)
		}
	}
	var err error
	if h.resolver != nil {
		err = h.resolver(ctx, res)
	}
	if e.Kind == schema.SurfaceApproval {
		receipt := h.approvalReceipt(e, actionID, err)
		if rerr := h.AttachReceipt(ctx, e.ID, receipt); rerr != nil {
			log.Warn("tool-ui receipt not attached", "err", rerr)
		}
	}

	select {
	case e.decided <- actionID:
	default:
	}
	return err
}

func (h *Host) approvalReceipt(e *Entry, actionID string, err error) schema.Receipt {
	label := actionID
	if e.Actions != nil {
		for _, a := range e.Actions.Actions() {
			if a.ID == actionID && a.Label != "" {
				label = a.Label
			}
		}
	}
	r := schema.Receipt{
		Outcome:     schema.OutcomeSuccess,
		Summary:     label,
		Identifiers: map[string]string{"action": actionID},
		At:          h.now().UTC().Truncate(time.Second),
	}
	switch {
	case err != nil:
		r.Outcome = schema.OutcomeFailed
		r.Summary = label + ": " + err.Error()
	case schema.IsNegatory(actionID):
		r.Outcome = schema.OutcomeCancelled
	}
	return r
}

// ExpirePending stamps a cancelled receipt with summary on every approval
// still waiting for a decision, and returns their ids. Nothing awaits those
// decisions once the turn that asked for them is gone.
func (h *Host) ExpirePending(ctx context.Context, summary string) ([]string, error) {
	var expired []string
	var errs []error
	for _, e := range h.List() {
		if e.Kind != schema.SurfaceApproval || e.Receipt() != nil {
			continue
		}
		err := h.AttachReceipt(ctx, e.ID, schema.Receipt{
			Outcome: schema.OutcomeCancelled,
			Summary: summary,
			At:      h.now().UTC().Truncate(time.Second),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		expired = append(expired, e.ID)
	}
	return expired, errors.Join(errs...)
}

func (h *Host) changed(id string) {
	if h.onChange != nil {
		h.onChange(id)
	}
}

func (h *Host) Get(id string) (*Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[id]
	return e, ok
}

// List returns surfaces in arrival order.
func (h *Host) List() []*Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Entry, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.entries[id])
	}
	return out
}

func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

func (h *Host) lookup(id string) (*Entry, error) {
	e, ok := h.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSurface, id)
	}
	return e, nil
}

// Invoke presses an action on a surface.
func (h *Host) Invoke(ctx context.Context, surfaceID, actionID string) (action.Result, error) {
	e, err := h.lookup(surfaceID)
	if err != nil {
		return action.Dropped, err
	}
	if e.Actions == nil {
		return action.Dropped, fmt.Errorf("%w: %q", ErrNoActions, surfaceID)
	}
	res, err := e.Actions.Invoke(ctx, actionID)
	logx.WithSurface(logx.Ctx(ctx), surfaceID, string(e.Kind)).
		Debug("tool-ui action invoked", "action", actionID, "result", res.String())
	return res, err
}

// Escape cancels a pending confirmation on a surface.
func (h *Host) Escape(surfaceID string) bool {
	e, ok := h.Get(surfaceID)
	if !ok || e.Actions == nil {
		return false
	}
	return e.Actions.Escape()
}

// Await blocks until an action on the surface settles and returns its id.
func (h *Host) Await(ctx context.Context, surfaceID string) (string, error) {
	e, err := h.lookup(surfaceID)
	if err != nil {
		return "", err
	}
	select {
	case id := <-e.decided:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AttachReceipt stamps r into the stored payload. A surface takes one
// receipt; its actions close when it lands.
func (h *Host) AttachReceipt(ctx context.Context, surfaceID string, r schema.Receipt) error {
	e, err := h.lookup(surfaceID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	e.mu.Lock()
	if e.payload.Identity().Receipt != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrReceiptExists, surfaceID)
	}
	stamped, err := sjson.SetRawBytes(e.raw, "receipt", encoded)
	if err == nil {
		var payload schema.Payload
		if payload, err = schema.ParseKind(e.Kind, stamped); err == nil {
			e.raw = stamped
			e.payload = payload
			e.fingerprint = boundary.Fingerprint(stamped)
		}
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("stamp receipt: %w", err)
	}

	if e.Actions != nil {
		e.Actions.Close()
	}
	log := logx.WithSurface(logx.Ctx(ctx), surfaceID, string(e.Kind))
	log.Info("tool-ui receipt attached", "outcome", string(r.Outcome))
	if h.journal != nil {
		if err := h.journal.RecordReceipt(ctx, surfaceID, r); err != nil {
			log.Warn("tool-ui receipt not journaled", "err", err)
		}
	}
	h.changed(surfaceID)
	return nil
}
