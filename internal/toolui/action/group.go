// Package action runs the confirm/execute lifecycle of a group of action
// buttons. A group has at most one confirming and one executing action.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"loom/internal/toolui/schema"
)

// DefaultConfirmTimeout is how long a confirmation stays armed.
const DefaultConfirmTimeout = 3 * time.Second

// ErrUnknownAction is returned when Invoke names an id not in the group.
var ErrUnknownAction = errors.New("unknown action")

// Handler performs the action. It runs outside the group lock.
type Handler func(ctx context.Context, actionID string) error

// Guard runs before the handler; returning false vetoes the invocation.
type Guard func(ctx context.Context, actionID string) bool

// Timer is the cancellable handle returned by a Scheduler.
type Timer interface {
	Stop() bool
}

// Scheduler arms confirmation timeouts.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Result says what an Invoke call did.
type Result int

const (
	// Dropped: another action was executing, the action was disabled, or the
	// group was closed.
	Dropped Result = iota
	// Confirming: the action is now waiting for its confirming invoke.
	Confirming
	// Executed: the handler ran; its error, if any, is returned alongside.
	Executed
	// Vetoed: the guard refused and the handler did not run.
	Vetoed
)

func (r Result) String() string {
	switch r {
	case Confirming:
		return "confirming"
	case Executed:
		return "executed"
	case Vetoed:
		return "vetoed"
	default:
		return "dropped"
	}
}

// State is one action's place in the lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateConfirming State = "confirming"
	StateExecuting  State = "executing"
)

// Group owns the confirming and executing markers for a set of actions.
type Group struct {
	mu        sync.Mutex
	actions   []schema.Action
	handler   Handler
	guard     Guard
	timeout   time.Duration
	scheduler Scheduler
	onChange  func()

	confirming string
	executing  string
	timer      Timer
	epoch      uint64
	closed     bool
}

type Option func(*Group)

func WithConfirmTimeout(d time.Duration) Option {
	return func(g *Group) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithGuard(guard Guard) Option {
	return func(g *Group) { g.guard = guard }
}

func WithScheduler(s Scheduler) Option {
	return func(g *Group) {
		if s != nil {
			g.scheduler = s
		}
	}
}

// OnChange registers a callback fired after every state transition,
// including timer-driven ones. It is called without the lock held.
func OnChange(fn func()) Option {
	return func(g *Group) { g.onChange = fn }
}

func NewGroup(actions []schema.Action, handler Handler, opts ...Option) *Group {
	g := &Group{
		actions:   append([]schema.Action(nil), actions...),
		handler:   handler,
		timeout:   DefaultConfirmTimeout,
		scheduler: wallClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Group) lookup(id string) (schema.Action, bool) {
	for _, a := range g.actions {
		if a.ID == id {
			return a, true
		}
	}
	return schema.Action{}, false
}

// Invoke is the single entry point for a button press. An action with a
// confirm label needs two invokes; the first arms it. Invoking while another
// action executes is dropped, not queued.
func (g *Group) Invoke(ctx context.Context, id string) (Result, error) {
	g.mu.Lock()
	a, ok := g.lookup(id)
	if !ok {
		g.mu.Unlock()
		return Dropped, fmt.Errorf("%w %q", ErrUnknownAction, id)
	}
	if g.closed || g.executing != "" || a.Disabled {
		g.mu.Unlock()
		return Dropped, nil
	}

	if a.ConfirmLabel != "" && g.confirming != id {
		g.stopTimerLocked()
		g.confirming = id
		epoch := g.epoch
		g.timer = g.scheduler.AfterFunc(g.timeout, func() { g.expire(epoch) })
		g.mu.Unlock()
		g.notify()
		return Confirming, nil
	}

	g.stopTimerLocked()
	g.confirming = ""
	g.executing = id
	g.mu.Unlock()
	g.notify()

	defer g.settle()

	if g.guard != nil && !g.guard(ctx, id) {
		return Vetoed, nil
	}
	if g.handler == nil {
		return Executed, nil
	}
	return Executed, g.handler(ctx, id)
}

func (g *Group) settle() {
	g.mu.Lock()
	g.executing = ""
	g.confirming = ""
	g.stopTimerLocked()
	g.mu.Unlock()
	g.notify()
}

// Escape abandons a pending confirmation. It reports whether one was pending.
func (g *Group) Escape() bool {
	g.mu.Lock()
	if g.confirming == "" {
		g.mu.Unlock()
		return false
	}
	g.confirming = ""
	g.stopTimerLocked()
	g.mu.Unlock()
	g.notify()
	return true
}

// Close cancels any pending timeout and drops later invokes.
func (g *Group) Close() {
	g.mu.Lock()
	g.closed = true
	g.confirming = ""
	g.stopTimerLocked()
	g.mu.Unlock()
}

func (g *Group) expire(epoch uint64) {
	g.mu.Lock()
	if g.epoch != epoch || g.confirming == "" {
		g.mu.Unlock()
		return
	}
	g.confirming = ""
	g.timer = nil
	g.epoch++
	g.mu.Unlock()
	g.notify()
}

// stopTimerLocked cancels the pending timeout. Bumping the epoch makes a
// callback that already fired a no-op.
func (g *Group) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.epoch++
}

func (g *Group) notify() {
	if g.onChange != nil {
		g.onChange()
	}
}

func (g *Group) Confirming() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirming
}

func (g *Group) Executing() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.executing
}

// State reports where id is in the lifecycle.
func (g *Group) State(id string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch id {
	case g.executing:
		if id != "" {
			return StateExecuting
		}
	case g.confirming:
		if id != "" {
			return StateConfirming
		}
	}
	return StateIdle
}

// Actions returns the descriptors the group was built with.
func (g *Group) Actions() []schema.Action {
	return append([]schema.Action(nil), g.actions...)
}

// View is the per-render presentation of one action.
type View struct {
	ID         string
	Label      string
	Sentence   string
	Icon       string
	Shortcut   string
	Variant    schema.Variant
	Disabled   bool
	Loading    bool
	Confirming bool
}

// View derives the current presentation of every action without touching
// the descriptors.
func (g *Group) View() []View {
	g.mu.Lock()
	confirming, executing, closed := g.confirming, g.executing, g.closed
	g.mu.Unlock()

	views := make([]View, 0, len(g.actions))
	for _, a := range g.actions {
		v := View{
			ID:         a.ID,
			Label:      a.Label,
			Sentence:   a.Sentence,
			Icon:       a.Icon,
			Shortcut:   a.Shortcut,
			Variant:    a.ResolvedVariant(),
			Disabled:   a.Disabled || closed || (executing != "" && executing != a.ID),
			Loading:    a.Loading || executing == a.ID,
			Confirming: confirming == a.ID,
		}
		if v.Confirming {
			v.Label = a.ConfirmLabel
		}
		views = append(views, v)
	}
	return views
}
