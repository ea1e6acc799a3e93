// Package boundary contains render failures of a single surface so they never
// reach the rest of the transcript.
package boundary

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"loom/internal/toolui/render"
)

// ErrRenderPanic wraps a recovered panic.
var ErrRenderPanic = errors.New("render panicked")

// Observer is told about every contained failure, once per failure.
type Observer func(name string, err error)

// Boundary wraps one named surface. After a failure it keeps showing the
// fallback until it sees a different payload fingerprint; it never retries
// on its own.
type Boundary struct {
	name     string
	observer Observer

	mu          sync.Mutex
	fingerprint string
	err         error
}

func New(name string, observer Observer) *Boundary {
	return &Boundary{name: name, observer: observer}
}

// Fingerprint identifies a payload by content.
func Fingerprint(payload []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, payload).String()
}

func (b *Boundary) Name() string { return b.name }

// Err is the contained failure, or nil.
func (b *Boundary) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Boundary) Failed() bool { return b.Err() != nil }

// Reset leaves the failed state when fingerprint differs from the payload
// that failed. It reports whether the boundary is clear afterwards.
func (b *Boundary) Reset(fingerprint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil && fingerprint != b.fingerprint {
		b.err = nil
	}
	b.fingerprint = fingerprint
	return b.err == nil
}

// Render runs fn for the payload identified by fingerprint. A returned error
// or a panic turns into the fallback block.
func (b *Boundary) Render(fingerprint string, width int, theme render.Theme, fn func() (string, error)) string {
	if !b.Reset(fingerprint) {
		return b.fallback(width, theme)
	}

	out, err := b.run(fn)
	if err == nil {
		return out
	}

	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	if b.observer != nil {
		b.observer(b.name, err)
	}
	return b.fallback(width, theme)
}

func (b *Boundary) run(fn func() (string, error)) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()
	return fn()
}

func (b *Boundary) fallback(width int, theme render.Theme) string {
	return render.ErrorBlock(b.name, b.Err().Error(), width, theme)
}
