package boundary

import (
	"errors"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/toolui/render"
	"loom/internal/toolui/schema"
)

type observed struct {
	name string
	err  error
}

func TestReturnedErrorIsContained(t *testing.T) {
	t.Parallel()

	var seen []observed
	b := New("DataTable", func(name string, err error) { seen = append(seen, observed{name, err}) })

	_, perr := schema.Parse[schema.DataTable]([]byte(`{"id":"t"}`), "DataTable")
	require.Error(t, perr)

	out := b.Render("fp-1", 0, render.Plain(), func() (string, error) { return "", perr })
	assert.Contains(t, ansi.Strip(out), "DataTable failed to render: invalid DataTable payload: columns: required")
	require.Len(t, seen, 1)
	assert.Equal(t, "DataTable", seen[0].name)
	assert.ErrorIs(t, seen[0].err, schema.ErrInvalidPayload)
	assert.True(t, b.Failed())
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()

	var seen []observed
	b := New("StatsDisplay", func(name string, err error) { seen = append(seen, observed{name, err}) })

	out := b.Render("fp", 0, render.Plain(), func() (string, error) { panic("index out of range") })
	assert.Contains(t, ansi.Strip(out), "StatsDisplay failed to render: render panicked: index out of range")
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0].err, ErrRenderPanic)
}

func TestStaysFailedForSamePayload(t *testing.T) {
	t.Parallel()

	calls, failures := 0, 0
	b := New("DataTable", func(string, error) { failures++ })
	fail := func() (string, error) {
		calls++
		return "", errors.New("boom")
	}

	first := b.Render("fp", 0, render.Plain(), fail)
	second := b.Render("fp", 0, render.Plain(), func() (string, error) {
		calls++
		return "ok", nil
	})
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "no automatic retry")
	assert.Equal(t, 1, failures)

	assert.False(t, b.Reset("fp"))
	assert.True(t, b.Reset("fp-2"))
	out := b.Render("fp-2", 0, render.Plain(), func() (string, error) { return "table", nil })
	assert.Equal(t, "table", out)
	assert.False(t, b.Failed())
}

func TestNewPayloadLeavesFailedState(t *testing.T) {
	t.Parallel()

	b := New("Approval", nil)
	b.Render("a", 0, render.Plain(), func() (string, error) { return "", errors.New("boom") })
	require.True(t, b.Failed())

	out := b.Render("b", 0, render.Plain(), func() (string, error) { return "fine", nil })
	assert.Equal(t, "fine", out)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Fingerprint([]byte(`{"id":"a"}`)), Fingerprint([]byte(`{"id":"a"}`)))
	assert.NotEqual(t, Fingerprint([]byte(`{"id":"a"}`)), Fingerprint([]byte(`{"id":"b"}`)))
}
