package stats

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/toolui/format"
	"loom/internal/toolui/render"
	"loom/internal/toolui/schema"
)

const weeklyJSON = `{
	"surface": "stats-display",
	"id": "weekly",
	"title": "This week",
	"description": "Piece-work across all lines",
	"stats": [
		{"key": "payroll", "label": "Payroll", "value": 18250.5, "format": {"kind": "currency", "currency": "USD"},
		 "diff": {"value": 12.5, "label": "vs last week"}, "sparkline": {"data": [3, 5, 4, 8, 9]}},
		{"key": "pieces", "label": "Pieces sewn", "value": 4120, "format": {"kind": "number", "compact": true}},
		{"key": "rework", "label": "Rework rate", "value": 0.031, "format": {"kind": "percent", "decimals": 1},
		 "diff": {"value": -0.4, "upIsPositive": false}}
	]
}`

func parseStats(t *testing.T, raw string) schema.StatsDisplay {
	t.Helper()
	p, err := schema.Parse[schema.StatsDisplay]([]byte(raw), "StatsDisplay")
	require.NoError(t, err)
	return p
}

func TestSparkline(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Sparkline(nil, 0))
	assert.Empty(t, Sparkline([]float64{5}, 10))
	assert.Equal(t, "▁▂▃▄▅▆▇█", Sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 0))
	assert.Equal(t, "▄▄▄", Sparkline([]float64{3, 3, 3}, 0))
	assert.Equal(t, "▁▃▅█", Sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 4))
	assert.Equal(t, Sparkline([]float64{1, 2}, 0), Sparkline([]float64{100, 200}, 0), "each series uses its own scale")
}

func TestDiffBadge(t *testing.T) {
	t.Parallel()

	p := New(schema.StatsDisplay{})
	up := p.DiffBadge(schema.Diff{Value: 12.5, Label: "vs last week"})
	assert.Equal(t, Badge{Text: "+12.5%", Label: "vs last week", Tone: schema.ToneSuccess, Arrow: format.ArrowUp}, up)

	upIsPositive := false
	down := p.DiffBadge(schema.Diff{Value: -3, UpIsPositive: &upIsPositive})
	assert.Equal(t, "-3.0%", down.Text)
	assert.Equal(t, schema.ToneSuccess, down.Tone)
	assert.Equal(t, format.ArrowDown, down.Arrow)

	zero := p.DiffBadge(schema.Diff{Value: 0})
	assert.Equal(t, schema.ToneNeutral, zero.Tone)
	assert.Equal(t, format.ArrowNone, zero.Arrow)

	two := 2
	assert.Equal(t, "+1.25%", p.DiffBadge(schema.Diff{Value: 1.25, Decimals: &two}).Text)
}

func TestCells(t *testing.T) {
	t.Parallel()

	cells, err := New(parseStats(t, weeklyJSON)).Cells()
	require.NoError(t, err)
	require.Len(t, cells, 3)
	assert.Equal(t, "$18,250.50", cells[0].Value.Text)
	require.NotNil(t, cells[0].Badge)
	assert.Equal(t, "+12.5%", cells[0].Badge.Text)
	assert.Equal(t, []float64{3, 5, 4, 8, 9}, cells[0].Sparkline)
	assert.Equal(t, "4.1K", cells[1].Value.Text)
	assert.Nil(t, cells[1].Badge)
	assert.Equal(t, "3.1%", cells[2].Value.Text)
	assert.Equal(t, schema.ToneSuccess, cells[2].Badge.Tone)
}

func TestCellsReportFormatErrors(t *testing.T) {
	t.Parallel()

	raw := `{"id":"s","stats":[{"key":"k","label":"K","value":"plenty","format":{"kind":"number"}}]}`
	_, err := New(parseStats(t, raw)).Cells()
	require.ErrorIs(t, err, format.ErrUnexpectedValue)
	assert.Contains(t, err.Error(), `stat "k"`)
}

func TestColumns(t *testing.T) {
	t.Parallel()

	p := New(parseStats(t, weeklyJSON))
	assert.Equal(t, 3, p.Columns(120))
	assert.Equal(t, 2, p.Columns(50))
	assert.Equal(t, 1, p.Columns(10))
	assert.Equal(t, 3, p.Columns(0))

	single := New(parseStats(t, `{"id":"s","stats":[{"key":"k","label":"K","value":1}]}`))
	assert.Equal(t, 1, single.Columns(200))
}

func TestRenderGrid(t *testing.T) {
	t.Parallel()

	out, err := New(parseStats(t, weeklyJSON)).Render(90, render.Plain())
	require.NoError(t, err)
	plain := ansi.Strip(out)
	for _, want := range []string{"This week", "Piece-work across all lines", "Payroll", "$18,250.50", "▲ +12.5% vs last week", "4.1K", "▼ -0.4%"} {
		assert.Contains(t, plain, want)
	}
	assert.Contains(t, plain, "▁")
	assert.Equal(t, 3, strings.Count(plain, "┌"))

	lines := strings.Split(plain, "\n")
	assert.Contains(t, lines[2], "┌", "three cells share one grid row")
	assert.Equal(t, 3, strings.Count(lines[2], "┌"))
}

func TestRenderWrapsNarrow(t *testing.T) {
	t.Parallel()

	out, err := New(parseStats(t, weeklyJSON)).Render(30, render.Plain())
	require.NoError(t, err)
	for _, line := range strings.Split(ansi.Strip(out), "\n") {
		assert.LessOrEqual(t, strings.Count(line, "┌"), 1)
	}
}

func TestSingleStatIsCentred(t *testing.T) {
	t.Parallel()

	raw := `{"id":"s","stats":[{"key":"k","label":"Open orders","value":42}]}`
	out, err := New(parseStats(t, raw)).Render(60, render.Plain())
	require.NoError(t, err)

	var valueLine string
	for _, line := range strings.Split(ansi.Strip(out), "\n") {
		if strings.Contains(line, "42") {
			valueLine = line
		}
	}
	require.NotEmpty(t, valueLine)
	assert.Greater(t, strings.Index(valueLine, "42"), 20)
}

func TestLoadingRendersOneSkeletonPerStat(t *testing.T) {
	t.Parallel()

	p := New(parseStats(t, weeklyJSON), WithLoading(true))
	assert.True(t, p.Busy())
	out, err := p.Render(0, render.Plain())
	require.NoError(t, err)
	plain := ansi.Strip(out)
	assert.Equal(t, 3, strings.Count(plain, "┌"))
	assert.Contains(t, plain, render.SkeletonGlyph)
	assert.NotContains(t, plain, "$18,250.50")
}
