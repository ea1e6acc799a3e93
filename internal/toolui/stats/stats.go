// Package stats renders stats-display payloads as a grid of stat cells.
package stats

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"loom/internal/toolui/format"
	"loom/internal/toolui/render"
	"loom/internal/toolui/schema"
)

const (
	// MinCellWidth is the narrowest a grid cell may get, borders included.
	MinCellWidth = 24
	// DefaultDiffDecimals applies when a diff does not set decimals.
	DefaultDiffDecimals = 1
)

var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// Badge is the compact delta shown under a stat value.
type Badge struct {
	Text  string
	Label string
	Tone  schema.Tone
	Arrow format.Arrow
}

// Cell is the presentation of one stat.
type Cell struct {
	Key       string
	Label     string
	Value     format.Rendered
	Badge     *Badge
	Sparkline []float64
	Color     string
}

// Panel is the model behind one stats-display surface.
type Panel struct {
	payload   schema.StatsDisplay
	formatter *format.Formatter
	loading   bool
}

type Option func(*Panel)

func WithFormatter(f *format.Formatter) Option {
	return func(p *Panel) {
		if f != nil {
			p.formatter = f
		}
	}
}

func WithLoading(on bool) Option {
	return func(p *Panel) { p.loading = on }
}

func New(payload schema.StatsDisplay, opts ...Option) *Panel {
	p := &Panel{payload: payload}
	for _, opt := range opts {
		opt(p)
	}
	if p.formatter == nil {
		p.formatter = format.New(payload.Locale)
	}
	return p
}

func (p *Panel) Payload() schema.StatsDisplay { return p.payload }

func (p *Panel) SetLoading(on bool) { p.loading = on }

func (p *Panel) Busy() bool { return p.loading }

// DiffBadge derives a badge with the same tone and arrow rules as the delta
// format.
func (p *Panel) DiffBadge(d schema.Diff) Badge {
	decimals := DefaultDiffDecimals
	if d.Decimals != nil {
		decimals = *d.Decimals
	}
	upIsPositive := d.UpIsGood()
	r := p.formatter.Delta(d.Value, schema.DeltaFormat{Decimals: &decimals, UpIsPositive: &upIsPositive})
	return Badge{Text: r.Text + "%", Label: d.Label, Tone: r.Tone, Arrow: r.Arrow}
}

// Cells formats every stat.
func (p *Panel) Cells() ([]Cell, error) {
	cells := make([]Cell, 0, len(p.payload.Stats))
	for _, item := range p.payload.Stats {
		v, err := p.formatter.Render(item.Value, item.Format, nil)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", item.Key, err)
		}
		c := Cell{Key: item.Key, Label: item.Label, Value: v}
		if item.Diff != nil {
			b := p.DiffBadge(*item.Diff)
			c.Badge = &b
		}
		if item.Sparkline != nil {
			c.Sparkline = item.Sparkline.Data
			c.Color = item.Sparkline.Color
		}
		cells = append(cells, c)
	}
	return cells, nil
}

// Columns is how many cells fit per grid row at width.
func (p *Panel) Columns(width int) int {
	n := len(p.payload.Stats)
	if n <= 1 || width <= 0 {
		return max(n, 1)
	}
	return min(max(width/MinCellWidth, 1), n)
}

// Sparkline draws data scaled to its own range. Fewer than two points draw
// nothing. A positive width resamples longer series to fit.
func Sparkline(data []float64, width int) string {
	if len(data) < 2 {
		return ""
	}
	points := data
	if width > 1 && len(data) > width {
		points = make([]float64, width)
		for i := range points {
			points[i] = data[i*(len(data)-1)/(width-1)]
		}
	}

	lo, hi := points[0], points[0]
	for _, v := range points {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	top := len(sparkGlyphs) - 1

	var b strings.Builder
	for _, v := range points {
		idx := top / 2
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		b.WriteRune(sparkGlyphs[idx])
	}
	return b.String()
}

// Render draws the grid. A single stat is centred and drawn larger.
func (p *Panel) Render(width int, theme render.Theme) (string, error) {
	var blocks []string
	if title := strings.TrimSpace(format.Sanitize(p.payload.Title)); title != "" {
		blocks = append(blocks, theme.Title.Render(title))
	}
	if desc := strings.TrimSpace(format.Sanitize(p.payload.Description)); desc != "" {
		blocks = append(blocks, theme.Muted.Render(desc))
	}

	cols := p.Columns(width)
	cellWidth := MinCellWidth
	if width > 0 {
		cellWidth = max(width/cols, MinCellWidth)
	}
	single := len(p.payload.Stats) == 1
	if single && width > 0 {
		cellWidth = width
	}

	style := theme.Panel.Width(cellWidth - 2)
	if single {
		style = style.Align(lipgloss.Center).Padding(1, 1)
	}

	var bodies []string
	if p.loading {
		for range p.payload.Stats {
			bodies = append(bodies, skeletonBody(cellWidth-4, theme))
		}
	} else {
		cells, err := p.Cells()
		if err != nil {
			return "", err
		}
		for _, c := range cells {
			bodies = append(bodies, cellBody(c, cellWidth-4, single, theme))
		}
	}

	var rows []string
	for start := 0; start < len(bodies); start += cols {
		end := min(start+cols, len(bodies))
		rendered := make([]string, 0, end-start)
		for _, body := range bodies[start:end] {
			rendered = append(rendered, style.Render(body))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}
	blocks = append(blocks, rows...)
	return lipgloss.JoinVertical(lipgloss.Left, blocks...), nil
}

func cellBody(c Cell, inner int, single bool, theme render.Theme) string {
	value := render.Value(c.Value, theme, false)
	if !c.Value.Placeholder {
		value = theme.Title.Bold(single).Render(value)
	}

	lines := []string{theme.Muted.Render(render.Truncate(format.Sanitize(c.Label), inner)), value}
	if c.Badge != nil {
		badge := c.Badge.Text
		if glyph := c.Badge.Arrow.Glyph(); glyph != "" {
			badge = glyph + " " + badge
		}
		line := theme.Tone(c.Badge.Tone).Render(badge)
		if c.Badge.Label != "" {
			line += " " + theme.Muted.Render(format.Sanitize(c.Badge.Label))
		}
		lines = append(lines, line)
	}
	if spark := Sparkline(c.Sparkline, inner); spark != "" {
		lines = append(lines, sparkStyle(c, theme).Render(spark))
	}
	return strings.Join(lines, "\n")
}

func sparkStyle(c Cell, theme render.Theme) lipgloss.Style {
	switch {
	case strings.HasPrefix(c.Color, "#"):
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Color))
	case c.Color != "":
		return theme.Tone(schema.Tone(c.Color))
	case c.Badge != nil:
		return theme.Tone(c.Badge.Tone)
	default:
		return theme.Tone(schema.ToneInfo)
	}
}

func skeletonBody(inner int, theme render.Theme) string {
	return strings.Join([]string{
		render.Skeleton(max(inner/2, 4), theme),
		render.Skeleton(max(inner, 4), theme),
	}, "\n")
}
