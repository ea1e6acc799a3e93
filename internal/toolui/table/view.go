package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"

	"loom/internal/toolui/format"
	"loom/internal/toolui/render"
	"loom/internal/toolui/schema"
)

// DefaultTruncateWidth caps truncating columns that declare no width.
const DefaultTruncateWidth = 32

const skeletonWidth = 8

// Render draws the table for a container width. Formatting errors are
// returned so the caller can contain them.
func (t *Table) Render(width int, theme render.Theme) (string, error) {
	if t.Layout(width) == schema.LayoutCards {
		return t.renderCards(width, theme)
	}
	return t.renderGrid(width, theme)
}

func (t *Table) headerCells() []string {
	headers := t.Headers()
	cells := make([]string, len(headers))
	for i, h := range headers {
		label := format.Sanitize(h.Label)
		// Labels are plain text; cells may carry escapes and go through render.Truncate.
		if w := t.payload.Columns[i].Width; w > 0 && runewidth.StringWidth(label) > w {
			label = runewidth.Truncate(label, w, render.Ellipsis)
		}
		if h.Glyph != "" {
			label += " " + h.Glyph
		}
		cells[i] = label
	}
	return cells
}

func (t *Table) cellText(row schema.Row, col schema.Column, theme render.Theme) (string, error) {
	r, err := t.Cell(row, col)
	if err != nil {
		return "", err
	}
	text := render.Value(r, theme, t.hyperlinks)
	switch {
	case col.Width > 0:
		text = render.Truncate(text, col.Width)
	case col.Truncate:
		text = render.Truncate(text, DefaultTruncateWidth)
	}
	return text, nil
}

func (t *Table) renderGrid(width int, theme render.Theme) (string, error) {
	cols := t.payload.Columns
	var rows [][]string
	switch {
	case t.loading:
		for range skeletonRows {
			row := make([]string, len(cols))
			for i := range row {
				row[i] = render.Skeleton(skeletonWidth, theme)
			}
			rows = append(rows, row)
		}
	default:
		for _, rv := range t.Rows() {
			row := make([]string, len(cols))
			for i, col := range cols {
				text, err := t.cellText(rv.Row, col, theme)
				if err != nil {
					return "", err
				}
				row[i] = text
			}
			rows = append(rows, row)
		}
	}

	aligns := make([]lipgloss.Position, len(cols))
	for i := range cols {
		aligns[i] = position(t.Align(i))
	}

	tbl := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.Border).
		Headers(t.headerCells()...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := theme.Cell
			if row == lgtable.HeaderRow {
				base = theme.Header
			}
			return base.Padding(0, 1).Align(aligns[col])
		})
	out := tbl.String()
	if width > 0 && lipgloss.Width(out) > width {
		out = tbl.Width(width).String()
	}

	if !t.loading && len(t.payload.Data) == 0 {
		msg := theme.Muted.Render(format.Sanitize(t.EmptyMessage()))
		out = lipgloss.JoinVertical(lipgloss.Left, out,
			lipgloss.PlaceHorizontal(lipgloss.Width(out), lipgloss.Center, msg))
	}
	return out, nil
}

func position(a schema.Align) lipgloss.Position {
	switch a {
	case schema.AlignRight:
		return lipgloss.Right
	case schema.AlignCenter:
		return lipgloss.Center
	default:
		return lipgloss.Left
	}
}

func (t *Table) renderCards(width int, theme render.Theme) (string, error) {
	panel := theme.Panel
	if width > 2 {
		panel = panel.Width(width - 2)
	}

	if t.loading {
		cards := make([]string, skeletonCards)
		for i := range cards {
			cards[i] = panel.Render(render.Skeleton(max(width-6, skeletonWidth), theme))
		}
		return strings.Join(cards, "\n"), nil
	}
	if len(t.payload.Data) == 0 {
		return panel.Render(theme.Muted.Render(format.Sanitize(t.EmptyMessage()))), nil
	}

	buckets := t.Buckets()
	expandable := len(buckets.Secondary) > 0
	cards := make([]string, 0, len(t.payload.Data))
	for i, rv := range t.Rows() {
		summary := make([]string, 0, len(buckets.Primary))
		for _, col := range buckets.Primary {
			text, err := t.cellText(rv.Row, col, theme)
			if err != nil {
				return "", err
			}
			summary = append(summary, text)
		}
		head := strings.Join(summary, theme.Muted.Render(" · "))
		if expandable {
			marker := "▸"
			if t.expanded[rv.ID] {
				marker = "▾"
			}
			head = marker + " " + head
		}
		if i == t.cursor {
			head = theme.Focus.Render("›") + " " + head
		} else {
			head = "  " + head
		}

		lines := []string{head}
		if expandable && t.expanded[rv.ID] {
			for _, col := range buckets.Secondary {
				text, err := t.cellText(rv.Row, col, theme)
				if err != nil {
					return "", err
				}
				label := col.Label
				if label == "" {
					label = col.Key
				}
				lines = append(lines, "    "+theme.Muted.Render(format.Sanitize(label)+":")+" "+text)
			}
		}
		cards = append(cards, panel.Render(strings.Join(lines, "\n")))
	}
	return strings.Join(cards, "\n"), nil
}
