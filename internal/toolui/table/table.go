// Package table is the data-table engine: sort state, row ordering, layout
// choice, card bucketing and terminal rendering for data-table payloads.
package table

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"

	"loom/internal/toolui/format"
	"loom/internal/toolui/schema"
)

const (
	// DefaultBreakpoint is the container width, in cells, below which auto
	// layout switches to cards.
	DefaultBreakpoint = 72
	// DefaultEmptyMessage is shown for a table with no rows.
	DefaultEmptyMessage = "No data available"

	skeletonRows  = 5
	skeletonCards = 3
	primaryCount  = 2
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotSortable   = errors.New("column is not sortable")
)

// RowView is one row in display order.
type RowView struct {
	ID    string
	Index int
	Row   schema.Row
}

// Header is the presentation of one column header.
type Header struct {
	Key      string
	Label    string
	Title    string
	Sortable bool
	Align    schema.Align
	// AriaSort is "ascending", "descending" or "none".
	AriaSort string
	Glyph    string
}

// Buckets splits columns for card layout.
type Buckets struct {
	Primary   []schema.Column
	Secondary []schema.Column
	Tertiary  []schema.Column
}

// Table is the stateful model behind one data-table surface.
type Table struct {
	payload    schema.DataTable
	formatter  *format.Formatter
	collator   *collate.Collator
	breakpoint int
	onSort     func(schema.SortState)
	hyperlinks bool

	sort       schema.SortState
	controlled bool
	loading    bool
	expanded   map[string]bool
	cursor     int
}

type Option func(*Table)

func WithBreakpoint(cells int) Option {
	return func(t *Table) {
		if cells > 0 {
			t.breakpoint = cells
		}
	}
}

// WithFormatter replaces the formatter built from the payload locale.
func WithFormatter(f *format.Formatter) Option {
	return func(t *Table) {
		if f != nil {
			t.formatter = f
		}
	}
}

// OnSortChange is notified with every sort state a header click produces.
func OnSortChange(fn func(schema.SortState)) Option {
	return func(t *Table) { t.onSort = fn }
}

// WithSort puts the table in controlled mode with the given state.
func WithSort(state schema.SortState) Option {
	return func(t *Table) {
		t.sort = state
		t.controlled = true
	}
}

// WithHyperlinks emits OSC 8 links for link-formatted cells.
func WithHyperlinks(on bool) Option {
	return func(t *Table) { t.hyperlinks = on }
}

func WithLoading(on bool) Option {
	return func(t *Table) { t.loading = on }
}

// New builds the model. A payload carrying sort is controlled: header clicks
// are reported through OnSortChange and only SetSort changes the state.
// Otherwise the table owns its state, seeded from defaultSort.
func New(payload schema.DataTable, opts ...Option) *Table {
	t := &Table{
		payload:    payload,
		breakpoint: DefaultBreakpoint,
		expanded:   make(map[string]bool),
	}
	switch {
	case payload.Sort != nil:
		t.sort = *payload.Sort
		t.controlled = true
	case payload.DefaultSort != nil:
		t.sort = *payload.DefaultSort
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.formatter == nil {
		t.formatter = format.New(payload.Locale)
	}
	t.collator = NewCollator(t.formatter.Locale())
	return t
}

func (t *Table) Payload() schema.DataTable { return t.payload }

func (t *Table) Sort() schema.SortState { return t.sort }

func (t *Table) Controlled() bool { return t.controlled }

// SetSort replaces the sort state. In controlled mode this is the only way
// the state changes.
func (t *Table) SetSort(state schema.SortState) { t.sort = state }

// ClickHeader advances the sort cycle for key and returns the requested
// state. In controlled mode the request is only reported.
func (t *Table) ClickHeader(key string) (schema.SortState, error) {
	col, ok := t.payload.Column(key)
	if !ok {
		return t.sort, fmt.Errorf("%w %q", ErrUnknownColumn, key)
	}
	if !col.IsSortable() {
		return t.sort, fmt.Errorf("%w: %q", ErrNotSortable, key)
	}
	next := NextSort(t.sort, key)
	if !t.controlled {
		t.sort = next
	}
	if t.onSort != nil {
		t.onSort(next)
	}
	return next, nil
}

// ClickHeaderAt clicks the n-th column header, counting from zero.
func (t *Table) ClickHeaderAt(n int) (schema.SortState, error) {
	if n < 0 || n >= len(t.payload.Columns) {
		return t.sort, fmt.Errorf("%w at index %d", ErrUnknownColumn, n)
	}
	return t.ClickHeader(t.payload.Columns[n].Key)
}

// RowID is the identity of the row at data index i. Without a row-id key
// the index is used, which is unstable under reordering.
func (t *Table) RowID(i int) string {
	if key := t.payload.RowIDKey; key != "" && i < len(t.payload.Data) {
		if v := t.payload.Data[i].Get(key); !v.IsEmpty() {
			return v.String()
		}
	}
	return "row-" + strconv.Itoa(i)
}

// Rows returns rows in display order. Controlled tables keep payload order;
// the caller owns their ordering.
func (t *Table) Rows() []RowView {
	rows := make([]RowView, len(t.payload.Data))
	for i, r := range t.payload.Data {
		rows[i] = RowView{ID: t.RowID(i), Index: i, Row: r}
	}
	if t.controlled {
		return rows
	}
	if by := rowOrder(t.sort, t.collator); by != nil {
		slices.SortStableFunc(rows, func(x, y RowView) int { return by(x.Row, y.Row) })
	}
	return rows
}

// Layout resolves the payload layout against a container width. A width of
// zero or less means unknown and picks the table.
func (t *Table) Layout(width int) schema.Layout {
	return ResolveLayout(t.payload.Layout, width, t.breakpoint)
}

func ResolveLayout(layout schema.Layout, width, breakpoint int) schema.Layout {
	switch layout {
	case schema.LayoutTable, schema.LayoutCards:
		return layout
	}
	if width > 0 && width < breakpoint {
		return schema.LayoutCards
	}
	return schema.LayoutTable
}

// Align is the effective alignment of column i.
func (t *Table) Align(i int) schema.Align {
	col := t.payload.Columns[i]
	if col.Align != "" {
		return col.Align
	}
	if i == 0 {
		return schema.AlignLeft
	}
	switch col.Format.Kind() {
	case schema.FormatNumber, schema.FormatCurrency, schema.FormatPercent, schema.FormatDelta:
		return schema.AlignRight
	}
	if t.numericColumn(col.Key) {
		return schema.AlignRight
	}
	return schema.AlignLeft
}

func (t *Table) numericColumn(key string) bool {
	seen := false
	for _, r := range t.payload.Data {
		v := r.Get(key)
		if v.IsNull() {
			continue
		}
		if v.Kind() != schema.ValueNumber {
			return false
		}
		seen = true
	}
	return seen
}

// Headers describes every column header.
func (t *Table) Headers() []Header {
	out := make([]Header, len(t.payload.Columns))
	for i, col := range t.payload.Columns {
		h := Header{
			Key:      col.Key,
			Label:    col.Label,
			Sortable: col.IsSortable(),
			Align:    t.Align(i),
			AriaSort: "none",
		}
		if h.Label == "" {
			h.Label = col.Key
		}
		if col.Abbr != "" {
			h.Title = h.Label
			h.Label = col.Abbr
		}
		if t.sort.By == col.Key {
			switch t.sort.Direction {
			case schema.SortAsc:
				h.AriaSort, h.Glyph = "ascending", "▲"
			case schema.SortDesc:
				h.AriaSort, h.Glyph = "descending", "▼"
			}
		}
		out[i] = h
	}
	return out
}

// Buckets groups columns by card priority. Columns hidden on mobile are
// always tertiary. Otherwise explicit priorities win; the first two unmarked
// columns are primary and the rest secondary.
func (t *Table) Buckets() Buckets {
	var b Buckets
	for i, col := range t.payload.Columns {
		p := col.Priority
		switch {
		case col.HideOnMobile:
			p = schema.PriorityTertiary
		case p != "":
		case i < primaryCount:
			p = schema.PriorityPrimary
		default:
			p = schema.PrioritySecondary
		}
		switch p {
		case schema.PriorityPrimary:
			b.Primary = append(b.Primary, col)
		case schema.PrioritySecondary:
			b.Secondary = append(b.Secondary, col)
		default:
			b.Tertiary = append(b.Tertiary, col)
		}
	}
	return b
}

// Expandable reports whether cards have a detail region. Cards without
// secondary columns render flat.
func (t *Table) Expandable() bool {
	return len(t.Buckets().Secondary) > 0
}

// CardIDs returns the stable ids linking a card trigger and its content.
func (t *Table) CardIDs(rowID string) (trigger, content string) {
	base := t.payload.ID + "-card-" + rowID
	return base + "-trigger", base + "-content"
}

// ToggleCard flips a card's expansion and returns the new state. Flat cards
// never expand.
func (t *Table) ToggleCard(rowID string) bool {
	if !t.Expandable() {
		return false
	}
	t.expanded[rowID] = !t.expanded[rowID]
	return t.expanded[rowID]
}

func (t *Table) Expanded(rowID string) bool { return t.expanded[rowID] }

// Cursor is the focused card index in display order.
func (t *Table) Cursor() int { return t.cursor }

// MoveCursor shifts card focus by delta, clamped to the rows.
func (t *Table) MoveCursor(delta int) {
	n := len(t.payload.Data)
	if n == 0 {
		t.cursor = 0
		return
	}
	t.cursor = min(max(t.cursor+delta, 0), n-1)
}

// ToggleCursor toggles the focused card.
func (t *Table) ToggleCursor() bool {
	rows := t.Rows()
	if t.cursor >= len(rows) {
		return false
	}
	return t.ToggleCard(rows[t.cursor].ID)
}

func (t *Table) SetLoading(on bool) { t.loading = on }

// Busy is the accessible busy flag.
func (t *Table) Busy() bool { return t.loading }

func (t *Table) EmptyMessage() string {
	if msg := strings.TrimSpace(t.payload.EmptyMessage); msg != "" {
		return msg
	}
	return DefaultEmptyMessage
}

// Status is the live-region text announced to assistive technology.
func (t *Table) Status() string {
	switch {
	case t.loading:
		return "Loading"
	case len(t.payload.Data) == 0:
		return t.EmptyMessage()
	}
	n := len(t.payload.Data)
	noun := "rows"
	if n == 1 {
		noun = "row"
	}
	status := fmt.Sprintf("%d %s", n, noun)
	if t.sort.By != "" {
		label := t.sort.By
		if col, ok := t.payload.Column(t.sort.By); ok && col.Label != "" {
			label = col.Label
		}
		dir := "ascending"
		if t.sort.Direction == schema.SortDesc {
			dir = "descending"
		}
		status += fmt.Sprintf(", sorted by %s %s", label, dir)
	}
	return status
}

// Cell formats one cell.
func (t *Table) Cell(row schema.Row, col schema.Column) (format.Rendered, error) {
	r, err := t.formatter.Render(row.Get(col.Key), col.Format, row)
	if err != nil {
		return format.Rendered{}, fmt.Errorf("column %q: %w", col.Key, err)
	}
	return r, nil
}
