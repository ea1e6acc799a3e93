package table

import (
	"cmp"
	"regexp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"loom/internal/toolui/format"
	"loom/internal/toolui/schema"
)

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// NextSort is the header click cycle: unsorted, ascending, descending, then
// unsorted again. A different column always starts ascending.
func NextSort(cur schema.SortState, key string) schema.SortState {
	if cur.By != key {
		return schema.SortState{By: key, Direction: schema.SortAsc}
	}
	switch cur.Direction {
	case schema.SortAsc:
		return schema.SortState{By: key, Direction: schema.SortDesc}
	case schema.SortDesc:
		return schema.SortState{}
	default:
		return schema.SortState{By: key, Direction: schema.SortAsc}
	}
}

// NewCollator returns the case-insensitive, digit-aware collator used for
// string comparison.
func NewCollator(tag language.Tag) *collate.Collator {
	return collate.New(tag, collate.IgnoreCase, collate.Numeric)
}

// Values of different kinds order by kind rank.
func kindRank(k schema.ValueKind) int {
	switch k {
	case schema.ValueBool:
		return 0
	case schema.ValueNumber:
		return 1
	case schema.ValueString:
		return 2
	case schema.ValueArray:
		return 3
	default:
		return 4
	}
}

// Compare orders two cell values ascending. Null sorts after everything.
// Strings that both look numeric compare as numbers, then ISO dates compare
// as instants, and anything else goes through c.
func Compare(a, b schema.Value, c *collate.Collator) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}

	if x, y, ok := numericPair(a, b); ok {
		return cmp.Compare(x, y)
	}
	if a.Kind() != b.Kind() {
		return cmp.Compare(kindRank(a.Kind()), kindRank(b.Kind()))
	}

	switch a.Kind() {
	case schema.ValueBool:
		x, _ := a.Boolean()
		y, _ := b.Boolean()
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case schema.ValueArray:
		return cmp.Compare(len(a.Items()), len(b.Items()))
	default:
		return compareStrings(a.String(), b.String(), c)
	}
}

// numericPair handles number/number, and number or string pairs where every
// string side parses as numeric-like.
func numericPair(a, b schema.Value) (float64, float64, bool) {
	x, ok := asNumber(a)
	if !ok {
		return 0, 0, false
	}
	y, ok := asNumber(b)
	if !ok {
		return 0, 0, false
	}
	return x, y, true
}

func asNumber(v schema.Value) (float64, bool) {
	if n, ok := v.Num(); ok {
		return n, true
	}
	if s, ok := v.Str(); ok {
		return format.ParseNumericLike(s)
	}
	return 0, false
}

func compareStrings(a, b string, c *collate.Collator) int {
	if isoDatePrefix.MatchString(a) && isoDatePrefix.MatchString(b) {
		ta, okA := format.ParseTime(schema.String(a))
		tb, okB := format.ParseTime(schema.String(b))
		if okA && okB {
			return ta.Compare(tb)
		}
		if r := cmp.Compare(a[:10], b[:10]); r != 0 {
			return r
		}
	}
	if c == nil {
		return cmp.Compare(a, b)
	}
	return c.CompareString(a, b)
}

// SortRows orders rows in place by one column. The sort is stable, and nulls
// stay last in both directions.
func SortRows(rows []schema.Row, state schema.SortState, c *collate.Collator) {
	if by := rowOrder(state, c); by != nil {
		slices.SortStableFunc(rows, by)
	}
}

// rowOrder returns nil when state is unsorted.
func rowOrder(state schema.SortState, c *collate.Collator) func(x, y schema.Row) int {
	if state.By == "" || state.Direction == "" {
		return nil
	}
	sign := 1
	if state.Direction == schema.SortDesc {
		sign = -1
	}
	return func(x, y schema.Row) int {
		a, b := x.Get(state.By), y.Get(state.By)
		if a.IsNull() || b.IsNull() {
			return Compare(a, b, c)
		}
		return sign * Compare(a, b, c)
	}
}
