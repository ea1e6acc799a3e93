package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderTable = `{
  "surface": "data-table",
  "id": "orders-week-12",
  "role": "information",
  "columns": [
    {"key": "order", "label": "Order"},
    {"key": "customer", "label": "Customer", "priority": "primary"},
    {"key": "price", "label": "Price", "format": {"kind": "currency", "currency": "USD"}},
    {"key": "status", "label": "Status", "format": {"kind": "status", "statusMap": {"cut": {"tone": "info", "label": "Cutting"}}}},
    {"key": "tags", "label": "Tags", "format": {"kind": "array", "maxVisible": 2}}
  ],
  "data": [
    {"order": "A-100", "customer": "Lin", "price": 29.99, "status": "cut", "tags": ["rush", "silk"]},
    {"order": "A-101", "customer": "Ortiz", "price": null, "status": "sewn", "tags": []}
  ],
  "rowIdKey": "order",
  "defaultSort": {"by": "price", "direction": "desc"}
}`

func TestParseDataTableReturnsTypedPayload(t *testing.T) {
	t.Parallel()

	table, err := Parse[DataTable]([]byte(orderTable), "data-table")
	require.NoError(t, err)

	assert.Equal(t, "orders-week-12", table.ID)
	assert.Equal(t, RoleInformation, table.Role)
	require.Len(t, table.Columns, 5)
	assert.Equal(t, FormatCurrency, table.Columns[2].Format.Kind())
	assert.Equal(t, CurrencyFormat{Currency: "USD"}, table.Columns[2].Format.Spec)
	assert.True(t, table.Columns[0].IsSortable())

	price, ok := table.Data[0]["price"].Num()
	require.True(t, ok)
	assert.Equal(t, 29.99, price)
	assert.True(t, table.Data[1]["price"].IsNull())
	assert.Len(t, table.Data[0]["tags"].Items(), 2)
	assert.Equal(t, &SortState{By: "price", Direction: SortDesc}, table.DefaultSort)
}

func TestParseRoundTripsValidatedSubset(t *testing.T) {
	t.Parallel()

	table, err := Parse[DataTable]([]byte(orderTable), "data-table")
	require.NoError(t, err)

	encoded, err := json.Marshal(table)
	require.NoError(t, err)
	again, err := Parse[DataTable](encoded, "data-table")
	require.NoError(t, err)
	assert.Equal(t, table, again)
}

func TestParseReportsOffendingPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		path    string
	}{
		{
			name:    "missing id",
			payload: `{"columns":[{"key":"a","label":"A"}],"data":[]}`,
			path:    "id: required",
		},
		{
			name:    "empty id",
			payload: `{"id":"","columns":[{"key":"a","label":"A"}],"data":[]}`,
			path:    "id: ",
		},
		{
			name:    "bad format kind",
			payload: `{"id":"t","columns":[{"key":"a","label":"A"},{"key":"b","label":"B"},{"key":"c","label":"C","format":{"kind":"sparkle"}}],"data":[]}`,
			path:    "columns[2].format.kind: ",
		},
		{
			name:    "negative maxVisible",
			payload: `{"id":"t","columns":[{"key":"a","label":"A","format":{"kind":"array","maxVisible":-1}}],"data":[]}`,
			path:    "columns[0].format.maxVisible: ",
		},
		{
			name:    "option from another kind",
			payload: `{"id":"t","columns":[{"key":"a","label":"A","format":{"kind":"text","decimals":2}}],"data":[]}`,
			path:    "columns[0].format.decimals: unknown field",
		},
		{
			name:    "nested row object",
			payload: `{"id":"t","columns":[{"key":"a","label":"A"}],"data":[{"a":{"href":"x"}}]}`,
			path:    "data[0].a: got object, want",
		},
		{
			name:    "bad role",
			payload: `{"id":"t","role":"banner","columns":[{"key":"a","label":"A"}],"data":[]}`,
			path:    "role: value must be one of",
		},
		{
			name:    "direction without by",
			payload: `{"id":"t","columns":[{"key":"a","label":"A"}],"data":[],"sort":{"direction":"asc"}}`,
			path:    "sort.direction: direction requires by",
		},
		{
			name:    "duplicate column key",
			payload: `{"id":"t","columns":[{"key":"a","label":"A"},{"key":"a","label":"B"}],"data":[]}`,
			path:    `columns[1].key: duplicate key "a"`,
		},
		{
			name:    "unknown currency",
			payload: `{"id":"t","columns":[{"key":"a","label":"A","format":{"kind":"currency","currency":"QQQ"}}],"data":[]}`,
			path:    "columns[0].format.currency: unknown ISO 4217 code",
		},
		{
			name:    "malformed json",
			payload: `{"id":`,
			path:    "root: malformed JSON",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse[DataTable]([]byte(tc.payload), "data-table")
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidPayload)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Joined(), tc.path)
			assert.True(t, strings.HasPrefix(err.Error(), "invalid data-table payload: "))
		})
	}
}

func TestParseMessageIsDeterministic(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"columns":[{"label":"A"},{"key":"b"}],"data":[{"a":{}}],"layout":"grid"}`)

	_, first := Parse[DataTable](payload, "data-table")
	require.Error(t, first)
	for range 5 {
		_, again := Parse[DataTable](payload, "data-table")
		require.Equal(t, first.Error(), again.Error())
	}

	var verr *ValidationError
	require.ErrorAs(t, first, &verr)
	for i := 1; i < len(verr.Issues); i++ {
		prev, cur := verr.Issues[i-1], verr.Issues[i]
		assert.True(t, prev.Path < cur.Path || (prev.Path == cur.Path && prev.Message < cur.Message),
			"issues not strictly ordered: %v then %v", prev, cur)
	}
	assert.Contains(t, verr.Joined(), "columns[0].key: required")
	assert.Contains(t, verr.Joined(), "columns[1].label: required")
	assert.Contains(t, verr.Joined(), "id: required")
}

func TestParseStatsAndApproval(t *testing.T) {
	t.Parallel()

	stats, err := Parse[StatsDisplay]([]byte(`{
	  "id": "payroll",
	  "stats": [
	    {"key": "pieces", "label": "Pieces", "value": 1284, "diff": {"value": 12.5, "label": "vs last week"},
	     "sparkline": {"data": [3, 5, 4, 8]}},
	    {"key": "rate", "label": "Rate", "value": "0.42", "format": {"kind": "currency", "currency": "eur", "decimals": 2}}
	  ]
	}`), "stats-display")
	require.NoError(t, err)
	require.Len(t, stats.Stats, 2)
	assert.True(t, stats.Stats[0].Diff.UpIsGood())

	_, err = Parse[StatsDisplay]([]byte(`{"id":"s","stats":[{"key":"a","label":"A","value":true}]}`), "stats-display")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats[0].value: got boolean, want string or number")

	_, err = Parse[StatsDisplay]([]byte(`{"id":"s","stats":[{"key":"a","label":"A","value":1,"sparkline":{"data":[1]}}]}`), "stats-display")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats[0].sparkline.data: ")

	approval, err := Parse[ApprovalPrompt]([]byte(`{
	  "id": "approve-payroll",
	  "title": "Release payroll for week 12?",
	  "actions": [
	    {"id": "cancel", "label": "Cancel"},
	    {"id": "release", "label": "Release", "confirmLabel": "Really?", "variant": "destructive"}
	  ]
	}`), "approval")
	require.NoError(t, err)
	assert.Equal(t, VariantGhost, approval.Actions[0].ResolvedVariant())
	assert.Equal(t, VariantDestructive, approval.Actions[1].ResolvedVariant())
}

func TestParseAnyDispatchesOnSurface(t *testing.T) {
	t.Parallel()

	payload, err := ParseAny([]byte(orderTable))
	require.NoError(t, err)
	assert.Equal(t, SurfaceDataTable, payload.SurfaceKind())
	assert.Equal(t, "orders-week-12", payload.Identity().ID)

	_, err = ParseAny([]byte(`{"id":"x"}`))
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseAny([]byte(`{"surface":"chart","id":"x"}`))
	require.ErrorIs(t, err, ErrUnknownSurface)
}

func TestReceiptRequiresTimestamp(t *testing.T) {
	t.Parallel()

	_, err := Parse[ApprovalPrompt]([]byte(`{
	  "id": "a", "title": "T", "actions": [{"id": "ok", "label": "OK"}],
	  "receipt": {"outcome": "success", "summary": "done", "at": "yesterday"}
	}`), "approval")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receipt.at: ")
}

func TestInferVariant(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"cancel", "Dismiss", "not-now", "maybe_later", "reject"} {
		assert.Equal(t, VariantGhost, InferVariant(id), id)
	}
	for _, id := range []string{"approve", "cancel-order", "release", ""} {
		assert.Equal(t, VariantDefault, InferVariant(id), id)
	}
}

func TestToolInputSchemaDropsDraftKeyword(t *testing.T) {
	t.Parallel()

	for _, kind := range SurfaceKinds() {
		doc, err := ToolInputSchema(kind)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(doc, &decoded))
		assert.NotContains(t, decoded, "$schema")
		assert.Equal(t, "object", decoded["type"])
		assert.Contains(t, decoded["required"], "id")
	}
}
