package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueDecodesPrimitives(t *testing.T) {
	t.Parallel()

	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"s":"x","n":1.5,"b":false,"z":null,"a":[1,"two",true,null]}`), &row))

	assert.Equal(t, ValueString, row["s"].Kind())
	assert.Equal(t, ValueNumber, row["n"].Kind())
	assert.Equal(t, ValueBool, row["b"].Kind())
	assert.True(t, row["z"].IsNull())
	assert.True(t, row.Get("missing").IsNull())
	assert.Equal(t, "1, two, true, ", row["a"].String())
}

func TestValueRejectsNesting(t *testing.T) {
	t.Parallel()

	var v Value
	require.ErrorIs(t, json.Unmarshal([]byte(`{"a":1}`), &v), ErrNestedValue)
	require.ErrorIs(t, json.Unmarshal([]byte(`[[1]]`), &v), ErrNestedValue)
}

func TestValueEmptiness(t *testing.T) {
	t.Parallel()

	assert.True(t, Null().IsEmpty())
	assert.True(t, String("").IsEmpty())
	assert.False(t, String(" ").IsEmpty())
	assert.False(t, Number(0).IsEmpty())
	assert.False(t, Array().IsEmpty())
}

func TestFormatMarshalCarriesKind(t *testing.T) {
	t.Parallel()

	decimals := 2
	encoded, err := json.Marshal(F(CurrencyFormat{Currency: "USD", Decimals: &decimals}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"currency","currency":"USD","decimals":2}`, string(encoded))

	var decoded Format
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, CurrencyFormat{Currency: "USD", Decimals: &decimals}, decoded.Spec)

	var nilFormat *Format
	assert.Equal(t, FormatText, nilFormat.Kind())
}
