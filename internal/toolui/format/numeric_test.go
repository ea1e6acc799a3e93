package format

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/toolui/schema"
)

func TestParseNumericLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
	}{
		{"2.8T", 2800000000000},
		{"768B", 768},
		{"(1,234.50)", -1234.5},
		{"$1,234.56", 1234.56},
		{"1.234,56 €", 1234.56},
		{"12,50", 12.5},
		{"1,234,567", 1234567},
		{"1.234.567", 1234567},
		{"1.5B", 1.5e9},
		{"2048B", 2.048e12},
		{"512 MB", 512 * 1024 * 1024},
		{"1.5kb", 1536},
		{"3k", 3000},
		{"-3.5M", -3.5e6},
		{" 42 % ", 42},
		{" 1 2 3", 123},
		{"1e3", 1000},
		{"+7", 7},
		{"(¥500)", -500},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseNumericLike(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseNumericLikeRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "abc", "NaN", "Inf", "0x10", "1_000", "12XB", "--1", "()", "1.2.3,4,5"} {
		_, ok := ParseNumericLike(in)
		assert.False(t, ok, in)
	}
}

func TestCurrencyRoundTripProperty(t *testing.T) {
	t.Parallel()

	f := New("en-US")
	usd := schema.CurrencyFormat{Currency: "USD", Decimals: intPtr(2)}

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("formatted currency parses back to its amount", prop.ForAll(
		func(cents int64) bool {
			amount := float64(cents) / 100
			text := f.Currency(amount, usd).Text
			parsed, ok := ParseNumericLike(text)
			if !ok || math.Abs(parsed-amount) > 1e-9 {
				return false
			}
			return f.Currency(parsed, usd).Text == text
		},
		gen.Int64Range(-1_000_000_000, 1_000_000_000),
	))
	properties.TestingRun(t)
}

func TestCompactRoundTripProperty(t *testing.T) {
	t.Parallel()

	f := New("en-US")

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("compact text is stable through parse", prop.ForAll(
		func(x float64) bool {
			text := f.Compact(x, nil)
			parsed, ok := ParseNumericLike(text)
			return ok && f.Compact(parsed, nil) == text
		},
		gen.Float64Range(1, 1e14),
	))
	properties.TestingRun(t)
}
