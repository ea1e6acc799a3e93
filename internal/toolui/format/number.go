package format

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/number"

	"loom/internal/toolui/schema"
)

// digits formats x with between lo and hi fraction digits using the locale's
// grouping and decimal marks.
func (f *Formatter) digits(x float64, lo, hi int) string {
	return f.printer.Sprint(number.Decimal(x, number.MinFractionDigits(lo), number.MaxFractionDigits(hi)))
}

// Decimal formats x with a fixed number of fraction digits, or up to three
// when decimals is nil.
func (f *Formatter) Decimal(x float64, decimals *int) string {
	if decimals == nil {
		return f.digits(x, 0, 3)
	}
	return f.digits(x, *decimals, *decimals)
}

var compactSteps = []struct {
	suffix string
	scale  float64
}{
	{"K", 1e3},
	{"M", 1e6},
	{"B", 1e9},
	{"T", 1e12},
}

// Compact renders x in short notation ("1.2K", "38M"). Without explicit
// decimals, values under ten keep one fraction digit and trailing zeros drop.
func (f *Formatter) Compact(x float64, decimals *int) string {
	abs := math.Abs(x)
	step := -1
	for i, s := range compactSteps {
		if abs >= s.scale {
			step = i
		}
	}

	scaled := x
	if step >= 0 {
		scaled = x / compactSteps[step].scale
	}
	lo, hi := compactDigits(scaled, decimals)
	if step+1 < len(compactSteps) && roundHalfAway(math.Abs(scaled), hi) >= 1000 {
		step++
		scaled = x / compactSteps[step].scale
		lo, hi = compactDigits(scaled, decimals)
	}

	text := f.digits(scaled, lo, hi)
	if step >= 0 {
		text += compactSteps[step].suffix
	}
	return text
}

func compactDigits(scaled float64, decimals *int) (int, int) {
	if decimals != nil {
		return *decimals, *decimals
	}
	if math.Abs(scaled) < 10 {
		return 0, 1
	}
	return 0, 0
}

func roundHalfAway(x float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(x*p) / p
}

func withSign(text string, x float64, show bool) string {
	if show && x > 0 {
		return "+" + text
	}
	return text
}

// Number renders a plain number with optional compact notation, sign and unit.
func (f *Formatter) Number(x float64, spec schema.NumberFormat) Rendered {
	var text string
	if spec.Compact {
		text = f.Compact(x, spec.Decimals)
	} else {
		text = f.Decimal(x, spec.Decimals)
	}
	text = withSign(text, x, spec.ShowSign)
	if spec.Unit != "" {
		text += " " + spec.Unit
	}
	return Rendered{Text: text, Numeric: true}
}

// Percent renders x as a percentage; the fraction basis multiplies by 100.
func (f *Formatter) Percent(x float64, spec schema.PercentFormat) Rendered {
	shown := x
	if spec.Basis != schema.BasisUnit {
		shown = x * 100
	}
	decimals := 0
	if spec.Decimals != nil {
		decimals = *spec.Decimals
	}
	text := withSign(f.digits(shown, decimals, decimals), shown, spec.ShowSign) + "%"
	return Rendered{Text: text, Numeric: true}
}

// DeltaStyle derives the tone and arrow of a directional change. Zero is neutral.
func DeltaStyle(x float64, upIsPositive bool) (schema.Tone, Arrow) {
	switch {
	case x > 0:
		if upIsPositive {
			return schema.ToneSuccess, ArrowUp
		}
		return schema.ToneDanger, ArrowUp
	case x < 0:
		if upIsPositive {
			return schema.ToneDanger, ArrowDown
		}
		return schema.ToneSuccess, ArrowDown
	default:
		return schema.ToneNeutral, ArrowNone
	}
}

// Delta renders a signed change. The plus sign shows unless ShowSign is false.
func (f *Formatter) Delta(x float64, spec schema.DeltaFormat) Rendered {
	text := f.digits(x, 0, 2)
	if spec.Decimals != nil {
		text = f.digits(x, *spec.Decimals, *spec.Decimals)
	}
	text = withSign(text, x, spec.ShowSign == nil || *spec.ShowSign)
	tone, arrow := DeltaStyle(x, spec.UpIsGood())
	return Rendered{Text: text, Tone: tone, Arrow: arrow, Numeric: true}
}

var currencyNames = map[string]string{
	"USD": "US dollars", "EUR": "euros", "GBP": "British pounds", "JPY": "Japanese yen",
	"CNY": "Chinese yuan", "INR": "Indian rupees", "KRW": "South Korean won",
	"CAD": "Canadian dollars", "AUD": "Australian dollars", "HKD": "Hong Kong dollars",
	"MXN": "Mexican pesos", "BRL": "Brazilian reals", "CHF": "Swiss francs",
	"SGD": "Singapore dollars", "NZD": "New Zealand dollars", "TWD": "New Taiwan dollars",
	"SEK": "Swedish kronor", "ILS": "Israeli new shekels", "VND": "Vietnamese dong",
	"PHP": "Philippine pesos",
}

// Languages that place the currency symbol after the amount.
var symbolAfter = map[string]bool{
	"de": true, "fr": true, "es": true, "it": true, "ru": true, "pl": true,
	"cs": true, "sv": true, "fi": true, "da": true, "nb": true,
}

// currencySymbol is the locale's symbol for code. The home currency of the
// locale's region takes its narrow form ("$" rather than "CA$" in Canada).
func (f *Formatter) currencySymbol(code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code
	}
	form := currency.Symbol
	if region, conf := f.tag.Region(); conf != language.No {
		if home, ok := currency.FromRegion(region); ok && home == unit {
			form = currency.NarrowSymbol
		}
	}
	return f.printer.Sprint(form(unit))
}

// CurrencyName is the spoken plural name, falling back to the ISO code.
func CurrencyName(code string) string {
	code = strings.ToUpper(code)
	if name, ok := currencyNames[code]; ok {
		return name
	}
	return code
}

// Currency renders an amount with the locale's symbol placement. The spoken
// form uses the currency's name instead of its symbol.
func (f *Formatter) Currency(x float64, spec schema.CurrencyFormat) Rendered {
	code := strings.ToUpper(spec.Currency)
	decimals := 2
	if unit, err := currency.ParseISO(code); err == nil {
		decimals, _ = currency.Standard.Rounding(unit)
	}
	if spec.Decimals != nil {
		decimals = *spec.Decimals
	}

	var amount string
	if spec.Compact {
		amount = f.Compact(math.Abs(x), spec.Decimals)
	} else {
		amount = f.digits(math.Abs(x), decimals, decimals)
	}

	symbol := f.currencySymbol(code)
	base, _ := f.tag.Base()
	var text string
	switch {
	case symbolAfter[base.String()]:
		text = amount + "\u00a0" + symbol
	case symbol == code:
		text = code + " " + amount
	default:
		text = symbol + amount
	}

	sign := ""
	if x < 0 {
		sign = "-"
	}
	return Rendered{
		Text:    sign + text,
		Spoken:  sign + amount + " " + CurrencyName(code),
		Numeric: true,
	}
}
