package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	jsreflect "github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FormatKind names a column or stat format.
type FormatKind string

const (
	FormatText     FormatKind = "text"
	FormatNumber   FormatKind = "number"
	FormatCurrency FormatKind = "currency"
	FormatPercent  FormatKind = "percent"
	FormatDate     FormatKind = "date"
	FormatDelta    FormatKind = "delta"
	FormatStatus   FormatKind = "status"
	FormatBoolean  FormatKind = "boolean"
	FormatLink     FormatKind = "link"
	FormatBadge    FormatKind = "badge"
	FormatArray    FormatKind = "array"
)

// FormatKinds lists every kind in declaration order.
func FormatKinds() []FormatKind {
	return []FormatKind{
		FormatText, FormatNumber, FormatCurrency, FormatPercent, FormatDate, FormatDelta,
		FormatStatus, FormatBoolean, FormatLink, FormatBadge, FormatArray,
	}
}

// Tone is a semantic colour category; themes map it to real colours.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
	ToneInfo    Tone = "info"
	ToneNeutral Tone = "neutral"
)

// ToneLabel maps a raw status or badge value to its presentation.
type ToneLabel struct {
	Tone  Tone   `json:"tone" jsonschema:"enum=success,enum=warning,enum=danger,enum=info,enum=neutral"`
	Label string `json:"label,omitempty"`
}

// FormatSpec is implemented by the per-kind option structs below. The set is
// closed: only this package can add kinds.
type FormatSpec interface {
	Kind() FormatKind
	isFormatSpec()
}

type TextFormat struct{}

type NumberFormat struct {
	Decimals *int   `json:"decimals,omitempty" jsonschema:"minimum=0,maximum=20"`
	Unit     string `json:"unit,omitempty"`
	Compact  bool   `json:"compact,omitempty"`
	ShowSign bool   `json:"showSign,omitempty"`
}

type CurrencyFormat struct {
	Currency string `json:"currency" jsonschema:"pattern=^[A-Za-z]{3}$"`
	Decimals *int   `json:"decimals,omitempty" jsonschema:"minimum=0,maximum=20"`
	Compact  bool   `json:"compact,omitempty"`
}

type PercentBasis string

const (
	BasisFraction PercentBasis = "fraction"
	BasisUnit     PercentBasis = "unit"
)

type PercentFormat struct {
	Decimals *int         `json:"decimals,omitempty" jsonschema:"minimum=0,maximum=20"`
	ShowSign bool         `json:"showSign,omitempty"`
	Basis    PercentBasis `json:"basis,omitempty" jsonschema:"enum=fraction,enum=unit"`
}

type DateStyle string

const (
	DateShort    DateStyle = "short"
	DateLong     DateStyle = "long"
	DateRelative DateStyle = "relative"
)

type DateFormat struct {
	Style DateStyle `json:"dateFormat,omitempty" jsonschema:"enum=short,enum=long,enum=relative"`
}

type DeltaFormat struct {
	Decimals     *int  `json:"decimals,omitempty" jsonschema:"minimum=0,maximum=20"`
	UpIsPositive *bool `json:"upIsPositive,omitempty"`
	ShowSign     *bool `json:"showSign,omitempty"`
}

type StatusFormat struct {
	StatusMap map[string]ToneLabel `json:"statusMap"`
}

type BadgeFormat struct {
	ColorMap map[string]ToneLabel `json:"colorMap,omitempty"`
}

type BooleanLabels struct {
	True  string `json:"true"`
	False string `json:"false"`
}

type BooleanFormat struct {
	Labels *BooleanLabels `json:"labels,omitempty"`
}

type LinkFormat struct {
	HrefKey  string `json:"hrefKey,omitempty"`
	External bool   `json:"external,omitempty"`
}

type ArrayFormat struct {
	MaxVisible *int `json:"maxVisible,omitempty" jsonschema:"minimum=0"`
}

func (TextFormat) Kind() FormatKind { return FormatText }
func (NumberFormat) Kind() FormatKind { return FormatNumber }
func (CurrencyFormat) Kind() FormatKind { return FormatCurrency }
func (PercentFormat) Kind() FormatKind { return FormatPercent }
func (DateFormat) Kind() FormatKind { return FormatDate }
func (DeltaFormat) Kind() FormatKind { return FormatDelta }
func (StatusFormat) Kind() FormatKind { return FormatStatus }
func (BadgeFormat) Kind() FormatKind { return FormatBadge }
func (BooleanFormat) Kind() FormatKind { return FormatBoolean }
func (LinkFormat) Kind() FormatKind { return FormatLink }
func (ArrayFormat) Kind() FormatKind { return FormatArray }

func (TextFormat) isFormatSpec() {}
func (NumberFormat) isFormatSpec() {}
func (CurrencyFormat) isFormatSpec() {}
func (PercentFormat) isFormatSpec() {}
func (DateFormat) isFormatSpec() {}
func (DeltaFormat) isFormatSpec() {}
func (StatusFormat) isFormatSpec() {}
func (BadgeFormat) isFormatSpec() {}
func (BooleanFormat) isFormatSpec() {}
func (LinkFormat) isFormatSpec() {}
func (ArrayFormat) isFormatSpec() {}

// UpIsGood defaults to true.
func (f DeltaFormat) UpIsGood() bool {
	return f.UpIsPositive == nil || *f.UpIsPositive
}

func newFormatSpec(kind FormatKind) (FormatSpec, bool) {
	switch kind {
	case FormatText:
		return &TextFormat{}, true
	case FormatNumber:
		return &NumberFormat{}, true
	case FormatCurrency:
		return &CurrencyFormat{}, true
	case FormatPercent:
		return &PercentFormat{}, true
	case FormatDate:
		return &DateFormat{}, true
	case FormatDelta:
		return &DeltaFormat{}, true
	case FormatStatus:
		return &StatusFormat{}, true
	case FormatBoolean:
		return &BooleanFormat{}, true
	case FormatLink:
		return &LinkFormat{}, true
	case FormatBadge:
		return &BadgeFormat{}, true
	case FormatArray:
		return &ArrayFormat{}, true
	default:
		return nil, false
	}
}

// Format is the wire envelope around a FormatSpec, discriminated by "kind".
type Format struct {
	Spec FormatSpec
}

// F wraps spec in a Format.
func F(spec FormatSpec) *Format {
	return &Format{Spec: spec}
}

// Kind returns the wrapped kind; a nil or empty format is text.
func (f *Format) Kind() FormatKind {
	if f == nil || f.Spec == nil {
		return FormatText
	}
	return f.Spec.Kind()
}

// SpecOrText never returns nil.
func (f *Format) SpecOrText() FormatSpec {
	if f == nil || f.Spec == nil {
		return TextFormat{}
	}
	return f.Spec
}

func (f Format) MarshalJSON() ([]byte, error) {
	spec := f.Spec
	if spec == nil {
		spec = TextFormat{}
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "kind", string(spec.Kind()))
}

func (f *Format) UnmarshalJSON(data []byte) error {
	kind := FormatKind(gjson.GetBytes(data, "kind").String())
	spec, ok := newFormatSpec(kind)
	if !ok {
		return fmt.Errorf("unknown format kind %q", kind)
	}
	if err := json.Unmarshal(data, spec); err != nil {
		return err
	}
	f.Spec = reflect.ValueOf(spec).Elem().Interface().(FormatSpec)
	return nil
}

// JSONSchema emits an if/then chain keyed on "kind" so an unknown kind is
// reported at the kind property and option errors land on the option path.
func (Format) JSONSchema() *jsreflect.Schema {
	kinds := FormatKinds()
	enum := make([]any, 0, len(kinds))
	for _, k := range kinds {
		enum = append(enum, string(k))
	}

	props := jsreflect.NewProperties()
	props.Set("kind", &jsreflect.Schema{Type: "string", Enum: enum})
	s := &jsreflect.Schema{
		Type:       "object",
		Required:   []string{"kind"},
		Properties: props,
	}

	for _, k := range kinds {
		spec, _ := newFormatSpec(k)
		branch := branchSchema(spec)
		branch.Properties.Set("kind", &jsreflect.Schema{Const: string(k)})

		cond := jsreflect.NewProperties()
		cond.Set("kind", &jsreflect.Schema{Const: string(k)})
		s.AllOf = append(s.AllOf, &jsreflect.Schema{
			If:   &jsreflect.Schema{Properties: cond, Required: []string{"kind"}},
			Then: branch,
		})
	}
	return s
}

func branchSchema(v any) *jsreflect.Schema {
	s := newReflector().Reflect(v)
	s.Version = ""
	s.ID = ""
	if s.Properties == nil {
		s.Properties = jsreflect.NewProperties()
	}
	return s
}
