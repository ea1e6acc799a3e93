package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsreflect "github.com/invopop/jsonschema"
)

// ErrNestedValue is returned when a row cell or array item holds an object.
var ErrNestedValue = errors.New("nested objects are not allowed")

// ValueKind discriminates the primitive shapes a cell may hold.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueArray
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "boolean"
	case ValueArray:
		return "array"
	default:
		return "null"
	}
}

// Value is a single row cell or stat value: string, number, boolean, null,
// or a flat array of those primitives. The zero Value is null.
type Value struct {
	kind  ValueKind
	str   string
	num   float64
	flag  bool
	items []Value
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: ValueString, str: s} }
func Number(n float64) Value { return Value{kind: ValueNumber, num: n} }
func Bool(b bool) Value { return Value{kind: ValueBool, flag: b} }
func Array(items ...Value) Value {
	return Value{kind: ValueArray, items: append([]Value(nil), items...)}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == ValueNull }

// IsEmpty reports whether the value renders as the missing-value placeholder.
func (v Value) IsEmpty() bool {
	return v.kind == ValueNull || (v.kind == ValueString && v.str == "")
}

func (v Value) Str() (string, bool) {
	return v.str, v.kind == ValueString
}

func (v Value) Num() (float64, bool) {
	return v.num, v.kind == ValueNumber
}

func (v Value) Boolean() (bool, bool) {
	return v.flag, v.kind == ValueBool
}

func (v Value) Items() []Value {
	if v.kind != ValueArray {
		return nil
	}
	return v.items
}

// String returns the raw textual form used for labels and map lookups.
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.flag)
	case ValueArray:
		parts := make([]string, 0, len(v.items))
		for _, item := range v.items {
			parts = append(parts, item.String())
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == other.str
	case ValueNumber:
		return v.num == other.num
	case ValueBool:
		return v.flag == other.flag
	case ValueArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.flag)
	case ValueArray:
		items := v.items
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(items)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := valueFromAny(raw, true)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromAny(raw any, allowArray bool) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case json.Number:
		n, err := typed.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %s: %w", typed, err)
		}
		return Number(n), nil
	case float64:
		return Number(typed), nil
	case []any:
		if !allowArray {
			return Value{}, ErrNestedValue
		}
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			parsed, err := valueFromAny(item, false)
			if err != nil {
				return Value{}, err
			}
			items = append(items, parsed)
		}
		return Array(items...), nil
	default:
		return Value{}, ErrNestedValue
	}
}

// ValueFromAny converts a decoded JSON value into a Value.
func ValueFromAny(raw any) (Value, error) {
	return valueFromAny(raw, true)
}

func primitiveSchemas() []*jsreflect.Schema {
	return []*jsreflect.Schema{
		{Type: "string"},
		{Type: "number"},
		{Type: "boolean"},
		{Type: "null"},
	}
}

// JSONSchema describes a cell: a primitive or a flat array of primitives.
func (Value) JSONSchema() *jsreflect.Schema {
	return &jsreflect.Schema{
		AnyOf: append(primitiveSchemas(), &jsreflect.Schema{
			Type:  "array",
			Items: &jsreflect.Schema{AnyOf: primitiveSchemas()},
		}),
	}
}

// Row is one table record keyed by column key.
type Row map[string]Value

// Get returns the cell for key; a missing key reads as null.
func (r Row) Get(key string) Value {
	if r == nil {
		return Null()
	}
	return r[key]
}
