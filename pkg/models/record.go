// Package models provides the semi-structured record model that flows from
// the Shopify fetcher into the row transformers.
//
// A Record is a decoded JSON object. Its leaves are nil, bool, json.Number,
// string, []interface{} or nested map[string]interface{} values, exactly as
// produced by pkg/json decoders. Field access goes through Get, which never
// fails: a missing property yields an absence marker instead of an error.
package models

import (
	"encoding/json"
	"strconv"
	"strings"

	jsonpool "github.com/ultimatecoffee/shopsync/pkg/json"
)

// Record is one JSON object returned by the API
type Record map[string]interface{}

// Kind identifies the JSON type held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged view over one JSON value. The zero Value is JSON null.
type Value struct {
	raw interface{}
}

// NewValue wraps a decoded JSON value. Go numeric types are normalized to
// json.Number and Record to a plain map so Kind is always well defined.
func NewValue(raw interface{}) Value {
	return Value{raw: normalize(raw)}
}

// Raw returns the underlying decoded value
func (v Value) Raw() interface{} {
	return v.raw
}

// Kind returns the JSON type of the value
func (v Value) Kind() Kind {
	switch v.raw.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case json.Number:
		return KindNumber
	case string:
		return KindString
	case []interface{}:
		return KindArray
	case map[string]interface{}:
		return KindObject
	default:
		return KindNull
	}
}

// IsNull reports whether the value is JSON null
func (v Value) IsNull() bool {
	return v.Kind() == KindNull
}

// Truthy mirrors the loose truthiness the Shopify payloads are written
// against: null, false, 0, "" and NaN are false, everything else is true.
func (v Value) Truthy() bool {
	switch t := v.raw.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || (f != 0 && f == f)
	case string:
		return t != ""
	default:
		return true
	}
}

// String returns the value if it is a JSON string
func (v Value) String() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// Text renders scalars as text: strings as-is, numbers in their source
// spelling, booleans as true/false. Null, arrays and objects are not text.
func (v Value) Text() (string, bool) {
	switch t := v.raw.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Float returns the value as a float64. Numeric strings such as Shopify's
// money amounts ("12.50") are accepted.
func (v Value) Float() (float64, bool) {
	switch t := v.raw.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns the value as an int64 if it is an integral number
func (v Value) Int() (int64, bool) {
	switch t := v.raw.(type) {
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Array returns the elements if the value is a JSON array
func (v Value) Array() ([]Value, bool) {
	arr, ok := v.raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]Value, len(arr))
	for i, e := range arr {
		out[i] = Value{raw: e}
	}
	return out, true
}

// Object returns the value as a Record if it is a JSON object
func (v Value) Object() (Record, bool) {
	m, ok := v.raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return Record(m), true
}

// Len returns the element count of an array or object, 0 otherwise
func (v Value) Len() int {
	switch t := v.raw.(type) {
	case []interface{}:
		return len(t)
	case map[string]interface{}:
		return len(t)
	default:
		return 0
	}
}

// Cell converts the value into a spreadsheet cell. Integral numbers become
// int64, other numbers float64, strings and booleans pass through and null
// becomes a blank cell. Arrays and objects are rendered as compact JSON.
func (v Value) Cell() interface{} {
	switch t := v.raw.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []interface{}, map[string]interface{}:
		b, err := jsonpool.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return t
	}
}

func normalize(raw interface{}) interface{} {
	switch t := raw.(type) {
	case Record:
		return map[string]interface{}(t)
	case int:
		return json.Number(strconv.Itoa(t))
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case float64:
		return json.Number(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return raw
	}
}
