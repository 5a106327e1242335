package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldKind discriminates the closed set of secret field value types.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldNumber
	FieldBool
)

// FieldValue is one secret data value: a string, a number, or a bool.
// Nested arrays and objects are rejected at decode time so required-field
// validation stays exhaustive.
type FieldValue struct {
	kind FieldKind
	str  string
	num  float64
	b    bool
}

// StringValue wraps a string.
func StringValue(s string) FieldValue { return FieldValue{kind: FieldString, str: s} }

// NumberValue wraps a number.
func NumberValue(n float64) FieldValue { return FieldValue{kind: FieldNumber, num: n} }

// BoolValue wraps a bool.
func BoolValue(v bool) FieldValue { return FieldValue{kind: FieldBool, b: v} }

// Kind returns the value's discriminator.
func (v FieldValue) Kind() FieldKind { return v.kind }

// Str returns the string value ("" when the kind is not FieldString).
func (v FieldValue) Str() string { return v.str }

// Num returns the numeric value (0 when the kind is not FieldNumber).
func (v FieldValue) Num() float64 { return v.num }

// Bool returns the bool value (false when the kind is not FieldBool).
func (v FieldValue) Bool() bool { return v.b }

// String renders the value for display regardless of kind.
func (v FieldValue) String() string {
	switch v.kind {
	case FieldNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case FieldBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// MarshalJSON encodes the underlying scalar.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case FieldNumber:
		return json.Marshal(v.num)
	case FieldBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON decodes a scalar and rejects everything else.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case string:
		*v = StringValue(val)
	case float64:
		*v = NumberValue(val)
	case bool:
		*v = BoolValue(val)
	default:
		return fmt.Errorf("secret field values must be string, number, or bool, got %T", raw)
	}
	return nil
}

// SecretData is the sensitive payload of a secret: field name to value.
type SecretData map[string]FieldValue

// ToWire converts the data to the generic map shape the secret store
// accepts.
func (d SecretData) ToWire() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		switch v.kind {
		case FieldNumber:
			out[k] = v.num
		case FieldBool:
			out[k] = v.b
		default:
			out[k] = v.str
		}
	}
	return out
}

// SecretDataFromWire converts a raw store payload back into SecretData.
// Non-scalar values are dropped.
func SecretDataFromWire(raw map[string]any) SecretData {
	out := make(SecretData, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = StringValue(val)
		case float64:
			out[k] = NumberValue(val)
		case json.Number:
			n, err := val.Float64()
			if err == nil {
				out[k] = NumberValue(n)
			}
		case int:
			out[k] = NumberValue(float64(val))
		case int64:
			out[k] = NumberValue(float64(val))
		case bool:
			out[k] = BoolValue(val)
		}
	}
	return out
}
