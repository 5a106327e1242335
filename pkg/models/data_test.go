package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldValueUnmarshalScalars(t *testing.T) {
	var data SecretData
	require.NoError(t, json.Unmarshal([]byte(`{
		"key": "sk_live_abc123",
		"max_uses": 500,
		"active": true
	}`), &data))

	assert.Equal(t, FieldString, data["key"].Kind())
	assert.Equal(t, "sk_live_abc123", data["key"].Str())
	assert.Equal(t, FieldNumber, data["max_uses"].Kind())
	assert.Equal(t, 500.0, data["max_uses"].Num())
	assert.Equal(t, FieldBool, data["active"].Kind())
	assert.True(t, data["active"].Bool())
}

func TestFieldValueRejectsNonScalars(t *testing.T) {
	var data SecretData
	err := json.Unmarshal([]byte(`{"scopes": ["read", "write"]}`), &data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be string, number, or bool")

	err = json.Unmarshal([]byte(`{"nested": {"a": 1}}`), &data)
	require.Error(t, err)

	err = json.Unmarshal([]byte(`{"missing": null}`), &data)
	require.Error(t, err)
}

func TestFieldValueMarshal(t *testing.T) {
	data := SecretData{
		"key":      StringValue("abc"),
		"max_uses": NumberValue(500),
		"active":   BoolValue(false),
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"abc","max_uses":500,"active":false}`, string(raw))
}

func TestFieldValueString(t *testing.T) {
	assert.Equal(t, "abc", StringValue("abc").String())
	assert.Equal(t, "42.5", NumberValue(42.5).String())
	assert.Equal(t, "true", BoolValue(true).String())
}

func TestSecretDataFromWire(t *testing.T) {
	data := SecretDataFromWire(map[string]any{
		"key":      "abc",
		"count":    float64(3),
		"number":   json.Number("12"),
		"enabled":  true,
		"ignored":  []any{"a"},
		"ignored2": map[string]any{"b": 1},
	})

	assert.Len(t, data, 4)
	assert.Equal(t, "abc", data["key"].Str())
	assert.Equal(t, 3.0, data["count"].Num())
	assert.Equal(t, 12.0, data["number"].Num())
	assert.True(t, data["enabled"].Bool())
}

func TestWireFormatValid(t *testing.T) {
	assert.True(t, WireFormatPEM.Valid())
	assert.True(t, WireFormatJSON.Valid())
	assert.True(t, WireFormatString.Valid())
	assert.False(t, WireFormat("xml").Valid())
	assert.False(t, WireFormat("").Valid())
}
