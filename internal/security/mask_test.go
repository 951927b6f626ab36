package security

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSensitiveData_Object(t *testing.T) {
	t.Parallel()

	in := map[string]any{"password": "secret", "name": "Bob"}
	got := MaskSensitiveData(in)
	assert.Equal(t, map[string]any{"password": MaskedValue, "name": "Bob"}, got)
	assert.Equal(t, "secret", in["password"], "input must not be modified")
}

func TestMaskSensitiveData_FalsyLeftAlone(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"password":     "",
		"access_token": nil,
		"stripe_id":    0,
		"tax_id":       false,
		"name":         "Bob",
	}
	assert.Equal(t, in, MaskSensitiveData(in))
}

func TestMaskSensitiveData_ArrayPreservesOrder(t *testing.T) {
	t.Parallel()

	in := []any{
		map[string]any{"id": 1, "access_token": "x"},
		map[string]any{"id": 2, "access_token": "y"},
		"plain",
	}
	got, ok := MaskSensitiveData(in).([]any)
	require.True(t, ok)
	require.Len(t, got, 3)
	assert.Equal(t, map[string]any{"id": 1, "access_token": MaskedValue}, got[0])
	assert.Equal(t, map[string]any{"id": 2, "access_token": MaskedValue}, got[1])
	assert.Equal(t, "plain", got[2])
}

func TestMaskSensitiveData_RowSlice(t *testing.T) {
	t.Parallel()

	in := []map[string]any{{"bank_account": "DE00"}, {"bank_account": ""}}
	got, ok := MaskSensitiveData(in).([]map[string]any)
	require.True(t, ok)
	assert.Equal(t, MaskedValue, got[0]["bank_account"])
	assert.Equal(t, "", got[1]["bank_account"])
}

func TestMaskSensitiveData_Nested(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"client": map[string]any{
			"company": "Acme",
			"contacts": []any{
				map[string]any{"email": "a@acme.test", "password": "hunter2"},
			},
			"billing": map[string]any{"credit_card_number": "4111111111111111"},
		},
	}
	got := MaskSensitiveData(in).(map[string]any)
	client := got["client"].(map[string]any)
	contact := client["contacts"].([]any)[0].(map[string]any)
	assert.Equal(t, MaskedValue, contact["password"])
	assert.Equal(t, "a@acme.test", contact["email"])
	assert.Equal(t, MaskedValue, client["billing"].(map[string]any)["credit_card_number"])
}

func TestMaskSensitiveData_Scalars(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text", MaskSensitiveData("text"))
	assert.Equal(t, 42, MaskSensitiveData(42))
	assert.Nil(t, MaskSensitiveData(nil))
}

func TestMaskSensitiveData_JSONNumbers(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"tax_id":    json.Number("0"),
		"stripe_id": json.Number("42"),
		"id":        json.Number("9007199254740993"),
	}
	got := MaskSensitiveData(in).(map[string]any)
	assert.Equal(t, json.Number("0"), got["tax_id"])
	assert.Equal(t, MaskedValue, got["stripe_id"])
	assert.Equal(t, json.Number("9007199254740993"), got["id"])
}
