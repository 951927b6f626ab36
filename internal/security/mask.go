package security

import (
	"encoding/json"
	"math"
	"reflect"
)

// MaskedValue replaces the value of a sensitive field.
const MaskedValue = "***MASKED***"

var sensitiveFields = map[string]struct{}{
	"password":           {},
	"access_token":       {},
	"stripe_id":          {},
	"plaid_account_name": {},
	"credit_card_number": {},
	"bank_account":       {},
	"social_security":    {},
	"tax_id":             {},
}

// IsSensitiveField reports whether values under key are masked.
func IsSensitiveField(key string) bool {
	_, ok := sensitiveFields[key]
	return ok
}

// MaskSensitiveData returns a copy of data with every truthy sensitive field replaced by
// MaskedValue. Maps and slices are walked to any depth; other values pass through.
// The input is not modified.
func MaskSensitiveData(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if IsSensitiveField(key) && isTruthy(val) {
				out[key] = MaskedValue
				continue
			}
			out[key] = MaskSensitiveData(val)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, row := range v {
			out[i], _ = MaskSensitiveData(row).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = MaskSensitiveData(item)
		}
		return out
	default:
		return data
	}
}

// isTruthy treats nil, false, "", and numeric zero as empty.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.String:
		return rv.Len() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
