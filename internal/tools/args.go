package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/crm-tools/internal/security"
)

const dateLayout = "2006-01-02"

// Args is the loosely-typed argument object of a tool call.
type Args map[string]any

// Has reports whether key is present with a non-nil value.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns the value under key as text, or "" when absent.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Text returns the value under key with control characters removed.
func (a Args) Text(key string) string {
	return security.SanitizeText(a.String(key))
}

// Int64 returns the value under key as an integer, or 0 when absent or not integral.
func (a Args) Int64(key string) int64 {
	n, _ := asInt64(a[key])
	return n
}

// Int is Int64 narrowed to int.
func (a Args) Int(key string) int {
	return int(a.Int64(key))
}

// IntOr returns Int(key), or def when key is absent.
func (a Args) IntOr(key string, def int) int {
	if !a.Has(key) {
		return def
	}
	return a.Int(key)
}

// Float returns the value under key as a float, or 0 when absent.
func (a Args) Float(key string) float64 {
	return toFloat(a[key])
}

// Bool returns the value under key as a boolean. Strings "true", "1" and "yes" are true.
func (a Args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1" || s == "yes"
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}

// Map returns the object under key, or nil.
func (a Args) Map(key string) map[string]any {
	m, _ := a[key].(map[string]any)
	return m
}

// Slice returns the array under key, or nil.
func (a Args) Slice(key string) []any {
	s, _ := a[key].([]any)
	return s
}

// Search returns the normalised search condition, if any.
func (a Args) Search() *security.SearchCondition {
	switch v := a["search"].(type) {
	case *security.SearchCondition:
		return v
	case map[string]any:
		sc, err := security.ValidateSearchCondition(v)
		if err != nil {
			return nil
		}
		return sc
	default:
		return nil
	}
}

// DateRange returns the start_date / end_date pair.
func (a Args) DateRange() security.DateRange {
	return security.DateRange{StartDate: a.String("start_date"), EndDate: a.String("end_date")}
}

// Limit returns the normalised limit, or DefaultListLimit capped at maxRows.
func (a Args) Limit(maxRows int) int {
	if a.Has("limit") {
		return a.Int("limit")
	}
	if maxRows > 0 && DefaultListLimit > maxRows {
		return maxRows
	}
	return DefaultListLimit
}

// Offset returns the normalised offset.
func (a Args) Offset() int {
	return a.Int("offset")
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// toFloat reads numbers the driver may hand back as float64, int64, or NUMERIC text.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(n), 64)
		return f
	default:
		return 0
	}
}

// toTime reads a DATE or TIMESTAMP column value.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", dateLayout} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(part / whole * 100)
}
