package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultMaxQueryRows is the limit ceiling used when none is configured.
	DefaultMaxQueryRows = 1000
	// MaxIdentifierLength bounds identifiers and search fields.
	MaxIdentifierLength = 50
	// MaxSearchValueLength bounds search values.
	MaxSearchValueLength = 100
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	ymdPattern        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// Validate is the shared validator instance with the custom tags registered.
	Validate *validator.Validate
)

// Operators accepted in a search condition. IN is only available to the WHERE builder.
var searchOperators = map[string]bool{
	OpEqual:        true,
	OpLike:         true,
	OpGreater:      true,
	OpLess:         true,
	OpGreaterEqual: true,
	OpLessEqual:    true,
}

func init() {
	Validate = validator.New()

	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := Validate.RegisterValidation("identifier", validateIdentifierTag); err != nil {
		panic(fmt.Sprintf("failed to register identifier validator: %v", err))
	}
	if err := Validate.RegisterValidation("ymd", validateYMDTag); err != nil {
		panic(fmt.Sprintf("failed to register ymd validator: %v", err))
	}
	if err := Validate.RegisterValidation("search_operator", validateSearchOperatorTag); err != nil {
		panic(fmt.Sprintf("failed to register search_operator validator: %v", err))
	}
}

func validateIdentifierTag(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}

func validateYMDTag(fl validator.FieldLevel) bool {
	return ymdPattern.MatchString(fl.Field().String())
}

func validateSearchOperatorTag(fl validator.FieldLevel) bool {
	return searchOperators[fl.Field().String()]
}

// DateRange is an optional pair of YYYY-MM-DD dates.
type DateRange struct {
	StartDate string `json:"start_date,omitempty" validate:"omitempty,ymd"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,ymd"`
}

// IsZero reports whether neither bound is set.
func (d DateRange) IsZero() bool {
	return d.StartDate == "" && d.EndDate == ""
}

// Ordered reports whether start <= end. A range with a missing bound is ordered.
// The date format makes lexical comparison equivalent to chronological comparison.
func (d DateRange) Ordered() bool {
	if d.StartDate == "" || d.EndDate == "" {
		return true
	}
	return d.StartDate <= d.EndDate
}

// SearchCondition is a single caller-supplied filter.
type SearchCondition struct {
	Field    string `json:"field" validate:"required,min=1,max=50"`
	Value    string `json:"value" validate:"required,min=1,max=100"`
	Operator string `json:"operator" validate:"search_operator"`
}

// Condition converts the search into a WHERE builder condition.
func (s *SearchCondition) Condition() Condition {
	return Condition{Field: s.Field, Value: s.Value, Operator: s.Operator}
}

// ValidateIdentifier checks that v is a string of 1-50 characters from [a-zA-Z0-9_-].
func ValidateIdentifier(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", newValidationError(field, "must be a string")
	}
	if len(s) < 1 || len(s) > MaxIdentifierLength {
		return "", newValidationError(field, "must be between 1 and %d characters", MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(s) {
		return "", newValidationError(field, "may only contain letters, digits, '_' and '-'")
	}
	return s, nil
}

// ValidateNumericID coerces v to an integer and requires it to be positive.
func ValidateNumericID(field string, v any) (int64, error) {
	n, ok := toInt64(v)
	if !ok {
		return 0, newValidationError(field, "must be an integer")
	}
	if n <= 0 {
		return 0, newValidationError(field, "must be a positive integer")
	}
	return n, nil
}

// ValidateLimit requires an integer in [1, maxRows]. maxRows <= 0 uses DefaultMaxQueryRows.
func ValidateLimit(v any, maxRows int) (int, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxQueryRows
	}
	if v == nil {
		return 0, newValidationError("limit", "is required")
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, newValidationError("limit", "must be an integer")
	}
	if n < 1 || n > int64(maxRows) {
		return 0, newValidationError("limit", "must be between 1 and %d", maxRows)
	}
	return int(n), nil
}

// ValidateOffset accepts a missing value as 0, otherwise a non-negative integer.
func ValidateOffset(v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, newValidationError("offset", "must be an integer")
	}
	if n < 0 {
		return 0, newValidationError("offset", "must not be negative")
	}
	if n > math.MaxInt32 {
		return 0, newValidationError("offset", "is too large")
	}
	return int(n), nil
}

// ValidateDateRange checks the format of both optional bounds. It does not check ordering.
func ValidateDateRange(start, end any) (DateRange, error) {
	var dr DateRange
	var err error
	if dr.StartDate, err = optionalString("start_date", start); err != nil {
		return DateRange{}, err
	}
	if dr.EndDate, err = optionalString("end_date", end); err != nil {
		return DateRange{}, err
	}
	if err := Validate.Struct(dr); err != nil {
		return DateRange{}, translate(err)
	}
	return dr, nil
}

// ValidateSearchCondition validates an optional {field, value, operator} object.
// A nil input yields a nil condition.
func ValidateSearchCondition(v any) (*SearchCondition, error) {
	if v == nil {
		return nil, nil
	}
	var sc SearchCondition
	switch in := v.(type) {
	case *SearchCondition:
		if in == nil {
			return nil, nil
		}
		sc = *in
	case SearchCondition:
		sc = in
	case map[string]any:
		var err error
		if sc.Field, err = optionalString("search.field", in["field"]); err != nil {
			return nil, err
		}
		if sc.Value, err = searchValueString(in["value"]); err != nil {
			return nil, err
		}
		if sc.Operator, err = optionalString("search.operator", in["operator"]); err != nil {
			return nil, err
		}
	default:
		return nil, newValidationError("search", "must be an object")
	}
	if sc.Operator == "" {
		sc.Operator = OpEqual
	}
	sc.Operator = strings.ToUpper(sc.Operator)
	if err := Validate.Struct(sc); err != nil {
		return nil, translate(err)
	}
	return &sc, nil
}

// SanitizeText trims whitespace and removes control characters except newline and tab.
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// translate turns the first validator failure into a ValidationError.
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return newValidationError("", "%v", err)
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return newValidationError(field, "is required")
	case "min":
		return newValidationError(field, "must be at least %s characters", fe.Param())
	case "max":
		return newValidationError(field, "must be at most %s characters", fe.Param())
	case "ymd":
		return newValidationError(field, "must be a date in YYYY-MM-DD format")
	case "identifier":
		return newValidationError(field, "may only contain letters, digits, '_' and '-'")
	case "search_operator":
		return newValidationError(field, "must be one of =, LIKE, >, <, >=, <=")
	default:
		return newValidationError(field, "failed %s check", fe.Tag())
	}
}

func optionalString(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", newValidationError(field, "must be a string")
	}
	return s, nil
}

func searchValueString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		return "", newValidationError("search.value", "must be a string")
	}
}

// toInt64 coerces integer-like values. Floats must be integral and strings must parse
// as base-10 integers in full.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
