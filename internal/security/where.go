package security

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Supported comparison operators.
const (
	OpEqual        = "="
	OpLike         = "LIKE"
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpIn           = "IN"
)

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Condition is one term of a flat AND filter.
type Condition struct {
	Field    string
	Value    any
	Operator string
}

// WhereClause is a parameterized SQL fragment. Where is empty or starts with "WHERE ".
type WhereClause struct {
	Where  string
	Params []any
}

// ValidFieldName reports whether name can be used as a column identifier.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

// BuildWhereClause turns conditions into "WHERE a = ? AND b LIKE ?" plus ordered params.
// Values are never interpolated into the SQL text.
func BuildWhereClause(conds []Condition) (WhereClause, error) {
	clause := WhereClause{Params: []any{}}
	if len(conds) == 0 {
		return clause, nil
	}

	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if !ValidFieldName(c.Field) {
			return WhereClause{}, &InvalidFieldNameError{Field: c.Field}
		}

		op := strings.ToUpper(strings.TrimSpace(c.Operator))
		if op == "" {
			op = OpEqual
		}

		switch op {
		case OpIn:
			values, err := inValues(c.Field, c.Value)
			if err != nil {
				return WhereClause{}, err
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
			parts = append(parts, fmt.Sprintf("%s IN (%s)", c.Field, placeholders))
			clause.Params = append(clause.Params, values...)
		case OpLike:
			parts = append(parts, c.Field+" LIKE ?")
			clause.Params = append(clause.Params, fmt.Sprintf("%%%v%%", c.Value))
		case OpEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
			if !isScalar(c.Value) {
				return WhereClause{}, newValidationError(c.Field, "requires a scalar value for %s", op)
			}
			parts = append(parts, fmt.Sprintf("%s %s ?", c.Field, op))
			clause.Params = append(clause.Params, c.Value)
		default:
			return WhereClause{}, newValidationError(c.Field, "has unsupported operator %q", c.Operator)
		}
	}

	clause.Where = "WHERE " + strings.Join(parts, " AND ")
	return clause, nil
}

// inValues flattens a slice or array value for an IN condition.
func inValues(field string, v any) ([]any, error) {
	if v == nil {
		return nil, newValidationError(field, "requires a list value for IN")
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, newValidationError(field, "requires at least one value for IN")
		}
		return scalarValues(field, append([]any(nil), list...))
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, newValidationError(field, "requires a list value for IN")
	}
	// []byte is a scalar here, not a list of bytes.
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, newValidationError(field, "requires a list value for IN")
	}
	if rv.Len() == 0 {
		return nil, newValidationError(field, "requires at least one value for IN")
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return scalarValues(field, out)
}

func scalarValues(field string, values []any) ([]any, error) {
	for _, v := range values {
		if !isScalar(v) {
			return nil, newValidationError(field, "IN values must be scalars")
		}
	}
	return values, nil
}

// isScalar rejects maps and lists. Byte slices and structs such as time.Time pass.
func isScalar(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Array, reflect.Chan, reflect.Func:
		return false
	case reflect.Slice:
		return rv.Type().Elem().Kind() == reflect.Uint8
	}
	return true
}
