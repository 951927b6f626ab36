package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhereClause(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		conds      []Condition
		wantWhere  string
		wantParams []any
	}{
		{
			name:       "empty",
			conds:      nil,
			wantWhere:  "",
			wantParams: []any{},
		},
		{
			name:       "equality",
			conds:      []Condition{{Field: "status", Value: "open", Operator: "="}},
			wantWhere:  "WHERE status = ?",
			wantParams: []any{"open"},
		},
		{
			name:       "default operator",
			conds:      []Condition{{Field: "status", Value: "open"}},
			wantWhere:  "WHERE status = ?",
			wantParams: []any{"open"},
		},
		{
			name:       "like wraps wildcards",
			conds:      []Condition{{Field: "name", Value: "acme", Operator: "LIKE"}},
			wantWhere:  "WHERE name LIKE ?",
			wantParams: []any{"%acme%"},
		},
		{
			name:       "in expands placeholders",
			conds:      []Condition{{Field: "id", Value: []any{1, 2, 3}, Operator: "IN"}},
			wantWhere:  "WHERE id IN (?,?,?)",
			wantParams: []any{1, 2, 3},
		},
		{
			name:       "in typed slice",
			conds:      []Condition{{Field: "id", Value: []int64{7, 8}, Operator: "in"}},
			wantWhere:  "WHERE id IN (?,?)",
			wantParams: []any{int64(7), int64(8)},
		},
		{
			name: "conjunction keeps order",
			conds: []Condition{
				{Field: "client_id", Value: 4},
				{Field: "total", Value: 100, Operator: ">="},
				{Field: "status", Value: []any{"unpaid", "overdue"}, Operator: "IN"},
				{Field: "duedate", Value: "2024-01-01", Operator: "<"},
			},
			wantWhere:  "WHERE client_id = ? AND total >= ? AND status IN (?,?) AND duedate < ?",
			wantParams: []any{4, 100, "unpaid", "overdue", "2024-01-01"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildWhereClause(tt.conds)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWhere, got.Where)
			assert.Equal(t, tt.wantParams, got.Params)
		})
	}
}

func TestBuildWhereClause_InvalidFieldName(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"id; DROP TABLE x", "", "name--", "a.b", "col umn", "ünïcode"} {
		_, err := BuildWhereClause([]Condition{{Field: "ok", Value: 1}, {Field: field, Value: 1}})
		require.ErrorIs(t, err, ErrInvalidFieldName, field)

		var fieldErr *InvalidFieldNameError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, field, fieldErr.Field)
	}
}

func TestBuildWhereClause_ValidFieldNamesNeverFail(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"a", "A", "_", "client_id", "Col9", "x_1_y"} {
		_, err := BuildWhereClause([]Condition{{Field: field, Value: "v"}})
		assert.NoError(t, err, field)
	}
}

func TestBuildWhereClause_InRequiresList(t *testing.T) {
	t.Parallel()

	for _, v := range []any{nil, 5, "1,2,3", []any{}, []byte("ab")} {
		_, err := BuildWhereClause([]Condition{{Field: "id", Value: v, Operator: OpIn}})
		assert.ErrorIs(t, err, ErrValidation, "%v", v)
	}
}

func TestBuildWhereClause_RejectsNestedValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cond Condition
	}{
		{"object in list", Condition{Field: "id", Operator: OpIn, Value: []any{1, map[string]any{"a": 1}}}},
		{"list in list", Condition{Field: "id", Operator: OpIn, Value: []any{[]any{1, 2}}}},
		{"list for equality", Condition{Field: "id", Value: []any{1, 2}}},
		{"object for comparison", Condition{Field: "id", Operator: OpGreater, Value: map[string]any{}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := BuildWhereClause([]Condition{tt.cond})
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	clause, err := BuildWhereClause([]Condition{{Field: "created", Operator: OpGreaterEqual, Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}})
	require.NoError(t, err)
	assert.Equal(t, "WHERE created >= ?", clause.Where)
}

func TestBuildWhereClause_UnknownOperator(t *testing.T) {
	t.Parallel()

	_, err := BuildWhereClause([]Condition{{Field: "id", Value: 1, Operator: "!= 1 OR 1"}})
	assert.ErrorIs(t, err, ErrValidation)
}
