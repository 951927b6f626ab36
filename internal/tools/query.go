package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/security"
)

// listQuery describes a single-table SELECT. Every identifier is checked before it
// reaches the SQL text; values only ever travel as parameters.
type listQuery struct {
	Table      string
	Columns    []string
	Conditions []security.Condition
	OrderBy    string
	Desc       bool
	Limit      int
	Offset     int
}

func (q listQuery) build() (string, []any, error) {
	table, err := security.SanitizeTableName(q.Table)
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if !security.ValidFieldName(c) {
				return "", nil, &security.InvalidFieldNameError{Field: c}
			}
		}
		cols = strings.Join(q.Columns, ", ")
	}

	where, err := security.BuildWhereClause(q.Conditions)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, table)
	if where.Where != "" {
		b.WriteString(" ")
		b.WriteString(where.Where)
	}
	params := where.Params

	if q.OrderBy != "" {
		if !security.ValidFieldName(q.OrderBy) {
			return "", nil, &security.InvalidFieldNameError{Field: q.OrderBy}
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET ?")
		params = append(params, q.Offset)
	}
	return b.String(), params, nil
}

func selectRows(ctx context.Context, db database.Querier, q listQuery) ([]database.Row, error) {
	sqlText, params, err := q.build()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", q.Table, err)
	}
	return rows, nil
}

func countRows(ctx context.Context, db database.Querier, table string, conds []security.Condition) (int64, error) {
	t, err := security.SanitizeTableName(table)
	if err != nil {
		return 0, err
	}
	where, err := security.BuildWhereClause(conds)
	if err != nil {
		return 0, err
	}
	sqlText := "SELECT COUNT(*) AS total FROM " + t
	if where.Where != "" {
		sqlText += " " + where.Where
	}
	row, err := db.QueryOne(ctx, sqlText, where.Params...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	if row == nil {
		return 0, nil
	}
	n, _ := asInt64(row["total"])
	return n, nil
}

// getByID fetches one row by primary key. entity names the record in the not-found error.
func getByID(ctx context.Context, db database.Querier, table, entity string, id int64) (database.Row, error) {
	rows, err := selectRows(ctx, db, listQuery{
		Table:      table,
		Conditions: []security.Condition{{Field: "id", Value: id}},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(entity, id)
	}
	return rows[0], nil
}

// field is a column/value pair. A slice keeps the column order stable in the SQL text.
type field struct {
	Name  string
	Value any
}

func insertRow(ctx context.Context, db database.Querier, table string, fields []field) (int64, error) {
	t, err := security.SanitizeTableName(table)
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("insert into %s: no columns", table)
	}
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	params := make([]any, len(fields))
	for i, f := range fields {
		if !security.ValidFieldName(f.Name) {
			return 0, &security.InvalidFieldNameError{Field: f.Name}
		}
		cols[i] = f.Name
		marks[i] = "?"
		params[i] = f.Value
	}
	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, strings.Join(cols, ", "), strings.Join(marks, ", "))
	newID, err := db.ExecInsert(ctx, sqlText, params...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return newID, nil
}

// updateRow sets fields on the row with the given id and reports whether it existed.
func updateRow(ctx context.Context, db database.Querier, table string, id int64, fields []field) (bool, error) {
	t, err := security.SanitizeTableName(table)
	if err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, invalid("fields", "at least one field must be provided")
	}
	sets := make([]string, len(fields))
	params := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		if !security.ValidFieldName(f.Name) {
			return false, &security.InvalidFieldNameError{Field: f.Name}
		}
		sets[i] = f.Name + " = ?"
		params = append(params, f.Value)
	}
	params = append(params, id)
	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t, strings.Join(sets, ", "))
	n, err := db.Exec(ctx, sqlText, params...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return n > 0, nil
}

// listResult is the common shape of list tool responses.
type listResult struct {
	Items  []database.Row `json:"items"`
	Count  int            `json:"count"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// listTable runs the paged select plus the matching count.
func listTable(ctx context.Context, env *Env, args Args, q listQuery) (*listResult, error) {
	q.Limit = args.Limit(env.maxRows())
	q.Offset = args.Offset()
	rows, err := selectRows(ctx, env.DB, q)
	if err != nil {
		return nil, err
	}
	total, err := countRows(ctx, env.DB, q.Table, q.Conditions)
	if err != nil {
		return nil, err
	}
	return &listResult{Items: rows, Count: len(rows), Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// searchCondition turns the search argument into a WHERE condition, restricted to the
// columns a tool declares searchable.
func searchCondition(args Args, searchable []string) (*security.Condition, error) {
	sc := args.Search()
	if sc == nil {
		return nil, nil
	}
	if !slices.Contains(searchable, sc.Field) {
		return nil, invalid("search.field", "must be one of %s", strings.Join(searchable, ", "))
	}
	c := sc.Condition()
	return &c, nil
}

// filters collects equality conditions for the named arguments that are present.
func filters(args Args, names ...string) []security.Condition {
	var conds []security.Condition
	for _, n := range names {
		if args.Has(n) {
			conds = append(conds, security.Condition{Field: n, Value: args[n]})
		}
	}
	return conds
}

// idsOf extracts an integer column from rows.
func idsOf(rows []database.Row, col string) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		if n, ok := asInt64(r[col]); ok {
			out = append(out, n)
		}
	}
	return out
}
