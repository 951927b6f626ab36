package tools

import (
	"context"

	"github.com/benvon/crm-tools/internal/security"
)

func queryTools() []Tool {
	scalar := map[string]any{"type": []any{"string", "number", "boolean"}}
	condition := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field":    map[string]any{"type": "string", "maxLength": security.MaxIdentifierLength},
			"operator": map[string]any{"type": "string", "enum": []any{"=", "LIKE", ">", "<", ">=", "<=", "IN", "like", "in"}},
			"value":    map[string]any{"anyOf": []any{
				scalar,
				map[string]any{"type": "array", "minItems": 1, "items": scalar},
			}},
		},
		"required":             []any{"field", "value"},
		"additionalProperties": false,
	}
	return []Tool{
		{
			Name:        "query_table",
			Description: "Read rows from an allow-listed table with AND-ed conditions",
			InputSchema: object([]string{"table"}, paged(map[string]any{
				"table":      str("Table name"),
				"columns":    array("Columns to return, defaults to all", map[string]any{"type": "string"}, 0),
				"conditions": array("Filter conditions", condition, 0),
				"order_by":   str("Column to sort by"),
				"desc":       boolean("Sort descending"),
			})),
			Handler: queryTable,
		},
		{
			Name:        "list_tables",
			Description: "List tables available to query_table",
			InputSchema: object(nil, map[string]any{}),
			Handler: func(context.Context, *Env, Args) (any, error) {
				return map[string]any{"tables": security.AllowedTables()}, nil
			},
		},
	}
}

func queryTable(ctx context.Context, env *Env, args Args) (any, error) {
	q := listQuery{
		Table:   args.String("table"),
		OrderBy: args.String("order_by"),
		Desc:    args.Bool("desc"),
	}
	for _, c := range args.Slice("columns") {
		col, ok := c.(string)
		if !ok {
			return nil, invalid("columns", "must be strings")
		}
		q.Columns = append(q.Columns, col)
	}
	for _, raw := range args.Slice("conditions") {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalid("conditions", "each condition must be an object")
		}
		cond := Args(m)
		q.Conditions = append(q.Conditions, security.Condition{
			Field:    cond.String("field"),
			Operator: cond.String("operator"),
			Value:    m["value"],
		})
	}
	res, err := listTable(ctx, env, args, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"table":  q.Table,
		"items":  res.Items,
		"count":  res.Count,
		"total":  res.Total,
		"limit":  res.Limit,
		"offset": res.Offset,
	}, nil
}
