package tools

// JSON schema fragments shared by the catalogue.

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func text(desc string, maxLen int) map[string]any {
	return map[string]any{"type": "string", "description": desc, "minLength": 1, "maxLength": maxLen}
}

func number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return map[string]any{"type": "string", "description": desc, "enum": vals}
}

// id accepts numbers and numeric strings; the gateway coerces both.
func id(desc string) map[string]any {
	return map[string]any{"type": []any{"integer", "string"}, "description": desc}
}

func date(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc + " (YYYY-MM-DD)"}
}

func datetime(desc string) map[string]any {
	return map[string]any{"type": "string", "format": "date-time", "description": desc + " (RFC 3339)"}
}

func array(desc string, items map[string]any, minItems int) map[string]any {
	schema := map[string]any{"type": "array", "description": desc, "items": items}
	if minItems > 0 {
		schema["minItems"] = minItems
	}
	return schema
}

func limitProp() map[string]any {
	return map[string]any{"type": []any{"integer", "string"}, "description": "Maximum rows to return"}
}

func offsetProp() map[string]any {
	return map[string]any{"type": []any{"integer", "string"}, "description": "Rows to skip"}
}

func searchProp(fields ...string) map[string]any {
	fieldVals := make([]any, len(fields))
	for i, f := range fields {
		fieldVals[i] = f
	}
	return map[string]any{
		"type":        "object",
		"description": "Single filter condition",
		"properties": map[string]any{
			"field":    map[string]any{"type": "string", "enum": fieldVals},
			"value":    map[string]any{"type": []any{"string", "number"}},
			"operator": map[string]any{"type": "string", "enum": []any{"=", "LIKE", ">", "<", ">=", "<=", "like"}},
		},
		"required":             []any{"field", "value"},
		"additionalProperties": false,
	}
}

// paged merges the standard limit/offset properties into props.
func paged(props map[string]any) map[string]any {
	props["limit"] = limitProp()
	props["offset"] = offsetProp()
	return props
}
