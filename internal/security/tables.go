package security

import (
	"sort"
	"strings"
)

// allowedTables is the fixed set of schema tables that may appear in dynamic SQL.
var allowedTables = map[string]struct{}{
	"clients":         {},
	"contacts":        {},
	"invoices":        {},
	"invoice_items":   {},
	"payments":        {},
	"payment_modes":   {},
	"estimates":       {},
	"expenses":        {},
	"projects":        {},
	"project_members": {},
	"tasks":           {},
	"task_assignees":  {},
	"timesheets":      {},
	"tickets":         {},
	"ticket_replies":  {},
	"departments":     {},
	"wiki_articles":   {},
	"wiki_groups":     {},
	"subscriptions":   {},
	"contracts":       {},
	"leads":           {},
	"staff":           {},
	"currencies":      {},
	"taxes":           {},
	"notes":           {},
	"activity_log":    {},
}

// IsAllowedTable reports whether name is in the allow-list.
func IsAllowedTable(name string) bool {
	_, ok := allowedTables[name]
	return ok
}

// AllowedTables returns the allow-list sorted by name.
func AllowedTables() []string {
	out := make([]string, 0, len(allowedTables))
	for name := range allowedTables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SanitizeTableName checks name against the allow-list and strips anything outside
// [a-zA-Z0-9_]. For allow-listed names the stripping never changes the value.
func SanitizeTableName(name string) (string, error) {
	if !IsAllowedTable(name) {
		return "", &UnauthorizedTableError{Table: name}
	}
	return stripNonIdentifier(name), nil
}

func stripNonIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isIdentRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isIdentRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
