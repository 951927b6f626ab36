package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benvon/crm-tools/internal/security"
)

func TestGetClient_IncludesContacts(t *testing.T) {
	t.Parallel()

	db := newFakeDB().
		on("FROM clients", map[string]any{"id": int64(3), "company": "Acme"}).
		on("FROM contacts", map[string]any{"id": int64(8), "email": "a@acme.test", "password": "$2y$hash"})

	out, err := getClient(context.Background(), testEnv(db), Args{"id": int64(3)})
	require.NoError(t, err)
	client := out.(map[string]any)
	assert.Equal(t, "Acme", client["company"])
	assert.Len(t, client["contacts"], 1)
}

func TestUpdateClient(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	out, err := updateClient(context.Background(), testEnv(db), Args{"id": int64(3), "city": "Oslo\x00", "active": false})
	require.NoError(t, err)
	assert.Equal(t, 2, out.(map[string]any)["updated"])

	updates := db.callsMatching("UPDATE clients")
	require.Len(t, updates, 1)
	assert.Equal(t, "UPDATE clients SET city = ?, active = ? WHERE id = ?", updates[0].Query)
	assert.Equal(t, []any{"Oslo", false, int64(3)}, updates[0].Args)

	db.affected = 0
	_, err = updateClient(context.Background(), testEnv(db), Args{"id": int64(4), "city": "Bergen"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = updateClient(context.Background(), testEnv(db), Args{"id": int64(4)})
	assert.True(t, errors.Is(err, security.ErrValidation))
}

func TestListTasks_ByAssignee(t *testing.T) {
	t.Parallel()

	db := newFakeDB().
		on("FROM task_assignees", map[string]any{"task_id": int64(4)}, map[string]any{"task_id": int64(6)}).
		on("FROM tasks", map[string]any{"id": int64(4)}, map[string]any{"id": int64(6)})

	out, err := listTasks(context.Background(), testEnv(db), Args{"assignee_id": int64(2), "status": TaskInProgress})
	require.NoError(t, err)
	assert.Equal(t, 2, out.(*listResult).Count)

	selects := db.callsMatching("SELECT id, project_id")
	require.Len(t, selects, 1)
	assert.Contains(t, selects[0].Query, "WHERE status = ? AND id IN (?,?)")
	assert.Equal(t, []any{TaskInProgress, int64(4), int64(6), DefaultListLimit}, selects[0].Args)
}

func TestListTasks_AssigneeWithoutTasks(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	out, err := listTasks(context.Background(), testEnv(db), Args{"assignee_id": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 0, out.(*listResult).Count)
	assert.Empty(t, db.callsMatching("SELECT id, project_id"))
}

func TestCreateTask_Assignees(t *testing.T) {
	t.Parallel()

	db := newFakeDB().on("FROM projects", map[string]any{"id": int64(1)})
	out, err := createTask(context.Background(), testEnv(db), Args{
		"project_id":   int64(1),
		"name":         "Write docs",
		"assignee_ids": []any{float64(2), "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, out.(map[string]any)["assignees"])
	assert.Len(t, db.callsMatching("INSERT INTO task_assignees"), 2)

	_, err = createTask(context.Background(), testEnv(db), Args{"name": "x", "assignee_ids": []any{"-1"}})
	assert.True(t, errors.Is(err, security.ErrValidation))
}

func TestUpdateTaskStatus(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	_, err := updateTaskStatus(context.Background(), testEnv(db), Args{"id": int64(4), "status": TaskComplete})
	require.NoError(t, err)
	_, err = updateTaskStatus(context.Background(), testEnv(db), Args{"id": int64(4), "status": TaskInProgress})
	require.NoError(t, err)

	updates := db.callsMatching("UPDATE tasks")
	require.Len(t, updates, 2)
	assert.Equal(t, []any{TaskComplete, fixedNow, int64(4)}, updates[0].Args)
	assert.Equal(t, []any{TaskInProgress, nil, int64(4)}, updates[1].Args)
}

func TestReplyTicket(t *testing.T) {
	t.Parallel()

	db := newFakeDB().on("FROM tickets", map[string]any{"id": int64(12), "status": TicketOpen})
	out, err := replyTicket(context.Background(), testEnv(db), Args{"ticket_id": int64(12), "message": "On it"})
	require.NoError(t, err)
	assert.Equal(t, TicketAnswered, out.(map[string]any)["status"])

	updates := db.callsMatching("UPDATE tickets")
	require.Len(t, updates, 1)
	assert.Equal(t, []any{TicketAnswered, fixedNow, int64(12)}, updates[0].Args)

	closed := newFakeDB().on("FROM tickets", map[string]any{"id": int64(12), "status": TicketClosed})
	_, err = replyTicket(context.Background(), testEnv(closed), Args{"ticket_id": int64(12), "message": "hi"})
	assert.True(t, errors.Is(err, security.ErrValidation))
}

func TestLogTime(t *testing.T) {
	t.Parallel()

	db := newFakeDB().on("FROM tasks", map[string]any{"id": int64(4)})
	out, err := logTime(context.Background(), testEnv(db), Args{
		"task_id":    int64(4),
		"staff_id":   int64(2),
		"start_time": "2024-06-14T09:00:00Z",
		"end_time":   "2024-06-14T11:30:00+00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, 2.5, out.(map[string]any)["hours"])

	_, err = logTime(context.Background(), testEnv(db), Args{
		"task_id":    int64(4),
		"staff_id":   int64(2),
		"start_time": "2024-06-14T11:00:00Z",
		"end_time":   "2024-06-14T11:00:00Z",
	})
	assert.True(t, errors.Is(err, security.ErrValidation))

	_, err = logTime(context.Background(), testEnv(db), Args{"start_time": "yesterday", "end_time": "today"})
	assert.True(t, errors.Is(err, security.ErrValidation))
}

func TestTimesheetSummary(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2024, 6, 3, h, m, 0, 0, time.UTC) }
	db := newFakeDB().
		on("FROM timesheets",
			map[string]any{"staff_id": int64(1), "start_time": at(9, 0), "end_time": at(12, 0)},
			map[string]any{"staff_id": int64(2), "start_time": at(9, 0), "end_time": at(10, 30)},
			map[string]any{"staff_id": int64(1), "start_time": at(13, 0), "end_time": at(14, 15)},
			map[string]any{"staff_id": int64(2), "start_time": at(15, 0), "end_time": nil},
		).
		on("FROM staff",
			map[string]any{"id": int64(1), "firstname": "Ada", "lastname": "Lovelace"},
			map[string]any{"id": int64(2), "firstname": "Alan", "lastname": "Turing"},
		)

	out, err := timesheetSummary(context.Background(), testEnv(db), Args{"start_date": "2024-06-01", "end_date": "2024-06-30"})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, 5.75, res["total_hours"])
	assert.Equal(t, []staffHours{
		{StaffID: 1, Name: "Ada Lovelace", Hours: 4.25, Entries: 2},
		{StaffID: 2, Name: "Alan Turing", Hours: 1.5, Entries: 2},
	}, res["by_staff"])

	sheets := db.callsMatching("SELECT staff_id, start_time, end_time FROM timesheets")
	require.Len(t, sheets, 1)
	assert.Equal(t, []any{"2024-06-01", "2024-07-01"}, sheets[0].Args)
}

func TestTimesheetSummary_RangeOrder(t *testing.T) {
	t.Parallel()

	_, err := timesheetSummary(context.Background(), testEnv(newFakeDB()), Args{"start_date": "2024-06-30", "end_date": "2024-06-01"})
	assert.True(t, errors.Is(err, security.ErrValidation))

	_, err = timesheetSummary(context.Background(), testEnv(newFakeDB()), Args{"start_date": "2024-06-30"})
	assert.True(t, errors.Is(err, security.ErrValidation))
}

func TestFinancialSummary(t *testing.T) {
	t.Parallel()

	db := newFakeDB().
		on("SELECT id, total FROM invoices",
			map[string]any{"id": int64(1), "total": "1000.00"},
			map[string]any{"id": int64(2), "total": "500.00"},
		).
		on("invoice_id IN", map[string]any{"amount": "900.00"}).
		on("FROM payments", map[string]any{"amount": "900.00"}, map[string]any{"amount": "300.00"}).
		on("FROM expenses", map[string]any{"amount": "250.00"})

	out, err := financialSummary(context.Background(), testEnv(db), Args{"start_date": "2024-01-01", "end_date": "2024-03-31"})
	require.NoError(t, err)
	assert.Equal(t, &FinancialSummary{
		StartDate:      "2024-01-01",
		EndDate:        "2024-03-31",
		InvoiceCount:   2,
		Invoiced:       1500,
		Collected:      1200,
		Outstanding:    600,
		Expenses:       250,
		Net:            950,
		CollectionRate: 60,
	}, out)
}

func TestFinancialSummary_ClientCollections(t *testing.T) {
	t.Parallel()

	db := newFakeDB().
		on("SELECT id, total FROM invoices", map[string]any{"id": int64(1), "total": "1000.00"}).
		on("SELECT id FROM invoices", map[string]any{"id": int64(1)}, map[string]any{"id": int64(3)}).
		on("FROM payments WHERE invoice_id IN (?,?) AND date", map[string]any{"amount": "100.00"}, map[string]any{"amount": "250.00"}).
		on("FROM payments WHERE invoice_id IN (?)", map[string]any{"amount": "400.00"}).
		on("FROM expenses", map[string]any{"amount": "50.00"})

	out, err := financialSummary(context.Background(), testEnv(db), Args{
		"start_date": "2024-01-01",
		"end_date":   "2024-03-31",
		"client_id":  int64(7),
	})
	require.NoError(t, err)
	sum := out.(*FinancialSummary)
	assert.Equal(t, 350.0, sum.Collected)
	assert.Equal(t, 600.0, sum.Outstanding)
	assert.Equal(t, 300.0, sum.Net)

	clientInvoices := db.callsMatching("SELECT id FROM invoices")
	require.Len(t, clientInvoices, 1)
	assert.Equal(t, []any{int64(7)}, clientInvoices[0].Args)

	for _, c := range db.callsMatching("SELECT amount FROM payments") {
		assert.Contains(t, c.Query, "invoice_id IN", "payments must be scoped to the client")
	}
	collected := db.callsMatching("SELECT amount FROM payments WHERE invoice_id IN (?,?) AND date")
	require.Len(t, collected, 1)
	assert.Equal(t, []any{int64(1), int64(3), "2024-01-01", "2024-03-31"}, collected[0].Args)
}

func TestFinancialSummary_ClientWithoutInvoices(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	out, err := financialSummary(context.Background(), testEnv(db), Args{
		"start_date": "2024-01-01",
		"end_date":   "2024-03-31",
		"client_id":  int64(7),
	})
	require.NoError(t, err)
	assert.Zero(t, out.(*FinancialSummary).Collected)
	assert.Empty(t, db.callsMatching("SELECT amount FROM payments"))
}

func TestQueryTable(t *testing.T) {
	t.Parallel()

	db := newFakeDB().on("FROM leads", map[string]any{"id": int64(1), "name": "Lead"})
	out, err := queryTable(context.Background(), testEnv(db), Args{
		"table":   "leads",
		"columns": []any{"id", "name"},
		"conditions": []any{
			map[string]any{"field": "status", "operator": "in", "value": []any{"new", "contacted"}},
			map[string]any{"field": "name", "operator": "LIKE", "value": "ac"},
		},
		"order_by": "id",
		"desc":     true,
		"limit":    10,
	})
	require.NoError(t, err)
	assert.Equal(t, "leads", out.(map[string]any)["table"])

	selects := db.callsMatching("SELECT id, name FROM leads")
	require.Len(t, selects, 1)
	assert.Equal(t, "SELECT id, name FROM leads WHERE status IN (?,?) AND name LIKE ? ORDER BY id DESC LIMIT ?", selects[0].Query)
	assert.Equal(t, []any{"new", "contacted", "%ac%", 10}, selects[0].Args)
}

func TestQueryTable_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args Args
		want error
	}{
		{"unlisted table", Args{"table": "pg_user"}, security.ErrUnauthorizedTable},
		{"injected column", Args{"table": "leads", "columns": []any{"id, (SELECT 1)"}}, security.ErrInvalidFieldName},
		{"injected field", Args{"table": "leads", "conditions": []any{map[string]any{"field": "a OR 1=1", "value": "x"}}}, security.ErrInvalidFieldName},
		{"empty in list", Args{"table": "leads", "conditions": []any{map[string]any{"field": "id", "operator": "IN", "value": []any{}}}}, security.ErrValidation},
		{"unknown operator", Args{"table": "leads", "conditions": []any{map[string]any{"field": "id", "operator": "<>", "value": 1}}}, security.ErrValidation},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db := newFakeDB()
			_, err := queryTable(context.Background(), testEnv(db), tt.args)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, db.calls)
		})
	}
}
