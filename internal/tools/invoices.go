package tools

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/security"
)

// Invoice statuses.
const (
	InvoiceDraft         = "draft"
	InvoiceUnpaid        = "unpaid"
	InvoicePartiallyPaid = "partially_paid"
	InvoicePaid          = "paid"
	InvoiceOverdue       = "overdue"
	InvoiceCancelled     = "cancelled"
)

// invoiceNumberLock is the advisory lock key guarding invoice numbering.
const invoiceNumberLock int64 = 0x696e766f696365

var openInvoiceStatuses = []any{InvoiceUnpaid, InvoicePartiallyPaid, InvoiceOverdue}

var invoiceColumns = []string{"id", "client_id", "number", "date", "duedate", "subtotal", "total_tax", "total", "status", "currency"}

func invoiceTools() []Tool {
	item := object([]string{"description", "qty", "rate"}, map[string]any{
		"description": text("Line description", 500),
		"qty":         map[string]any{"type": "number", "exclusiveMinimum": 0},
		"rate":        map[string]any{"type": "number", "minimum": 0},
		"tax_percent": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
	})
	return []Tool{
		{
			Name:        "list_invoices",
			Description: "List invoices filtered by client, status or date range",
			InputSchema: object(nil, paged(map[string]any{
				"client_id":  id("Client ID"),
				"status":     enum("Invoice status", InvoiceDraft, InvoiceUnpaid, InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue, InvoiceCancelled),
				"start_date": date("Invoice date from"),
				"end_date":   date("Invoice date to"),
			})),
			Handler: listInvoices,
		},
		{
			Name:        "get_invoice",
			Description: "Get an invoice with line items, payments and balance",
			InputSchema: object([]string{"id"}, map[string]any{"id": id("Invoice ID")}),
			Handler:     getInvoice,
		},
		{
			Name:        "create_invoice",
			Description: "Create an invoice with line items; totals are computed",
			InputSchema: object([]string{"client_id", "items"}, map[string]any{
				"client_id": id("Client ID"),
				"date":      date("Invoice date, defaults to today"),
				"duedate":   date("Due date, defaults to 30 days after date"),
				"currency":  map[string]any{"type": "string", "pattern": "^[A-Z]{3}$"},
				"notes":     str("Client note"),
				"items":     array("Line items", item, 1),
			}),
			Handler: createInvoice,
		},
		{
			Name:        "record_payment",
			Description: "Record a payment against an invoice and update its status",
			InputSchema: object([]string{"invoice_id", "amount"}, map[string]any{
				"invoice_id":     id("Invoice ID"),
				"amount":         map[string]any{"type": "number", "exclusiveMinimum": 0},
				"payment_mode":   str("Payment mode"),
				"date":           date("Payment date, defaults to today"),
				"transaction_id": str("External transaction reference"),
				"note":           str("Note"),
			}),
			Handler: recordPayment,
		},
		{
			Name:        "invoice_aging_report",
			Description: "Outstanding balances bucketed by days past due",
			InputSchema: object(nil, map[string]any{
				"as_of":     date("Reference date, defaults to today"),
				"client_id": id("Restrict to one client"),
			}),
			Handler: invoiceAgingReport,
		},
	}
}

func listInvoices(ctx context.Context, env *Env, args Args) (any, error) {
	conds := filters(args, "client_id", "status")
	conds = append(conds, dateConditions("date", args.DateRange())...)
	return listTable(ctx, env, args, listQuery{
		Table:      "invoices",
		Columns:    invoiceColumns,
		Conditions: conds,
		OrderBy:    "date",
		Desc:       true,
	})
}

func getInvoice(ctx context.Context, env *Env, args Args) (any, error) {
	invoiceID := args.Int64("id")
	inv, err := getByID(ctx, env.DB, "invoices", "invoice", invoiceID)
	if err != nil {
		return nil, err
	}
	items, err := selectRows(ctx, env.DB, listQuery{
		Table:      "invoice_items",
		Conditions: []security.Condition{{Field: "invoice_id", Value: invoiceID}},
		OrderBy:    "id",
	})
	if err != nil {
		return nil, err
	}
	payments, err := invoicePayments(ctx, env.DB, invoiceID)
	if err != nil {
		return nil, err
	}
	paid := sumColumn(payments, "amount")
	inv["items"] = items
	inv["payments"] = payments
	inv["amount_paid"] = round2(paid)
	inv["balance_due"] = round2(toFloat(inv["total"]) - paid)
	return inv, nil
}

type invoiceLine struct {
	Description string
	Qty         float64
	Rate        float64
	TaxPercent  float64
}

func (l invoiceLine) amount() float64 { return l.Qty * l.Rate }
func (l invoiceLine) tax() float64    { return l.amount() * l.TaxPercent / 100 }

func parseLines(raw []any) ([]invoiceLine, error) {
	if len(raw) == 0 {
		return nil, invalid("items", "at least one line item is required")
	}
	lines := make([]invoiceLine, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, invalid("items", "each item must be an object")
		}
		a := Args(m)
		l := invoiceLine{
			Description: a.Text("description"),
			Qty:         a.Float("qty"),
			Rate:        a.Float("rate"),
			TaxPercent:  a.Float("tax_percent"),
		}
		if l.Description == "" {
			return nil, invalid("items.description", "is required")
		}
		if l.Qty <= 0 {
			return nil, invalid("items.qty", "must be positive")
		}
		if l.Rate < 0 || l.TaxPercent < 0 || l.TaxPercent > 100 {
			return nil, invalid("items", "rate must be non-negative and tax_percent within 0-100")
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// invoiceTotals returns subtotal, tax and total, each rounded to cents.
func invoiceTotals(lines []invoiceLine) (subtotal, tax, total float64) {
	for _, l := range lines {
		subtotal += l.amount()
		tax += l.tax()
	}
	subtotal, tax = round2(subtotal), round2(tax)
	return subtotal, tax, round2(subtotal + tax)
}

func createInvoice(ctx context.Context, env *Env, args Args) (any, error) {
	clientID := args.Int64("client_id")
	lines, err := parseLines(args.Slice("items"))
	if err != nil {
		return nil, err
	}
	issued, err := optionalDate(args, "date", env.now())
	if err != nil {
		return nil, err
	}
	due, err := optionalDate(args, "duedate", issued.AddDate(0, 0, 30))
	if err != nil {
		return nil, err
	}
	if due.Before(issued) {
		return nil, invalid("duedate", "must not be before date")
	}
	if _, err := getByID(ctx, env.DB, "clients", "client", clientID); err != nil {
		return nil, err
	}

	currency := args.String("currency")
	if currency == "" {
		currency = "USD"
	}
	subtotal, tax, total := invoiceTotals(lines)

	var invoiceID, number int64
	err = env.DB.WithTx(ctx, func(tx database.Querier) error {
		// Serializes numbering until commit.
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(?)", invoiceNumberLock); err != nil {
			return err
		}
		next, err := tx.QueryOne(ctx, "SELECT COALESCE(MAX(number), 0) + 1 AS next FROM invoices")
		if err != nil {
			return err
		}
		number = 1
		if next != nil {
			if n, ok := asInt64(next["next"]); ok {
				number = n
			}
		}

		invoiceID, err = insertRow(ctx, tx, "invoices", []field{
			{"client_id", clientID},
			{"number", number},
			{"date", issued.Format(dateLayout)},
			{"duedate", due.Format(dateLayout)},
			{"subtotal", subtotal},
			{"total_tax", tax},
			{"total", total},
			{"status", InvoiceUnpaid},
			{"currency", currency},
			{"notes", args.Text("notes")},
		})
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := insertRow(ctx, tx, "invoice_items", []field{
				{"invoice_id", invoiceID},
				{"description", l.Description},
				{"qty", l.Qty},
				{"rate", l.Rate},
				{"tax_percent", l.TaxPercent},
				{"amount", round2(l.amount())},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"id":        invoiceID,
		"number":    number,
		"client_id": clientID,
		"date":      issued.Format(dateLayout),
		"duedate":   due.Format(dateLayout),
		"subtotal":  subtotal,
		"total_tax": tax,
		"total":     total,
		"status":    InvoiceUnpaid,
		"items":     len(lines),
	}, nil
}

// paymentStatus derives the invoice status after payments totalling paid.
func paymentStatus(total, paid float64) string {
	switch {
	case paid >= total:
		return InvoicePaid
	case paid > 0:
		return InvoicePartiallyPaid
	default:
		return InvoiceUnpaid
	}
}

func recordPayment(ctx context.Context, env *Env, args Args) (any, error) {
	invoiceID := args.Int64("invoice_id")
	amount := round2(args.Float("amount"))
	if amount <= 0 {
		return nil, invalid("amount", "must be positive")
	}
	paidOn, err := optionalDate(args, "date", env.now())
	if err != nil {
		return nil, err
	}

	var (
		paymentID int64
		total     float64
		paid      float64
		newStatus string
	)
	err = env.DB.WithTx(ctx, func(tx database.Querier) error {
		inv, err := tx.QueryOne(ctx, "SELECT id, total, status FROM invoices WHERE id = ? FOR UPDATE", invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return notFound("invoice", invoiceID)
		}
		status, _ := inv["status"].(string)
		if status == InvoiceCancelled || status == InvoiceDraft {
			return invalid("invoice_id", "cannot record payment on a %s invoice", status)
		}
		payments, err := invoicePayments(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		total = toFloat(inv["total"])
		paid = round2(sumColumn(payments, "amount") + amount)

		paymentID, err = insertRow(ctx, tx, "payments", []field{
			{"invoice_id", invoiceID},
			{"amount", amount},
			{"payment_mode", args.Text("payment_mode")},
			{"date", paidOn.Format(dateLayout)},
			{"transaction_id", args.Text("transaction_id")},
			{"note", args.Text("note")},
		})
		if err != nil {
			return err
		}
		newStatus = paymentStatus(total, paid)
		_, err = updateRow(ctx, tx, "invoices", invoiceID, []field{{"status", newStatus}})
		return err
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"payment_id":  paymentID,
		"invoice_id":  invoiceID,
		"amount":      amount,
		"amount_paid": paid,
		"balance_due": round2(total - paid),
		"status":      newStatus,
	}, nil
}

// Aging bucket names.
const (
	AgingCurrent = "current"
	Aging1To30   = "1_30"
	Aging31To60  = "31_60"
	Aging61To90  = "61_90"
	AgingOver90  = "over_90"
)

var agingBuckets = []string{AgingCurrent, Aging1To30, Aging31To60, Aging61To90, AgingOver90}

func agingBucket(daysPastDue int) string {
	switch {
	case daysPastDue <= 0:
		return AgingCurrent
	case daysPastDue <= 30:
		return Aging1To30
	case daysPastDue <= 60:
		return Aging31To60
	case daysPastDue <= 90:
		return Aging61To90
	default:
		return AgingOver90
	}
}

type agingTotals struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

type agingLine struct {
	InvoiceID   int64   `json:"invoice_id"`
	ClientID    int64   `json:"client_id"`
	Number      any     `json:"number"`
	DueDate     string  `json:"duedate"`
	DaysPastDue int     `json:"days_past_due"`
	BalanceDue  float64 `json:"balance_due"`
	Bucket      string  `json:"bucket"`
}

func invoiceAgingReport(ctx context.Context, env *Env, args Args) (any, error) {
	asOf, err := optionalDate(args, "as_of", env.now())
	if err != nil {
		return nil, err
	}
	base := []security.Condition{{Field: "status", Operator: security.OpIn, Value: openInvoiceStatuses}}
	base = append(base, filters(args, "client_id")...)

	buckets := make(map[string]*agingTotals, len(agingBuckets))
	for _, b := range agingBuckets {
		buckets[b] = &agingTotals{}
	}
	pageSize := env.maxRows()
	lines := make([]agingLine, 0)
	truncated := false
	var outstanding float64

	// Keyset pages over id so totals cover every open invoice.
	var lastID int64
	for {
		conds := append(append([]security.Condition{}, base...),
			security.Condition{Field: "id", Operator: security.OpGreater, Value: lastID})
		invoices, err := selectRows(ctx, env.DB, listQuery{
			Table:      "invoices",
			Columns:    []string{"id", "client_id", "number", "duedate", "total"},
			Conditions: conds,
			OrderBy:    "id",
			Limit:      pageSize,
		})
		if err != nil {
			return nil, err
		}
		paidByInvoice, err := paidByInvoiceID(ctx, env.DB, idsOf(invoices, "id"))
		if err != nil {
			return nil, err
		}

		for _, inv := range invoices {
			invID, _ := asInt64(inv["id"])
			lastID = max(lastID, invID)
			clientID, _ := asInt64(inv["client_id"])
			balance := round2(toFloat(inv["total"]) - paidByInvoice[invID])
			if balance <= 0 {
				continue
			}
			due, ok := toTime(inv["duedate"])
			days := 0
			if ok {
				days = daysBetween(due, asOf)
			}
			bucket := agingBucket(days)
			buckets[bucket].Count++
			buckets[bucket].Amount = round2(buckets[bucket].Amount + balance)
			outstanding += balance
			if len(lines) >= pageSize {
				truncated = true
				continue
			}
			lines = append(lines, agingLine{
				InvoiceID:   invID,
				ClientID:    clientID,
				Number:      inv["number"],
				DueDate:     due.Format(dateLayout),
				DaysPastDue: max(days, 0),
				BalanceDue:  balance,
				Bucket:      bucket,
			})
		}
		if len(invoices) < pageSize {
			break
		}
	}
	slices.SortStableFunc(lines, func(a, b agingLine) int {
		return strings.Compare(a.DueDate, b.DueDate)
	})

	return map[string]any{
		"as_of":             asOf.Format(dateLayout),
		"buckets":           buckets,
		"total_outstanding": round2(outstanding),
		"invoices":          lines,
		"truncated":         truncated,
	}, nil
}

func paidByInvoiceID(ctx context.Context, db database.Querier, ids []any) (map[int64]float64, error) {
	paid := map[int64]float64{}
	if len(ids) == 0 {
		return paid, nil
	}
	payments, err := selectRows(ctx, db, listQuery{
		Table:      "payments",
		Columns:    []string{"invoice_id", "amount"},
		Conditions: []security.Condition{{Field: "invoice_id", Operator: security.OpIn, Value: ids}},
	})
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		invID, _ := asInt64(p["invoice_id"])
		paid[invID] += toFloat(p["amount"])
	}
	return paid, nil
}

func invoicePayments(ctx context.Context, db database.Querier, invoiceID int64) ([]database.Row, error) {
	return selectRows(ctx, db, listQuery{
		Table:      "payments",
		Conditions: []security.Condition{{Field: "invoice_id", Value: invoiceID}},
		OrderBy:    "date",
	})
}

func sumColumn(rows []database.Row, col string) float64 {
	var sum float64
	for _, r := range rows {
		sum += toFloat(r[col])
	}
	return sum
}

// dateConditions turns a validated range into inclusive bounds on col.
func dateConditions(col string, r security.DateRange) []security.Condition {
	var conds []security.Condition
	if r.StartDate != "" {
		conds = append(conds, security.Condition{Field: col, Operator: security.OpGreaterEqual, Value: r.StartDate})
	}
	if r.EndDate != "" {
		conds = append(conds, security.Condition{Field: col, Operator: security.OpLessEqual, Value: r.EndDate})
	}
	return conds
}

// optionalDate parses a YYYY-MM-DD argument, falling back to def (truncated to the day).
func optionalDate(args Args, key string, def time.Time) (time.Time, error) {
	s := args.String(key)
	if s == "" {
		return def.UTC().Truncate(24 * time.Hour), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, invalid(key, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
