package tools

import (
	"context"

	"github.com/benvon/crm-tools/internal/security"
)

var billedStatuses = []any{InvoiceUnpaid, InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue}

func reportTools() []Tool {
	return []Tool{{
		Name:        "financial_summary",
		Description: "Invoiced, collected, outstanding and expense totals for a period",
		InputSchema: object([]string{"start_date", "end_date"}, map[string]any{
			"start_date": date("Period start"),
			"end_date":   date("Period end, inclusive"),
			"client_id":  id("Restrict to one client"),
		}),
		Handler: financialSummary,
	}}
}

// FinancialSummary is the financial_summary result.
type FinancialSummary struct {
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	InvoiceCount   int     `json:"invoice_count"`
	Invoiced       float64 `json:"invoiced"`
	Collected      float64 `json:"collected"`
	Outstanding    float64 `json:"outstanding"`
	Expenses       float64 `json:"expenses"`
	Net            float64 `json:"net"`
	CollectionRate float64 `json:"collection_rate"`
}

func financialSummary(ctx context.Context, env *Env, args Args) (any, error) {
	r := args.DateRange()
	if r.StartDate == "" || r.EndDate == "" {
		return nil, invalid("start_date", "start_date and end_date are required")
	}
	if !r.Ordered() {
		return nil, invalid("end_date", "must not be before start_date")
	}
	clientFilter := filters(args, "client_id")

	invConds := append([]security.Condition{
		{Field: "status", Operator: security.OpIn, Value: billedStatuses},
	}, dateConditions("date", r)...)
	invConds = append(invConds, clientFilter...)
	invoices, err := selectRows(ctx, env.DB, listQuery{
		Table:      "invoices",
		Columns:    []string{"id", "total"},
		Conditions: invConds,
	})
	if err != nil {
		return nil, err
	}
	invoiced := sumColumn(invoices, "total")

	// Payments received against this period's invoices, whenever they arrived.
	var settled float64
	if ids := idsOf(invoices, "id"); len(ids) > 0 {
		paid, err := selectRows(ctx, env.DB, listQuery{
			Table:      "payments",
			Columns:    []string{"amount"},
			Conditions: []security.Condition{{Field: "invoice_id", Operator: security.OpIn, Value: ids}},
		})
		if err != nil {
			return nil, err
		}
		settled = sumColumn(paid, "amount")
	}

	// Cash received during the period, limited to the client's invoices when filtered.
	collected, err := periodCollections(ctx, env, r, clientFilter)
	if err != nil {
		return nil, err
	}

	expConds := append(dateConditions("date", r), clientFilter...)
	expenses, err := selectRows(ctx, env.DB, listQuery{
		Table:      "expenses",
		Columns:    []string{"amount"},
		Conditions: expConds,
	})
	if err != nil {
		return nil, err
	}
	spent := sumColumn(expenses, "amount")

	return &FinancialSummary{
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		InvoiceCount:   len(invoices),
		Invoiced:       round2(invoiced),
		Collected:      round2(collected),
		Outstanding:    round2(max(invoiced-settled, 0)),
		Expenses:       round2(spent),
		Net:            round2(collected - spent),
		CollectionRate: percent(settled, invoiced),
	}, nil
}

func periodCollections(ctx context.Context, env *Env, r security.DateRange, clientFilter []security.Condition) (float64, error) {
	conds := dateConditions("date", r)
	if len(clientFilter) > 0 {
		clientInvoices, err := selectRows(ctx, env.DB, listQuery{
			Table:      "invoices",
			Columns:    []string{"id"},
			Conditions: clientFilter,
		})
		if err != nil {
			return 0, err
		}
		ids := idsOf(clientInvoices, "id")
		if len(ids) == 0 {
			return 0, nil
		}
		conds = append([]security.Condition{{Field: "invoice_id", Operator: security.OpIn, Value: ids}}, conds...)
	}
	payments, err := selectRows(ctx, env.DB, listQuery{
		Table:      "payments",
		Columns:    []string{"amount"},
		Conditions: conds,
	})
	if err != nil {
		return 0, err
	}
	return sumColumn(payments, "amount"), nil
}
