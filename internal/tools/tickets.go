package tools

import (
	"context"
)

// Ticket statuses.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketAnswered   = "answered"
	TicketOnHold     = "on_hold"
	TicketClosed     = "closed"
)

var ticketStatuses = []string{TicketOpen, TicketInProgress, TicketAnswered, TicketOnHold, TicketClosed}

var ticketPriorities = []string{"low", "medium", "high"}

func ticketTools() []Tool {
	return []Tool{
		{
			Name:        "list_tickets",
			Description: "List support tickets",
			InputSchema: object(nil, paged(map[string]any{
				"client_id":     id("Client ID"),
				"department_id": id("Department ID"),
				"status":        enum("Ticket status", ticketStatuses...),
				"priority":      enum("Priority", ticketPriorities...),
				"search":        searchProp("subject"),
			})),
			Handler: listTickets,
		},
		{
			Name:        "create_ticket",
			Description: "Open a support ticket for a client",
			InputSchema: object([]string{"client_id", "subject", "message"}, map[string]any{
				"client_id":     id("Client ID"),
				"contact_id":    id("Contact ID"),
				"department_id": id("Department ID"),
				"subject":       text("Subject", 191),
				"message":       text("Message body", 10000),
				"priority":      enum("Priority", ticketPriorities...),
			}),
			Handler: createTicket,
		},
		{
			Name:        "reply_ticket",
			Description: "Add a staff reply to a ticket",
			InputSchema: object([]string{"ticket_id", "message"}, map[string]any{
				"ticket_id": id("Ticket ID"),
				"staff_id":  id("Replying staff member"),
				"message":   text("Reply body", 10000),
				"status":    enum("Status after reply, defaults to answered", ticketStatuses...),
			}),
			Handler: replyTicket,
		},
	}
}

func listTickets(ctx context.Context, env *Env, args Args) (any, error) {
	conds := filters(args, "client_id", "department_id", "status", "priority")
	sc, err := searchCondition(args, []string{"subject"})
	if err != nil {
		return nil, err
	}
	if sc != nil {
		conds = append(conds, *sc)
	}
	return listTable(ctx, env, args, listQuery{
		Table:      "tickets",
		Columns:    []string{"id", "client_id", "contact_id", "department_id", "subject", "priority", "status", "date", "lastreply"},
		Conditions: conds,
		OrderBy:    "date",
		Desc:       true,
	})
}

func createTicket(ctx context.Context, env *Env, args Args) (any, error) {
	clientID := args.Int64("client_id")
	if _, err := getByID(ctx, env.DB, "clients", "client", clientID); err != nil {
		return nil, err
	}
	priority := args.String("priority")
	if priority == "" {
		priority = "medium"
	}
	fields := []field{
		{"client_id", clientID},
		{"subject", args.Text("subject")},
		{"message", args.Text("message")},
		{"priority", priority},
		{"status", TicketOpen},
		{"date", env.now()},
	}
	for _, opt := range []string{"contact_id", "department_id"} {
		if args.Has(opt) {
			fields = append(fields, field{opt, args.Int64(opt)})
		}
	}
	ticketID, err := insertRow(ctx, env.DB, "tickets", fields)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": ticketID, "status": TicketOpen, "priority": priority}, nil
}

func replyTicket(ctx context.Context, env *Env, args Args) (any, error) {
	ticketID := args.Int64("ticket_id")
	ticket, err := getByID(ctx, env.DB, "tickets", "ticket", ticketID)
	if err != nil {
		return nil, err
	}
	if s, _ := ticket["status"].(string); s == TicketClosed && !args.Has("status") {
		return nil, invalid("ticket_id", "ticket is closed; pass status to reopen it")
	}

	now := env.now()
	reply := []field{
		{"ticket_id", ticketID},
		{"message", args.Text("message")},
		{"date", now},
	}
	if args.Has("staff_id") {
		reply = append(reply, field{"staff_id", args.Int64("staff_id")})
	}
	replyID, err := insertRow(ctx, env.DB, "ticket_replies", reply)
	if err != nil {
		return nil, err
	}

	status := args.String("status")
	if status == "" {
		status = TicketAnswered
	}
	if _, err := updateRow(ctx, env.DB, "tickets", ticketID, []field{
		{"status", status},
		{"lastreply", now},
	}); err != nil {
		return nil, err
	}
	return map[string]any{"reply_id": replyID, "ticket_id": ticketID, "status": status}, nil
}
