package tools

import (
	"context"

	"github.com/benvon/crm-tools/internal/security"
)

var clientSearchFields = []string{"company", "city", "country", "phonenumber", "website"}

func clientTools() []Tool {
	return []Tool{
		{
			Name:        "list_clients",
			Description: "List customers with optional active filter and search",
			InputSchema: object(nil, paged(map[string]any{
				"active": boolean("Only active (true) or inactive (false) clients"),
				"search": searchProp(clientSearchFields...),
			})),
			Handler: listClients,
		},
		{
			Name:        "get_client",
			Description: "Get a customer with its contacts",
			InputSchema: object([]string{"id"}, map[string]any{
				"id": id("Client ID"),
			}),
			Handler: getClient,
		},
		{
			Name:        "create_client",
			Description: "Create a customer",
			InputSchema: object([]string{"company"}, map[string]any{
				"company":     text("Company name", 191),
				"vat":         str("VAT number"),
				"phonenumber": str("Phone number"),
				"country":     str("Country"),
				"city":        str("City"),
				"address":     str("Street address"),
				"website":     str("Website URL"),
			}),
			Handler: createClient,
		},
		{
			Name:        "update_client",
			Description: "Update customer fields",
			InputSchema: object([]string{"id"}, map[string]any{
				"id":          id("Client ID"),
				"company":     text("Company name", 191),
				"vat":         str("VAT number"),
				"phonenumber": str("Phone number"),
				"country":     str("Country"),
				"city":        str("City"),
				"address":     str("Street address"),
				"website":     str("Website URL"),
				"active":      boolean("Active flag"),
			}),
			Handler: updateClient,
		},
	}
}

var clientColumns = []string{"id", "company", "vat", "phonenumber", "country", "city", "address", "website", "active", "datecreated"}

func listClients(ctx context.Context, env *Env, args Args) (any, error) {
	var conds []security.Condition
	if args.Has("active") {
		conds = append(conds, security.Condition{Field: "active", Value: args.Bool("active")})
	}
	sc, err := searchCondition(args, clientSearchFields)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		conds = append(conds, *sc)
	}
	return listTable(ctx, env, args, listQuery{
		Table:      "clients",
		Columns:    clientColumns,
		Conditions: conds,
		OrderBy:    "company",
	})
}

func getClient(ctx context.Context, env *Env, args Args) (any, error) {
	clientID := args.Int64("id")
	client, err := getByID(ctx, env.DB, "clients", "client", clientID)
	if err != nil {
		return nil, err
	}
	// contacts carry password hashes; masking strips them on the way out.
	contacts, err := selectRows(ctx, env.DB, listQuery{
		Table:      "contacts",
		Conditions: []security.Condition{{Field: "client_id", Value: clientID}},
		OrderBy:    "is_primary",
		Desc:       true,
	})
	if err != nil {
		return nil, err
	}
	client["contacts"] = contacts
	return client, nil
}

var clientTextFields = []string{"company", "vat", "phonenumber", "country", "city", "address", "website"}

func createClient(ctx context.Context, env *Env, args Args) (any, error) {
	fields := textFields(args, clientTextFields)
	fields = append(fields, field{"active", true}, field{"datecreated", env.now()})
	newID, err := insertRow(ctx, env.DB, "clients", fields)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": newID, "company": args.Text("company"), "created": true}, nil
}

func updateClient(ctx context.Context, env *Env, args Args) (any, error) {
	clientID := args.Int64("id")
	fields := textFields(args, clientTextFields)
	if args.Has("active") {
		fields = append(fields, field{"active", args.Bool("active")})
	}
	ok, err := updateRow(ctx, env.DB, "clients", clientID, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("client", clientID)
	}
	return map[string]any{"id": clientID, "updated": len(fields)}, nil
}

// textFields copies the named free-text arguments that are present.
func textFields(args Args, names []string) []field {
	var out []field
	for _, n := range names {
		if args.Has(n) {
			out = append(out, field{n, args.Text(n)})
		}
	}
	return out
}
