package tools

import (
	"context"

	"github.com/benvon/crm-tools/internal/security"
)

func subscriptionTools() []Tool {
	return []Tool{{
		Name:        "list_subscriptions",
		Description: "List recurring subscriptions",
		InputSchema: object(nil, paged(map[string]any{
			"client_id": id("Client ID"),
			"status":    enum("Subscription status", "active", "past_due", "canceled", "incomplete", "trialing"),
		})),
		Handler: listSubscriptions,
	}}
}

func listSubscriptions(ctx context.Context, env *Env, args Args) (any, error) {
	return listTable(ctx, env, args, listQuery{
		Table:      "subscriptions",
		Columns:    []string{"id", "client_id", "name", "status", "quantity", "next_billing_cycle", "stripe_id"},
		Conditions: filters(args, "client_id", "status"),
		OrderBy:    "next_billing_cycle",
	})
}

func wikiTools() []Tool {
	return []Tool{
		{
			Name:        "search_wiki",
			Description: "Search knowledge base articles",
			InputSchema: object([]string{"query"}, paged(map[string]any{
				"query":    text("Text to look for", security.MaxSearchValueLength),
				"in":       enum("Column to search, defaults to subject", "subject", "description"),
				"group_id": id("Article group"),
			})),
			Handler: searchWiki,
		},
		{
			Name:        "get_wiki_article",
			Description: "Get one knowledge base article",
			InputSchema: object([]string{"id"}, map[string]any{"id": id("Article ID")}),
			Handler:     getWikiArticle,
		},
	}
}

func searchWiki(ctx context.Context, env *Env, args Args) (any, error) {
	col := args.String("in")
	if col == "" {
		col = "subject"
	}
	if col != "subject" && col != "description" {
		return nil, invalid("in", "must be subject or description")
	}
	conds := []security.Condition{
		{Field: col, Operator: security.OpLike, Value: args.Text("query")},
		{Field: "active", Value: true},
	}
	conds = append(conds, filters(args, "group_id")...)
	return listTable(ctx, env, args, listQuery{
		Table:      "wiki_articles",
		Columns:    []string{"id", "group_id", "subject", "slug", "datecreated"},
		Conditions: conds,
		OrderBy:    "subject",
	})
}

func getWikiArticle(ctx context.Context, env *Env, args Args) (any, error) {
	return getByID(ctx, env.DB, "wiki_articles", "article", args.Int64("id"))
}

func staffTools() []Tool {
	return []Tool{{
		Name:        "list_staff",
		Description: "List staff members",
		InputSchema: object(nil, paged(map[string]any{
			"active": boolean("Only active (true) or inactive (false) staff"),
			"search": searchProp("firstname", "lastname", "email"),
		})),
		Handler: listStaff,
	}}
}

func listStaff(ctx context.Context, env *Env, args Args) (any, error) {
	var conds []security.Condition
	if args.Has("active") {
		conds = append(conds, security.Condition{Field: "active", Value: args.Bool("active")})
	}
	sc, err := searchCondition(args, []string{"firstname", "lastname", "email"})
	if err != nil {
		return nil, err
	}
	if sc != nil {
		conds = append(conds, *sc)
	}
	// password and token columns are masked by the gateway.
	return listTable(ctx, env, args, listQuery{
		Table:      "staff",
		Conditions: conds,
		OrderBy:    "lastname",
	})
}
