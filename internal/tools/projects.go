package tools

import (
	"context"

	"github.com/benvon/crm-tools/internal/security"
)

// Project statuses.
const (
	ProjectNotStarted = "not_started"
	ProjectInProgress = "in_progress"
	ProjectOnHold     = "on_hold"
	ProjectCancelled  = "cancelled"
	ProjectFinished   = "finished"
)

var projectSearchFields = []string{"name", "description"}

func projectTools() []Tool {
	statuses := []string{ProjectNotStarted, ProjectInProgress, ProjectOnHold, ProjectCancelled, ProjectFinished}
	return []Tool{
		{
			Name:        "list_projects",
			Description: "List projects filtered by client or status",
			InputSchema: object(nil, paged(map[string]any{
				"client_id": id("Client ID"),
				"status":    enum("Project status", statuses...),
				"search":    searchProp(projectSearchFields...),
			})),
			Handler: listProjects,
		},
		{
			Name:        "get_project",
			Description: "Get a project with task progress and logged hours",
			InputSchema: object([]string{"id"}, map[string]any{"id": id("Project ID")}),
			Handler:     getProject,
		},
		{
			Name:        "create_project",
			Description: "Create a project for a client",
			InputSchema: object([]string{"client_id", "name"}, map[string]any{
				"client_id":    id("Client ID"),
				"name":         text("Project name", 191),
				"description":  str("Description"),
				"status":       enum("Initial status", statuses...),
				"start_date":   date("Start date, defaults to today"),
				"deadline":     date("Deadline"),
				"billing_type": enum("Billing type", "fixed_rate", "project_hours", "task_hours"),
			}),
			Handler: createProject,
		},
	}
}

func listProjects(ctx context.Context, env *Env, args Args) (any, error) {
	conds := filters(args, "client_id", "status")
	sc, err := searchCondition(args, projectSearchFields)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		conds = append(conds, *sc)
	}
	return listTable(ctx, env, args, listQuery{
		Table:      "projects",
		Columns:    []string{"id", "client_id", "name", "status", "start_date", "deadline", "billing_type"},
		Conditions: conds,
		OrderBy:    "start_date",
		Desc:       true,
	})
}

func getProject(ctx context.Context, env *Env, args Args) (any, error) {
	projectID := args.Int64("id")
	project, err := getByID(ctx, env.DB, "projects", "project", projectID)
	if err != nil {
		return nil, err
	}

	tasks, err := selectRows(ctx, env.DB, listQuery{
		Table:      "tasks",
		Columns:    []string{"id", "status"},
		Conditions: []security.Condition{{Field: "project_id", Value: projectID}},
	})
	if err != nil {
		return nil, err
	}
	byStatus := map[string]int{}
	done := 0
	for _, t := range tasks {
		s, _ := t["status"].(string)
		byStatus[s]++
		if s == TaskComplete {
			done++
		}
	}

	var hours float64
	if ids := idsOf(tasks, "id"); len(ids) > 0 {
		entries, err := selectRows(ctx, env.DB, listQuery{
			Table:      "timesheets",
			Columns:    []string{"start_time", "end_time"},
			Conditions: []security.Condition{{Field: "task_id", Operator: security.OpIn, Value: ids}},
		})
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			hours += entryHours(e)
		}
	}

	project["tasks"] = map[string]any{
		"total":     len(tasks),
		"by_status": byStatus,
		"completed": done,
	}
	project["completion_percent"] = percent(float64(done), float64(len(tasks)))
	project["logged_hours"] = round2(hours)
	return project, nil
}

func createProject(ctx context.Context, env *Env, args Args) (any, error) {
	clientID := args.Int64("client_id")
	start, err := optionalDate(args, "start_date", env.now())
	if err != nil {
		return nil, err
	}
	fields := []field{
		{"client_id", clientID},
		{"name", args.Text("name")},
		{"description", args.Text("description")},
		{"start_date", start.Format(dateLayout)},
	}
	if args.Has("deadline") {
		deadline, err := optionalDate(args, "deadline", start)
		if err != nil {
			return nil, err
		}
		if deadline.Before(start) {
			return nil, invalid("deadline", "must not be before start_date")
		}
		fields = append(fields, field{"deadline", deadline.Format(dateLayout)})
	}
	status := args.String("status")
	if status == "" {
		status = ProjectNotStarted
	}
	billing := args.String("billing_type")
	if billing == "" {
		billing = "fixed_rate"
	}
	fields = append(fields, field{"status", status}, field{"billing_type", billing})

	if _, err := getByID(ctx, env.DB, "clients", "client", clientID); err != nil {
		return nil, err
	}
	newID, err := insertRow(ctx, env.DB, "projects", fields)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": newID, "name": args.Text("name"), "status": status, "created": true}, nil
}
