package tools

import (
	"context"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/security"
)

// Task statuses.
const (
	TaskNotStarted       = "not_started"
	TaskInProgress       = "in_progress"
	TaskTesting          = "testing"
	TaskAwaitingFeedback = "awaiting_feedback"
	TaskComplete         = "complete"
)

var taskStatuses = []string{TaskNotStarted, TaskInProgress, TaskTesting, TaskAwaitingFeedback, TaskComplete}

var taskPriorities = []string{"low", "medium", "high", "urgent"}

func taskTools() []Tool {
	return []Tool{
		{
			Name:        "list_tasks",
			Description: "List tasks by project, status, priority or assignee",
			InputSchema: object(nil, paged(map[string]any{
				"project_id":  id("Project ID"),
				"assignee_id": id("Staff ID of an assignee"),
				"status":      enum("Task status", taskStatuses...),
				"priority":    enum("Priority", taskPriorities...),
				"search":      searchProp("name", "description"),
			})),
			Handler: listTasks,
		},
		{
			Name:        "create_task",
			Description: "Create a task, optionally assigning staff",
			InputSchema: object([]string{"name"}, map[string]any{
				"project_id":   id("Project ID"),
				"name":         text("Task name", 191),
				"description":  str("Description"),
				"priority":     enum("Priority", taskPriorities...),
				"startdate":    date("Start date, defaults to today"),
				"duedate":      date("Due date"),
				"assignee_ids": array("Staff IDs to assign", map[string]any{"type": []any{"integer", "string"}}, 0),
			}),
			Handler: createTask,
		},
		{
			Name:        "update_task_status",
			Description: "Move a task to a new status",
			InputSchema: object([]string{"id", "status"}, map[string]any{
				"id":     id("Task ID"),
				"status": enum("New status", taskStatuses...),
			}),
			Handler: updateTaskStatus,
		},
	}
}

var taskColumns = []string{"id", "project_id", "name", "priority", "status", "startdate", "duedate", "datefinished"}

func listTasks(ctx context.Context, env *Env, args Args) (any, error) {
	conds := filters(args, "project_id", "status", "priority")
	sc, err := searchCondition(args, []string{"name", "description"})
	if err != nil {
		return nil, err
	}
	if sc != nil {
		conds = append(conds, *sc)
	}

	if args.Has("assignee_id") {
		assigned, err := selectRows(ctx, env.DB, listQuery{
			Table:      "task_assignees",
			Columns:    []string{"task_id"},
			Conditions: []security.Condition{{Field: "staff_id", Value: args.Int64("assignee_id")}},
		})
		if err != nil {
			return nil, err
		}
		ids := idsOf(assigned, "task_id")
		if len(ids) == 0 {
			return &listResult{Items: []database.Row{}, Limit: args.Limit(env.maxRows()), Offset: args.Offset()}, nil
		}
		conds = append(conds, security.Condition{Field: "id", Operator: security.OpIn, Value: ids})
	}

	return listTable(ctx, env, args, listQuery{
		Table:      "tasks",
		Columns:    taskColumns,
		Conditions: conds,
		OrderBy:    "duedate",
	})
}

func createTask(ctx context.Context, env *Env, args Args) (any, error) {
	start, err := optionalDate(args, "startdate", env.now())
	if err != nil {
		return nil, err
	}
	assignees := make([]int64, 0, len(args.Slice("assignee_ids")))
	for _, raw := range args.Slice("assignee_ids") {
		staffID, err := security.ValidateNumericID("assignee_ids", raw)
		if err != nil {
			return nil, err
		}
		assignees = append(assignees, staffID)
	}

	priority := args.String("priority")
	if priority == "" {
		priority = "medium"
	}
	fields := []field{
		{"name", args.Text("name")},
		{"description", args.Text("description")},
		{"priority", priority},
		{"status", TaskNotStarted},
		{"startdate", start.Format(dateLayout)},
	}
	if args.Has("project_id") {
		projectID := args.Int64("project_id")
		if _, err := getByID(ctx, env.DB, "projects", "project", projectID); err != nil {
			return nil, err
		}
		fields = append(fields, field{"project_id", projectID})
	}
	if args.Has("duedate") {
		due, err := optionalDate(args, "duedate", start)
		if err != nil {
			return nil, err
		}
		if due.Before(start) {
			return nil, invalid("duedate", "must not be before startdate")
		}
		fields = append(fields, field{"duedate", due.Format(dateLayout)})
	}

	taskID, err := insertRow(ctx, env.DB, "tasks", fields)
	if err != nil {
		return nil, err
	}
	for _, staffID := range assignees {
		if _, err := insertRow(ctx, env.DB, "task_assignees", []field{
			{"task_id", taskID},
			{"staff_id", staffID},
		}); err != nil {
			return nil, err
		}
	}
	return map[string]any{"id": taskID, "status": TaskNotStarted, "assignees": assignees}, nil
}

func updateTaskStatus(ctx context.Context, env *Env, args Args) (any, error) {
	taskID := args.Int64("id")
	status := args.String("status")
	fields := []field{{"status", status}}
	if status == TaskComplete {
		fields = append(fields, field{"datefinished", env.now()})
	} else {
		fields = append(fields, field{"datefinished", nil})
	}
	ok, err := updateRow(ctx, env.DB, "tasks", taskID, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("task", taskID)
	}
	return map[string]any{"id": taskID, "status": status}, nil
}
