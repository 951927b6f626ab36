package tools

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/security"
)

func timesheetTools() []Tool {
	return []Tool{
		{
			Name:        "log_time",
			Description: "Log a time entry against a task",
			InputSchema: object([]string{"task_id", "staff_id", "start_time", "end_time"}, map[string]any{
				"task_id":    id("Task ID"),
				"staff_id":   id("Staff ID"),
				"start_time": datetime("Start"),
				"end_time":   datetime("End"),
				"note":       str("Note"),
			}),
			Handler: logTime,
		},
		{
			Name:        "timesheet_summary",
			Description: "Hours logged per staff member over a date range",
			InputSchema: object([]string{"start_date", "end_date"}, map[string]any{
				"start_date": date("From"),
				"end_date":   date("To, inclusive"),
				"staff_id":   id("Restrict to one staff member"),
				"project_id": id("Restrict to one project"),
			}),
			Handler: timesheetSummary,
		},
	}
}

func parseTimestamp(key, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, invalid(key, "must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func logTime(ctx context.Context, env *Env, args Args) (any, error) {
	start, err := parseTimestamp("start_time", args.String("start_time"))
	if err != nil {
		return nil, err
	}
	end, err := parseTimestamp("end_time", args.String("end_time"))
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, invalid("end_time", "must be after start_time")
	}

	taskID := args.Int64("task_id")
	if _, err := getByID(ctx, env.DB, "tasks", "task", taskID); err != nil {
		return nil, err
	}
	entryID, err := insertRow(ctx, env.DB, "timesheets", []field{
		{"task_id", taskID},
		{"staff_id", args.Int64("staff_id")},
		{"start_time", start},
		{"end_time", end},
		{"note", args.Text("note")},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":      entryID,
		"task_id": taskID,
		"hours":   round2(end.Sub(start).Hours()),
	}, nil
}

// entryHours returns the duration of a timesheet row; open entries count as zero.
func entryHours(row database.Row) float64 {
	start, ok1 := toTime(row["start_time"])
	end, ok2 := toTime(row["end_time"])
	if !ok1 || !ok2 || !end.After(start) {
		return 0
	}
	return end.Sub(start).Seconds() / 3600
}

type staffHours struct {
	StaffID int64   `json:"staff_id"`
	Name    string  `json:"name"`
	Hours   float64 `json:"hours"`
	Entries int     `json:"entries"`
}

func timesheetSummary(ctx context.Context, env *Env, args Args) (any, error) {
	r := args.DateRange()
	if r.StartDate == "" || r.EndDate == "" {
		return nil, invalid("start_date", "start_date and end_date are required")
	}
	if !r.Ordered() {
		return nil, invalid("end_date", "must not be before start_date")
	}
	endExclusive, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return nil, invalid("end_date", "must be a date in YYYY-MM-DD format")
	}

	conds := []security.Condition{
		{Field: "start_time", Operator: security.OpGreaterEqual, Value: r.StartDate},
		{Field: "start_time", Operator: security.OpLess, Value: endExclusive.AddDate(0, 0, 1).Format(dateLayout)},
	}
	conds = append(conds, filters(args, "staff_id")...)

	if args.Has("project_id") {
		tasks, err := selectRows(ctx, env.DB, listQuery{
			Table:      "tasks",
			Columns:    []string{"id"},
			Conditions: []security.Condition{{Field: "project_id", Value: args.Int64("project_id")}},
		})
		if err != nil {
			return nil, err
		}
		ids := idsOf(tasks, "id")
		if len(ids) == 0 {
			return map[string]any{"start_date": r.StartDate, "end_date": r.EndDate, "total_hours": 0.0, "by_staff": []staffHours{}}, nil
		}
		conds = append(conds, security.Condition{Field: "task_id", Operator: security.OpIn, Value: ids})
	}

	entries, err := selectRows(ctx, env.DB, listQuery{
		Table:      "timesheets",
		Columns:    []string{"staff_id", "start_time", "end_time"},
		Conditions: conds,
	})
	if err != nil {
		return nil, err
	}

	byStaff := map[int64]*staffHours{}
	var total float64
	for _, e := range entries {
		staffID, _ := asInt64(e["staff_id"])
		h := entryHours(e)
		s, ok := byStaff[staffID]
		if !ok {
			s = &staffHours{StaffID: staffID}
			byStaff[staffID] = s
		}
		s.Hours += h
		s.Entries++
		total += h
	}

	if len(byStaff) > 0 {
		ids := make([]any, 0, len(byStaff))
		for staffID := range byStaff {
			ids = append(ids, staffID)
		}
		staff, err := selectRows(ctx, env.DB, listQuery{
			Table:      "staff",
			Columns:    []string{"id", "firstname", "lastname"},
			Conditions: []security.Condition{{Field: "id", Operator: security.OpIn, Value: ids}},
		})
		if err != nil {
			return nil, err
		}
		for _, st := range staff {
			staffID, _ := asInt64(st["id"])
			if s, ok := byStaff[staffID]; ok {
				first, _ := st["firstname"].(string)
				last, _ := st["lastname"].(string)
				s.Name = strings.TrimSpace(first + " " + last)
			}
		}
	}

	out := make([]staffHours, 0, len(byStaff))
	for _, s := range byStaff {
		s.Hours = round2(s.Hours)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hours != out[j].Hours {
			return out[i].Hours > out[j].Hours
		}
		return out[i].StaffID < out[j].StaffID
	})

	return map[string]any{
		"start_date":  r.StartDate,
		"end_date":    r.EndDate,
		"total_hours": round2(total),
		"by_staff":    out,
	}, nil
}
