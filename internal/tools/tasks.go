package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/mirror"
)

func (m *mirrorTools) registerTaskTools(r *Registry) {
	r.Register(&Func{
		ToolName:        "tasks_on_or_before",
		ToolDescription: "Returns any tasks that are not complete (or have subtasks that are not complete) on or before the specified date.",
		Schema: objectSchema(map[string]any{
			"on_or_before_date": stringProp("ISO date or datetime, e.g. 2024-05-01"),
		}, "on_or_before_date"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			when, err := m.date(params, "on_or_before_date")
			if err != nil {
				return nil, err
			}
			return m.listTasks(ctx, when)
		},
	})
	r.Register(&Func{
		ToolName:        "get_active_tasks",
		ToolDescription: "Returns active tasks, defined as tasks that are (or have subtasks that are) not complete and due on or before the current date.",
		Schema:          objectSchema(map[string]any{}),
		Fn: func(ctx context.Context, _ map[string]any) (any, error) {
			return m.listTasks(ctx, m.clock.Today())
		},
	})

	m.gate(r, &Func{
		ToolName:        "create_project_or_task_standalone",
		ToolDescription: "Creates a new entry in the task database. Can be a project task, or standalone task with no subtasks. Project tasks are identical to standalone tasks, but often have subtasks.",
		Schema: objectSchema(map[string]any{
			"title":        stringProp("Task title"),
			"due_date_iso": stringProp("Due date, ISO format"),
			"priority":     enumProp("Task priority", mirror.Priorities),
			"status":       enumProp("Task status", mirror.TaskStatuses),
		}, "title", "due_date_iso", "priority", "status"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			t, err := m.newTask(params, "title", "due_date_iso", "priority", "status")
			if err != nil {
				return nil, err
			}
			created, err := m.tasks.CreateTask(ctx, t)
			if err != nil {
				return nil, err
			}
			return m.afterTaskChange(ctx, map[string]any{"new_task": m.renderTask(created, "")})
		},
	}, Template("Create new project or task: {title} due {due_date_iso} priority {priority}"))

	m.gate(r, &Func{
		ToolName:        "create_subtask_with_project_id",
		ToolDescription: "Creates a new subtask under an existing project task.",
		Schema: objectSchema(map[string]any{
			"project_id":   stringProp("task_id of the project, as listed by the task tools"),
			"child_title":  stringProp("Subtask title"),
			"due_date_iso": stringProp("Due date, ISO format"),
			"status":       enumProp("Subtask status", mirror.TaskStatuses),
			"priority":     enumProp("Subtask priority", mirror.Priorities),
		}, "project_id", "child_title", "due_date_iso"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			project, err := m.resolve(params, KindTasks, "project_id")
			if err != nil {
				return nil, err
			}
			t, err := m.newTask(params, "child_title", "due_date_iso", "priority", "status")
			if err != nil {
				return nil, err
			}
			created, err := m.tasks.CreateSubtask(ctx, project.ID, t)
			if err != nil {
				return nil, err
			}
			return m.afterTaskChange(ctx, map[string]any{"new_task": m.renderTask(created, "")})
		},
	}, m.validTaskRef("project_id", Template("Create new child task: {child_title} under project with id: {project_id} with due date {due_date_iso}, status {status}, priority {priority}")))

	m.gate(r, &Func{
		ToolName:        "create_new_project_with_subtask",
		ToolDescription: "Create new project with child task and additional details (due dates, priorities, completion statuses).",
		Schema: objectSchema(map[string]any{
			"project_title":        stringProp("Project title"),
			"child_title":          stringProp("Subtask title"),
			"project_due_date_iso": stringProp("Project due date, ISO format"),
			"child_due_date_iso":   stringProp("Subtask due date, ISO format"),
			"project_status":       enumProp("Project status", mirror.TaskStatuses),
			"child_status":         enumProp("Subtask status", mirror.TaskStatuses),
			"project_priority":     enumProp("Project priority", mirror.Priorities),
			"child_priority":       enumProp("Subtask priority", mirror.Priorities),
		}, "project_title", "child_title", "project_due_date_iso", "child_due_date_iso",
			"project_status", "child_status", "project_priority", "child_priority"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			project, err := m.newTask(params, "project_title", "project_due_date_iso", "project_priority", "project_status")
			if err != nil {
				return nil, err
			}
			child, err := m.newTask(params, "child_title", "child_due_date_iso", "child_priority", "child_status")
			if err != nil {
				return nil, err
			}
			p, c, err := m.tasks.CreateProjectWithSubtask(ctx, project, child)
			if err != nil {
				return nil, err
			}
			return m.afterTaskChange(ctx, map[string]any{
				"project":    m.renderTask(p, ""),
				"child_task": m.renderTask(c, ""),
			})
		},
	}, Template("Create new project: {project_title} with child task: {child_title} project due date {project_due_date_iso} child due date {child_due_date_iso} project priority {project_priority} child priority {child_priority}"))

	m.gate(r, &Func{
		ToolName:        "update_task",
		ToolDescription: "Updates one or more details of the task with the specified id.",
		Schema: objectSchema(map[string]any{
			"task_id":      stringProp("task_id as listed by the task tools"),
			"title":        stringProp("New title"),
			"due_date_iso": stringProp("New due date, ISO format"),
			"status":       enumProp("New status", mirror.TaskStatuses),
			"priority":     enumProp("New priority", mirror.Priorities),
		}, "task_id"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			entry, err := m.resolve(params, KindTasks, "task_id")
			if err != nil {
				return nil, err
			}
			var u mirror.TaskUpdate
			u.Title = optionalString(params, "title")
			if u.Due, err = m.optionalDate(params, "due_date_iso"); err != nil {
				return nil, err
			}
			if s := optionalString(params, "status"); s != nil {
				st := mirror.TaskStatus(*s)
				u.Status = &st
			}
			if p := optionalString(params, "priority"); p != nil {
				pr := mirror.Priority(*p)
				u.Priority = &pr
			}
			updated, err := m.tasks.UpdateTask(ctx, entry.ID, u)
			if err != nil {
				return nil, err
			}
			return m.afterTaskChange(ctx, map[string]any{
				"updated_task_id": GetString(params, "task_id", ""),
				"updated_task":    m.renderTask(updated, ""),
			})
		},
	}, m.withName(KindTasks, "task_id", requireAny(
		Template("Update task: id {task_id}; params: {title} {due_date_iso} {status} {priority}"),
		"title", "due_date_iso", "status", "priority",
	)))

	m.gate(r, &Func{
		ToolName:        "delete_task",
		ToolDescription: "Deletes (archives) the task with the specified id.",
		Schema: objectSchema(map[string]any{
			"task_id": stringProp("task_id as listed by the task tools"),
		}, "task_id"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			entry, err := m.resolve(params, KindTasks, "task_id")
			if err != nil {
				return nil, err
			}
			if err := m.tasks.DeleteTask(ctx, entry.ID); err != nil {
				return nil, err
			}
			return m.afterTaskChange(ctx, map[string]any{"deleted_task": entry.Name})
		},
	}, m.named(KindTasks, "task_id", "Delete task: %s"))
}

// named renders format with the cached display name of the item.
func (m *mirrorTools) named(kind, idParam, format string) Describer {
	return func(params map[string]any) (string, error) {
		entry, err := m.resolve(params, kind, idParam)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(format, entry.Name), nil
	}
}

// validTaskRef fails before prompting when idParam is not a listed task.
func (m *mirrorTools) validTaskRef(idParam string, describe Describer) Describer {
	return func(params map[string]any) (string, error) {
		if _, err := m.resolve(params, KindTasks, idParam); err != nil {
			return "", err
		}
		return describe(params)
	}
}

func (m *mirrorTools) newTask(params map[string]any, titleKey, dueKey, priorityKey, statusKey string) (mirror.NewTask, error) {
	due, err := m.date(params, dueKey)
	if err != nil {
		return mirror.NewTask{}, err
	}
	return mirror.NewTask{
		Title:    GetString(params, titleKey, ""),
		Due:      due,
		Priority: mirror.Priority(GetString(params, priorityKey, "")),
		Status:   mirror.TaskStatus(GetString(params, statusKey, "")),
	}, nil
}

// listTasks fetches tasks and reassigns display ids in listing order,
// projects before their subtasks.
func (m *mirrorTools) listTasks(ctx context.Context, onOrBefore time.Time) (map[string]any, error) {
	tasks, err := m.tasks.Tasks(ctx, onOrBefore)
	if err != nil {
		return nil, err
	}
	var entries []CacheEntry
	var render func(ts []mirror.Task) []map[string]any
	render = func(ts []mirror.Task) []map[string]any {
		out := make([]map[string]any, 0, len(ts))
		for _, t := range ts {
			id := DisplayID(len(entries))
			entries = append(entries, CacheEntry{ID: t.ID, Name: t.Title})
			item := m.renderTask(t, id)
			if len(t.Children) > 0 {
				item["subtasks"] = render(t.Children)
			}
			out = append(out, item)
		}
		return out
	}
	rendered := render(tasks)
	m.cache.Replace(KindTasks, entries)
	return map[string]any{"tasks": rendered}, nil
}

func (m *mirrorTools) renderTask(t mirror.Task, displayID string) map[string]any {
	item := map[string]any{
		"title":    t.Title,
		"status":   string(t.Status),
		"priority": string(t.Priority),
	}
	if displayID != "" {
		item["task_id"] = displayID
	}
	if t.Due != nil {
		item["due"] = m.clock.FormatDate(*t.Due)
	}
	return item
}

// afterTaskChange refreshes the listing so display ids stay current.
func (m *mirrorTools) afterTaskChange(ctx context.Context, extra map[string]any) (any, error) {
	listing, err := m.listTasks(ctx, m.clock.Today())
	if err != nil {
		slog.Warn("Failed to refresh tasks after change", "error", err)
		return success(extra), nil
	}
	extra["tasks"] = listing["tasks"]
	return success(extra), nil
}
