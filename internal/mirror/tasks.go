package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Task database property names.
const (
	taskPropName     = "Name"
	taskPropDate     = "Date"
	taskPropStatus   = "Status"
	taskPropPriority = "Priority"
	taskPropParent   = "Parent item"
)

// TaskStore reads and writes the Notion task database.
type TaskStore struct {
	notion *NotionClient
	dbID   string
	clock  *Clock
}

// NewTaskStore creates a task store on databaseID.
func NewTaskStore(notion *NotionClient, databaseID string, clock *Clock) *TaskStore {
	return &TaskStore{notion: notion, dbID: databaseID, clock: clock}
}

// Tasks returns open tasks due on or before onOrBefore, plus tasks finished
// on that day. Parents of matching subtasks are fetched so projects come
// back as roots with their children nested. Every level is ordered by due
// date, then status, then priority.
func (s *TaskStore) Tasks(ctx context.Context, onOrBefore time.Time) ([]Task, error) {
	cutoff := s.clock.FormatDate(onOrBefore)
	day := onOrBefore.In(s.clock.Location()).Format("2006-01-02")
	filter := map[string]any{
		"or": []any{
			map[string]any{"and": []any{
				map[string]any{"property": taskPropDate, "date": map[string]any{"on_or_before": cutoff}},
				map[string]any{"property": taskPropStatus, "status": map[string]any{"does_not_equal": string(StatusDone)}},
			}},
			map[string]any{"and": []any{
				map[string]any{"property": taskPropStatus, "status": map[string]any{"equals": string(StatusDone)}},
				map[string]any{"property": taskPropDate, "date": map[string]any{"equals": day}},
			}},
		},
	}
	pages, err := s.notion.QueryDatabase(ctx, s.dbID, map[string]any{"filter": filter}, 0)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	flat := make(map[string]*Task, len(pages))
	order := make([]string, 0, len(pages))
	add := func(p Page) {
		if _, ok := flat[p.ID]; ok {
			return
		}
		t := s.taskFromPage(p)
		flat[p.ID] = &t
		order = append(order, p.ID)
	}
	for _, p := range pages {
		t := s.taskFromPage(p)
		if t.Due == nil || t.Due.After(onOrBefore) {
			continue
		}
		add(p)
	}

	parents := make([]string, 0)
	for _, id := range order {
		if pid := flat[id].ParentID; pid != "" {
			if _, ok := flat[pid]; !ok {
				parents = append(parents, pid)
			}
		}
	}
	for _, pid := range parents {
		if _, ok := flat[pid]; ok {
			continue
		}
		p, err := s.notion.RetrievePage(ctx, pid)
		if err != nil {
			slog.Warn("Failed to fetch parent task", "page_id", pid, "error", err)
			continue
		}
		add(p)
	}

	children := make(map[string][]string)
	var roots []string
	for _, id := range order {
		t := flat[id]
		if t.ParentID != "" {
			if _, ok := flat[t.ParentID]; ok {
				children[t.ParentID] = append(children[t.ParentID], id)
				continue
			}
		}
		roots = append(roots, id)
	}

	var build func(ids []string) []Task
	build = func(ids []string) []Task {
		out := make([]Task, 0, len(ids))
		for _, id := range ids {
			t := *flat[id]
			if kids := children[id]; len(kids) > 0 {
				t.Children = build(kids)
			}
			out = append(out, t)
		}
		sortTasks(out)
		return out
	}
	return build(roots), nil
}

func sortTasks(ts []Task) {
	dueDay := func(t Task) string {
		if t.Due == nil {
			return "9999-12-31"
		}
		return t.Due.Format("2006-01-02")
	}
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if da, db := dueDay(a), dueDay(b); da != db {
			return da < db
		}
		if a.Status.rank() != b.Status.rank() {
			return a.Status.rank() < b.Status.rank()
		}
		return a.Priority.rank() < b.Priority.rank()
	})
}

func (s *TaskStore) taskFromPage(p Page) Task {
	t := Task{ID: p.ID, URL: p.URL, Title: "Untitled"}
	if title := p.Properties[taskPropName].PlainText(); title != "" {
		t.Title = title
	}
	if st := p.Properties[taskPropStatus].Status; st != nil {
		t.Status = TaskStatus(st.Name)
	}
	if pr := p.Properties[taskPropPriority].Select; pr != nil {
		t.Priority = Priority(pr.Name)
	}
	if rel := p.Properties[taskPropParent].Relation; len(rel) > 0 {
		t.ParentID = rel[0].ID
	}
	if d := p.Properties[taskPropDate].Date; d != nil && d.Start != "" {
		if due, err := s.clock.NormalizeDate(d.Start); err == nil {
			t.Due = &due
		}
	}
	return t
}

func (s *TaskStore) taskProperties(t NewTask, parentID string) map[string]any {
	props := map[string]any{
		taskPropName: titleProp(t.Title),
		taskPropDate: dateProp(s.clock.FormatDate(t.Due)),
	}
	if t.Priority != "" {
		props[taskPropPriority] = selectProp(string(t.Priority))
	}
	if t.Status != "" {
		props[taskPropStatus] = statusProp(string(t.Status))
	}
	if parentID != "" {
		props[taskPropParent] = relationProp(parentID)
	}
	return props
}

// CreateTask creates a standalone or project task.
func (s *TaskStore) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	p, err := s.notion.CreatePage(ctx, s.dbID, s.taskProperties(t, ""))
	if err != nil {
		return Task{}, fmt.Errorf("create task %q: %w", t.Title, err)
	}
	slog.Info("Task created", "page_id", p.ID, "title", t.Title)
	return s.taskFromPage(p), nil
}

// CreateSubtask creates a task under an existing project.
func (s *TaskStore) CreateSubtask(ctx context.Context, projectID string, t NewTask) (Task, error) {
	p, err := s.notion.CreatePage(ctx, s.dbID, s.taskProperties(t, projectID))
	if err != nil {
		return Task{}, fmt.Errorf("create subtask %q: %w", t.Title, err)
	}
	slog.Info("Subtask created", "page_id", p.ID, "project_id", projectID, "title", t.Title)
	return s.taskFromPage(p), nil
}

// CreateProjectWithSubtask creates a project and its first child.
func (s *TaskStore) CreateProjectWithSubtask(ctx context.Context, project, child NewTask) (Task, Task, error) {
	parent, err := s.CreateTask(ctx, project)
	if err != nil {
		return Task{}, Task{}, err
	}
	sub, err := s.CreateSubtask(ctx, parent.ID, child)
	if err != nil {
		return parent, Task{}, err
	}
	return parent, sub, nil
}

// UpdateTask changes the fields set in u.
func (s *TaskStore) UpdateTask(ctx context.Context, pageID string, u TaskUpdate) (Task, error) {
	if u.Empty() {
		return Task{}, fmt.Errorf("update task %s: at least one property must be provided", pageID)
	}
	props := map[string]any{}
	if u.Title != nil {
		props[taskPropName] = titleProp(*u.Title)
	}
	if u.Due != nil {
		props[taskPropDate] = dateProp(s.clock.FormatDate(*u.Due))
	}
	if u.Priority != nil {
		props[taskPropPriority] = selectProp(string(*u.Priority))
	}
	if u.Status != nil {
		props[taskPropStatus] = statusProp(string(*u.Status))
	}
	p, err := s.notion.UpdatePage(ctx, pageID, props)
	if err != nil {
		return Task{}, fmt.Errorf("update task %s: %w", pageID, err)
	}
	return s.taskFromPage(p), nil
}

// DeleteTask archives a task page.
func (s *TaskStore) DeleteTask(ctx context.Context, pageID string) error {
	if err := s.notion.ArchivePage(ctx, pageID); err != nil {
		return fmt.Errorf("delete task %s: %w", pageID, err)
	}
	slog.Info("Task archived", "page_id", pageID)
	return nil
}
