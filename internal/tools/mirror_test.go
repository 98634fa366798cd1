package tools

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorhub/mirrorhub/internal/mirror"
)

type fakeTasks struct {
	tasks   []mirror.Task
	updated map[string]mirror.TaskUpdate
	created []mirror.NewTask
	parents []string
	deleted []string
}

func (f *fakeTasks) Tasks(context.Context, time.Time) ([]mirror.Task, error) { return f.tasks, nil }

func (f *fakeTasks) CreateTask(_ context.Context, t mirror.NewTask) (mirror.Task, error) {
	f.created = append(f.created, t)
	return mirror.Task{ID: "new", Title: t.Title}, nil
}

func (f *fakeTasks) CreateSubtask(_ context.Context, projectID string, t mirror.NewTask) (mirror.Task, error) {
	f.parents = append(f.parents, projectID)
	f.created = append(f.created, t)
	return mirror.Task{ID: "new-sub", Title: t.Title, ParentID: projectID}, nil
}

func (f *fakeTasks) CreateProjectWithSubtask(_ context.Context, p, c mirror.NewTask) (mirror.Task, mirror.Task, error) {
	f.created = append(f.created, p, c)
	return mirror.Task{ID: "p", Title: p.Title}, mirror.Task{ID: "c", Title: c.Title, ParentID: "p"}, nil
}

func (f *fakeTasks) UpdateTask(_ context.Context, id string, u mirror.TaskUpdate) (mirror.Task, error) {
	if f.updated == nil {
		f.updated = map[string]mirror.TaskUpdate{}
	}
	f.updated[id] = u
	return mirror.Task{ID: id, Title: "updated"}, nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeHabits struct {
	set []string
}

func (f *fakeHabits) Habits(context.Context) ([]mirror.Habit, error) {
	return []mirror.Habit{
		{ID: "row", Name: "☀️ Stretch", Property: "☀️ Stretch ", Group: "☀️ Morning"},
		{ID: "row", Name: "🌙 Read", Property: "🌙 Read", Group: "🌙 Evening", Done: true},
	}, nil
}

func (f *fakeHabits) SetHabitDone(_ context.Context, pageID, property string, done bool) error {
	f.set = append(f.set, pageID+"|"+property)
	return nil
}

type fakeCalendar struct {
	events  []mirror.Event
	created []string
	deleted []string
	updates []mirror.EventUpdate
}

func (f *fakeCalendar) Events(context.Context, time.Time, time.Time) ([]mirror.Event, error) {
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, summary string, start, end time.Time) (mirror.Event, error) {
	f.created = append(f.created, summary)
	return mirror.Event{ID: "ev-new", Summary: summary, Start: start, End: end}, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, calID, id string, u mirror.EventUpdate) (mirror.Event, error) {
	f.updates = append(f.updates, u)
	return mirror.Event{ID: id, CalendarID: calID}, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, calID, id string) error {
	f.deleted = append(f.deleted, calID+"/"+id)
	return nil
}

type fakeCloset struct{}

func (fakeCloset) Items(_ context.Context, category string, limit int) ([]mirror.ClosetItem, error) {
	items := []mirror.ClosetItem{
		{ID: "shirt-page", Name: "Linen shirt", Category: "Tops", Color: "White"},
		{ID: "jeans-page", Name: "Blue jeans", Category: "Pants", Color: "Blue"},
		{ID: "scarf-page", Name: "Silk scarf", Category: "Accessories", Color: "Blue"},
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

type fakeOutfits struct {
	saved []mirror.OutfitSuggestion
}

func (f *fakeOutfits) SaveOutfitSuggestion(_ context.Context, date string, items []string) (mirror.OutfitSuggestion, error) {
	s := mirror.OutfitSuggestion{ID: int64(len(f.saved) + 1), Date: date, Items: items}
	f.saved = append(f.saved, s)
	return s, nil
}

func (f *fakeOutfits) OutfitSuggestions(context.Context, string, int) ([]mirror.OutfitSuggestion, error) {
	return f.saved, nil
}

type mirrorFixture struct {
	registry *Registry
	conf     *recordingConfirmer
	tasks    *fakeTasks
	habits   *fakeHabits
	calendar *fakeCalendar
	outfits  *fakeOutfits
}

func newMirrorFixture(t *testing.T, approve bool) *mirrorFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	due := time.Date(2024, 4, 30, 0, 0, 0, 0, loc)
	f := &mirrorFixture{
		registry: newTestRegistry(),
		conf:     &recordingConfirmer{approve: approve},
		tasks: &fakeTasks{tasks: []mirror.Task{
			{ID: "rent-page", Title: "Pay rent", Due: &due, Status: mirror.StatusNotStarted, Priority: mirror.PriorityHigh},
			{ID: "talk-page", Title: "Conference talk", Children: []mirror.Task{
				{ID: "slides-page", Title: "Draft slides", ParentID: "talk-page"},
			}},
		}},
		habits: &fakeHabits{},
		calendar: &fakeCalendar{events: []mirror.Event{
			{ID: "standup", CalendarID: "work", Summary: "Standup", Start: due.Add(9 * time.Hour), End: due.Add(9*time.Hour + 15*time.Minute)},
		}},
		outfits: &fakeOutfits{},
	}
	err = RegisterMirrorTools(f.registry, MirrorDeps{
		Clock:     mirror.NewFixedClock(loc, time.Date(2024, 5, 1, 8, 0, 0, 0, loc)),
		Tasks:     f.tasks,
		Habits:    f.habits,
		Calendar:  f.calendar,
		Closet:    fakeCloset{},
		Outfits:   f.outfits,
		Confirmer: f.conf,
	})
	require.NoError(t, err)
	return f
}

func (f *mirrorFixture) call(t *testing.T, name string, params map[string]any) (any, error) {
	t.Helper()
	return f.registry.Dispatch(context.Background(), name, params)
}

var readOnlyTools = []string{
	"events_between", "events_on", "get_active_tasks", "get_current_datetime", "get_daily_habits",
	"get_time_zone", "get_todays_events", "list_outfit_suggestions", "query_closet", "tasks_on_or_before",
}

var mutatingTools = []string{
	"create_calendar_event", "create_new_project_with_subtask", "create_outfit_suggestion",
	"create_project_or_task_standalone", "create_subtask_with_project_id", "delete_event",
	"delete_task", "update_event", "update_habit_status", "update_task",
}

func TestMirrorToolTiers(t *testing.T) {
	f := newMirrorFixture(t, true)
	var ro, mut []string
	for _, tool := range f.registry.List() {
		if tool.Tier() == TierMutating {
			mut = append(mut, tool.Name())
			assert.True(t, isGated(tool), tool.Name())
		} else {
			ro = append(ro, tool.Name())
		}
	}
	sort.Strings(ro)
	sort.Strings(mut)
	assert.Equal(t, readOnlyTools, ro)
	assert.Equal(t, mutatingTools, mut)
}

func TestReadOnlyToolsNeverAskForConfirmation(t *testing.T) {
	f := newMirrorFixture(t, false)
	args := map[string]map[string]any{
		"events_between":     {"start_date": "2024-05-01", "end_date": "2024-05-03"},
		"events_on":          {"date": "2024-05-01"},
		"tasks_on_or_before": {"on_or_before_date": "2024-05-01"},
		"query_closet":       {"category": "Tops", "top_k": float64(2)},
	}
	for _, name := range readOnlyTools {
		_, err := f.call(t, name, args[name])
		require.NoError(t, err, name)
	}
	assert.Empty(t, f.conf.prompts)
}

func TestTaskListingAssignsDisplayIDs(t *testing.T) {
	f := newMirrorFixture(t, true)
	out, err := f.call(t, "get_active_tasks", nil)
	require.NoError(t, err)

	tasks := out.(map[string]any)["tasks"].([]map[string]any)
	require.Len(t, tasks, 2)
	assert.Equal(t, "1", tasks[0]["task_id"])
	assert.Equal(t, "2024-04-30T00:00:00-04:00", tasks[0]["due"])
	assert.Equal(t, "2", tasks[1]["task_id"])
	subtasks := tasks[1]["subtasks"].([]map[string]any)
	assert.Equal(t, "3", subtasks[0]["task_id"])
	assert.NotContains(t, tasks[0], "id")
}

func TestUpdateTaskResolvesDisplayID(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "get_active_tasks", nil)
	require.NoError(t, err)

	_, err = f.call(t, "update_task", map[string]any{"task_id": "1", "status": "Done"})
	require.NoError(t, err)

	require.Len(t, f.conf.prompts, 1)
	assert.Equal(t, "Update tasks (Pay rent): Update task: id 1; params: - - Done -", f.conf.prompts[0])
	require.Contains(t, f.tasks.updated, "rent-page")
	assert.Equal(t, mirror.StatusDone, *f.tasks.updated["rent-page"].Status)
}

func TestRelistingDuringApprovalKeepsApprovedTask(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "get_active_tasks", nil)
	require.NoError(t, err)

	// Another caller lists a different set of tasks while the human decides,
	// so display id "1" now names "Buy milk".
	f.conf.waiting = func() {
		f.tasks.tasks = []mirror.Task{{ID: "milk-page", Title: "Buy milk"}}
		_, err := f.call(t, "get_active_tasks", nil)
		require.NoError(t, err)
	}

	out, err := f.call(t, "delete_task", map[string]any{"task_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Delete task: Pay rent"}, f.conf.prompts)
	assert.Equal(t, []string{"rent-page"}, f.tasks.deleted)
	assert.Equal(t, "Pay rent", out.(map[string]any)["deleted_task"])
}

func TestRelistingDuringApprovalKeepsApprovedOutfit(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "query_closet", map[string]any{"query": "blue"})
	require.NoError(t, err)

	f.conf.waiting = func() {
		_, err := f.call(t, "query_closet", map[string]any{"category": "Tops"})
		require.NoError(t, err)
	}

	_, err = f.call(t, "create_outfit_suggestion", map[string]any{"date": "2024-05-02", "outfit_items": []any{"1"}})
	require.NoError(t, err)
	assert.Equal(t, "Suggest outfit for 2024-05-02: Blue jeans", f.conf.prompts[0])
	require.Len(t, f.outfits.saved, 1)
	assert.Equal(t, []string{"jeans-page"}, f.outfits.saved[0].Items)
}

func TestUpdateTaskNeedsAField(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "get_active_tasks", nil)
	require.NoError(t, err)

	_, err = f.call(t, "update_task", map[string]any{"task_id": "1"})
	require.ErrorIs(t, err, ErrInvalidArguments)
	assert.Empty(t, f.conf.prompts)
}

func TestUnknownDisplayIDIsInvalid(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "delete_task", map[string]any{"task_id": "9"})
	require.ErrorIs(t, err, ErrInvalidArguments)
	assert.Empty(t, f.conf.prompts)
	assert.Empty(t, f.tasks.deleted)
}

func TestCreateSubtaskUnderListedProject(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "get_active_tasks", nil)
	require.NoError(t, err)

	_, err = f.call(t, "create_subtask_with_project_id", map[string]any{
		"project_id":   "2",
		"child_title":  "Book venue",
		"due_date_iso": "2024-05-03",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"talk-page"}, f.tasks.parents)
	assert.Equal(t, "Create new child task: Book venue under project with id: 2 with due date 2024-05-03, status -, priority -", f.conf.prompts[0])
}

func TestCreateTaskRejectsBadEnum(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "create_project_or_task_standalone", map[string]any{
		"title": "x", "due_date_iso": "2024-05-03", "priority": "Urgent", "status": "Done",
	})
	require.ErrorIs(t, err, ErrInvalidArguments)
	assert.Empty(t, f.tasks.created)
}

func TestDeniedEventDeletionDoesNotDelete(t *testing.T) {
	f := newMirrorFixture(t, false)
	_, err := f.call(t, "get_todays_events", nil)
	require.NoError(t, err)

	_, err = f.call(t, "delete_event", map[string]any{"event_id": "1"})
	require.ErrorIs(t, err, ErrActionRejected)
	assert.Equal(t, []string{"Delete event: Standup"}, f.conf.prompts)
	assert.Empty(t, f.calendar.deleted)
}

func TestConfirmedEventDeletion(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "events_on", map[string]any{"date": "2024-05-01"})
	require.NoError(t, err)

	out, err := f.call(t, "delete_event", map[string]any{"event_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"work/standup"}, f.calendar.deleted)
	assert.Equal(t, "Success", out.(map[string]any)["status"])
}

func TestCreateEventPrompt(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "create_calendar_event", map[string]any{
		"description": "Dinner", "start_iso": "2024-05-01T19:00:00", "end_iso": "2024-05-01T21:00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "Create new event: Dinner from 2024-05-01T19:00:00 to 2024-05-01T21:00:00.", f.conf.prompts[0])
	assert.Equal(t, []string{"Dinner"}, f.calendar.created)

	_, err = f.call(t, "create_calendar_event", map[string]any{
		"description": "Dinner", "start_iso": "tonight", "end_iso": "2024-05-01T21:00:00",
	})
	require.ErrorIs(t, err, ErrInvalidArguments)
}

func TestUpdateHabitUsesTrackerColumn(t *testing.T) {
	f := newMirrorFixture(t, true)
	_, err := f.call(t, "get_daily_habits", nil)
	require.NoError(t, err)

	_, err = f.call(t, "update_habit_status", map[string]any{"habit_id": "1", "done": true})
	require.NoError(t, err)
	assert.Equal(t, "Update habits (☀️ Stretch): Mark as true.", f.conf.prompts[0])
	assert.Equal(t, []string{"row|☀️ Stretch "}, f.habits.set)
}

func TestOutfitSuggestionFromClosetIDs(t *testing.T) {
	f := newMirrorFixture(t, true)
	out, err := f.call(t, "query_closet", map[string]any{"query": "blue"})
	require.NoError(t, err)
	items := out.(map[string]any)["clothing_items"].([]map[string]any)
	require.Len(t, items, 2)
	assert.Equal(t, "Blue jeans", items[0]["name"])

	_, err = f.call(t, "create_outfit_suggestion", map[string]any{
		"date": "2024-05-02", "outfit_items": []any{"1", "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Suggest outfit for 2024-05-02: Blue jeans, Silk scarf", f.conf.prompts[0])
	require.Len(t, f.outfits.saved, 1)
	assert.Equal(t, []string{"jeans-page", "scarf-page"}, f.outfits.saved[0].Items)
	assert.Equal(t, "2024-05-02", f.outfits.saved[0].Date)

	_, err = f.call(t, "create_outfit_suggestion", map[string]any{"date": "2024-05-02", "outfit_items": []any{"7"}})
	require.ErrorIs(t, err, ErrInvalidArguments)
}

func TestRegisterMirrorToolsSkipsMissingBackends(t *testing.T) {
	loc := time.UTC
	r := newTestRegistry()
	require.NoError(t, RegisterMirrorTools(r, MirrorDeps{Clock: mirror.NewFixedClock(loc, time.Now())}))
	names := make([]string, 0)
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"get_current_datetime", "get_time_zone"}, names)

	require.Error(t, RegisterMirrorTools(newTestRegistry(), MirrorDeps{}))
}
