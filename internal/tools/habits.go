package tools

import (
	"context"
	"fmt"
	"log/slog"
)

func (m *mirrorTools) registerHabitTools(r *Registry) {
	r.Register(&Func{
		ToolName:        "get_daily_habits",
		ToolDescription: "Returns the completion status of habits for today's date.",
		Schema:          objectSchema(map[string]any{}),
		Fn: func(ctx context.Context, _ map[string]any) (any, error) {
			return m.listHabits(ctx)
		},
	})

	m.gate(r, &Func{
		ToolName:        "update_habit_status",
		ToolDescription: "Updates the current day's completion status of the habit with the specified id.",
		Schema: objectSchema(map[string]any{
			"habit_id": stringProp("habit_id as listed by get_daily_habits"),
			"done":     booleanProp("Whether the habit is done today"),
		}, "habit_id", "done"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			entry, err := m.resolve(params, KindHabits, "habit_id")
			if err != nil {
				return nil, err
			}
			if err := m.habits.SetHabitDone(ctx, entry.ID, entry.Extra["property"], GetBool(params, "done", false)); err != nil {
				return nil, err
			}
			out := map[string]any{}
			if listing, err := m.listHabits(ctx); err == nil {
				out["habits"] = listing["habits"]
			} else {
				slog.Warn("Failed to refresh habits after change", "error", err)
			}
			return success(out), nil
		},
	}, m.withName(KindHabits, "habit_id", Template("Mark as {done}.")))
}

func (m *mirrorTools) listHabits(ctx context.Context) (map[string]any, error) {
	habits, err := m.habits.Habits(ctx)
	if err != nil {
		return nil, fmt.Errorf("habits: %w", err)
	}
	entries := make([]CacheEntry, 0, len(habits))
	out := make([]map[string]any, 0, len(habits))
	for i, h := range habits {
		entries = append(entries, CacheEntry{ID: h.ID, Name: h.Name, Extra: map[string]string{"property": h.Property}})
		out = append(out, map[string]any{
			"habit_id":  DisplayID(i),
			"name":      h.Name,
			"timeofday": h.Group,
			"done":      h.Done,
		})
	}
	m.cache.Replace(KindHabits, entries)
	return map[string]any{"habits": out}, nil
}
