package mirror

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// HabitStore reads and ticks the Notion habit tracker. The tracker holds
// one row per day with a checkbox column per habit; column names carry the
// emoji of their group.
type HabitStore struct {
	notion *NotionClient
	dbID   string
}

// NewHabitStore creates a habit store on databaseID.
func NewHabitStore(notion *NotionClient, databaseID string) *HabitStore {
	return &HabitStore{notion: notion, dbID: databaseID}
}

// Habits returns the checkboxes of the latest tracker row, grouped in
// HabitGroups order and by name within a group.
func (s *HabitStore) Habits(ctx context.Context) ([]Habit, error) {
	pages, err := s.notion.QueryDatabase(ctx, s.dbID, map[string]any{
		"sorts": []any{map[string]any{"property": "Day", "direction": "descending"}},
	}, 1)
	if err != nil {
		return nil, fmt.Errorf("query habits: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	row := pages[0]

	var habits []Habit
	for _, g := range HabitGroups {
		var group []Habit
		for name, prop := range row.Properties {
			if prop.Type != "checkbox" || !strings.Contains(name, g.Emoji) {
				continue
			}
			group = append(group, Habit{
				ID:       row.ID,
				Name:     strings.TrimSpace(name),
				Property: name,
				Group:    g.Label(),
				Done:     prop.Checkbox,
			})
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })
		habits = append(habits, group...)
	}
	return habits, nil
}

// SetHabitDone ticks or clears one habit checkbox.
func (s *HabitStore) SetHabitDone(ctx context.Context, pageID, property string, done bool) error {
	if _, err := s.notion.UpdatePage(ctx, pageID, map[string]any{property: checkboxProp(done)}); err != nil {
		return fmt.Errorf("update habit %q: %w", property, err)
	}
	return nil
}
