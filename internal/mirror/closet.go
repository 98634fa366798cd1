package mirror

import (
	"context"
	"fmt"
)

// ClosetStore reads the Notion closet inventory.
type ClosetStore struct {
	notion *NotionClient
	dbID   string
}

// NewClosetStore creates a closet store on databaseID.
func NewClosetStore(notion *NotionClient, databaseID string) *ClosetStore {
	return &ClosetStore{notion: notion, dbID: databaseID}
}

// Items lists clothing, most recently added first. An empty category
// returns every category; a non-positive limit returns everything.
func (s *ClosetStore) Items(ctx context.Context, category string, limit int) ([]ClosetItem, error) {
	query := map[string]any{
		"sorts": []any{map[string]any{"timestamp": "created_time", "direction": "descending"}},
	}
	if category != "" {
		query["filter"] = map[string]any{"property": "Category", "select": map[string]any{"equals": category}}
	}
	pages, err := s.notion.QueryDatabase(ctx, s.dbID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query closet: %w", err)
	}
	items := make([]ClosetItem, 0, len(pages))
	for _, p := range pages {
		items = append(items, ClosetItem{
			ID:          p.ID,
			Name:        p.Properties["Item Name"].PlainText(),
			Category:    p.Properties["Category"].PlainText(),
			Color:       p.Properties["Color"].PlainText(),
			Brand:       p.Properties["Brand"].PlainText(),
			Description: p.Properties["Description"].PlainText(),
			ImageURL:    p.Properties["Image"].FileURL(),
			AddedAt:     p.CreatedTime,
		})
	}
	return items, nil
}
