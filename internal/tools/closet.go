package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mirrorhub/mirrorhub/internal/mirror"
)

func (m *mirrorTools) registerClosetTools(r *Registry) {
	r.Register(&Func{
		ToolName: "query_closet",
		ToolDescription: "Gets up to 'top_k' items from the closet inventory, most recently added first. " +
			"If 'category' is set, only that clothing category is returned. " +
			"If 'query' is set, only items whose name, color, brand or description contain it are returned.",
		Schema: objectSchema(map[string]any{
			"query":    stringProp("Free text filter"),
			"top_k":    integerProp("Maximum number of items"),
			"category": enumProp("Clothing category", mirror.ClosetCategories),
		}),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			query := strings.ToLower(strings.TrimSpace(GetString(params, "query", "")))
			topK := GetInt(params, "top_k", 0)
			if topK < 0 {
				return nil, fmt.Errorf("%w: top_k must not be negative", ErrInvalidArguments)
			}
			limit := topK
			if query != "" {
				// Filter locally, so fetch the whole category.
				limit = 0
			}
			items, err := m.closet.Items(ctx, GetString(params, "category", ""), limit)
			if err != nil {
				return nil, err
			}

			entries := make([]CacheEntry, 0, len(items))
			out := make([]map[string]any, 0, len(items))
			for _, it := range items {
				if query != "" && !closetMatches(it, query) {
					continue
				}
				if topK > 0 && len(out) >= topK {
					break
				}
				entries = append(entries, CacheEntry{ID: it.ID, Name: it.Name})
				out = append(out, map[string]any{
					"item_id":     DisplayID(len(out)),
					"name":        it.Name,
					"category":    it.Category,
					"color":       it.Color,
					"brand":       it.Brand,
					"description": it.Description,
					"url":         it.ImageURL,
				})
			}
			m.cache.Replace(KindCloset, entries)
			return success(map[string]any{"clothing_items": out}), nil
		},
	})
}

func closetMatches(it mirror.ClosetItem, query string) bool {
	for _, field := range []string{it.Name, it.Color, it.Brand, it.Description, it.Category} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func (m *mirrorTools) registerOutfitTools(r *Registry) {
	r.Register(&Func{
		ToolName:        "list_outfit_suggestions",
		ToolDescription: "Lists outfit suggestions for the given ISO date and the following days. Defaults to today.",
		Schema: objectSchema(map[string]any{
			"from_date": stringProp("ISO date"),
		}),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			from := m.clock.Today()
			d, err := m.optionalDate(params, "from_date")
			if err != nil {
				return nil, err
			}
			if d != nil {
				from = *d
			}
			suggestions, err := m.outfits.OutfitSuggestions(ctx, from.Format("2006-01-02"), 7)
			if err != nil {
				return nil, err
			}
			return success(map[string]any{"outfit_suggestions": suggestions}), nil
		},
	})

	m.gate(r, &Func{
		ToolName: "create_outfit_suggestion",
		ToolDescription: "Create an outfit suggestion for the given ISO date. This lets the user see the suggestion on the dashboard without committing to the outfit. " +
			"An outfit is a list of clothing items, denoted by the item_id values returned by query_closet.",
		Schema: objectSchema(map[string]any{
			"date":         stringProp("ISO date"),
			"outfit_items": stringArrayProp("item_id values from query_closet"),
		}, "date", "outfit_items"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			date, err := m.date(params, "date")
			if err != nil {
				return nil, err
			}
			ids, _, err := m.resolveOutfit(params)
			if err != nil {
				return nil, err
			}
			s, err := m.outfits.SaveOutfitSuggestion(ctx, date.Format("2006-01-02"), ids)
			if err != nil {
				return nil, err
			}
			return success(map[string]any{"outfit_info": s}), nil
		},
	}, func(params map[string]any) (string, error) {
		_, names, err := m.resolveOutfit(params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Suggest outfit for %s: %s", GetString(params, "date", ""), strings.Join(names, ", ")), nil
	})
}

func (m *mirrorTools) resolveOutfit(params map[string]any) (ids, names []string, err error) {
	entries, ok := bound[[]CacheEntry](params, "outfit_items")
	if !ok {
		items := GetStringSlice(params, "outfit_items")
		if len(items) == 0 {
			return nil, nil, fmt.Errorf("%w: outfit_items must not be empty", ErrInvalidArguments)
		}
		for _, displayID := range items {
			entry, err := m.cache.Lookup(KindCloset, displayID)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, entry)
		}
		bind(params, "outfit_items", entries)
	}
	for _, e := range entries {
		ids = append(ids, e.ID)
		names = append(names, e.Name)
	}
	return ids, names, nil
}
