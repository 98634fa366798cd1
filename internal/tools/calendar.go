package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/mirror"
)

func (m *mirrorTools) registerCalendarTools(r *Registry) {
	r.Register(&Func{
		ToolName:        "events_on",
		ToolDescription: "Returns the user's calendar events occurring on the specified date.",
		Schema: objectSchema(map[string]any{
			"date": stringProp("ISO date, e.g. 2024-05-01"),
		}, "date"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			start, err := m.date(params, "date")
			if err != nil {
				return nil, err
			}
			return m.listEvents(ctx, start, m.clock.AddDays(start, 1))
		},
	})
	r.Register(&Func{
		ToolName:        "events_between",
		ToolDescription: "Returns the user's calendar events starting and ending between the specified dates.",
		Schema: objectSchema(map[string]any{
			"start_date": stringProp("ISO date or datetime"),
			"end_date":   stringProp("ISO date or datetime"),
		}, "start_date", "end_date"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			start, err := m.date(params, "start_date")
			if err != nil {
				return nil, err
			}
			end, err := m.date(params, "end_date")
			if err != nil {
				return nil, err
			}
			if end.Before(start) {
				return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidArguments)
			}
			return m.listEvents(ctx, start, end)
		},
	})
	r.Register(&Func{
		ToolName:        "get_todays_events",
		ToolDescription: "Returns the user's calendar events for today's date.",
		Schema:          objectSchema(map[string]any{}),
		Fn: func(ctx context.Context, _ map[string]any) (any, error) {
			return m.todaysEvents(ctx)
		},
	})

	m.gate(r, &Func{
		ToolName:        "create_calendar_event",
		ToolDescription: "Creates a new calendar event with description, starting and ending at the specified ISO datetimes.",
		Schema: objectSchema(map[string]any{
			"description": stringProp("Event title"),
			"start_iso":   stringProp("Start, ISO datetime"),
			"end_iso":     stringProp("End, ISO datetime"),
		}, "description", "start_iso", "end_iso"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			start, err := m.date(params, "start_iso")
			if err != nil {
				return nil, err
			}
			end, err := m.date(params, "end_iso")
			if err != nil {
				return nil, err
			}
			ev, err := m.calendar.CreateEvent(ctx, GetString(params, "description", ""), start, end)
			if err != nil {
				return nil, err
			}
			return m.afterEventChange(ctx, map[string]any{"new_event": m.renderEvent(ev, "")})
		},
	}, Template("Create new event: {description} from {start_iso} to {end_iso}."))

	m.gate(r, &Func{
		ToolName:        "update_event",
		ToolDescription: "Updates one or more details of the event with the specified id.",
		Schema: objectSchema(map[string]any{
			"event_id":    stringProp("event_id as listed by the event tools"),
			"name":        stringProp("New title"),
			"start_iso":   stringProp("New start, ISO datetime"),
			"end_iso":     stringProp("New end, ISO datetime"),
			"location":    stringProp("New location"),
			"description": stringProp("New description"),
		}, "event_id"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			entry, err := m.resolve(params, KindEvents, "event_id")
			if err != nil {
				return nil, err
			}
			u := mirror.EventUpdate{
				Summary:     optionalString(params, "name"),
				Location:    optionalString(params, "location"),
				Description: optionalString(params, "description"),
			}
			if u.Start, err = m.optionalDate(params, "start_iso"); err != nil {
				return nil, err
			}
			if u.End, err = m.optionalDate(params, "end_iso"); err != nil {
				return nil, err
			}
			ev, err := m.calendar.UpdateEvent(ctx, entry.Extra["calendar_id"], entry.ID, u)
			if err != nil {
				return nil, err
			}
			return m.afterEventChange(ctx, map[string]any{"updated_event": m.renderEvent(ev, "")})
		},
	}, m.withName(KindEvents, "event_id", requireAny(
		Template("Update event id: {event_id}"),
		"name", "start_iso", "end_iso", "location", "description",
	)))

	m.gate(r, &Func{
		ToolName:        "delete_event",
		ToolDescription: "Deletes the calendar event with the specified id.",
		Schema: objectSchema(map[string]any{
			"event_id": stringProp("event_id as listed by the event tools"),
		}, "event_id"),
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			displayID := GetString(params, "event_id", "")
			entry, err := m.resolve(params, KindEvents, "event_id")
			if err != nil {
				return nil, err
			}
			if err := m.calendar.DeleteEvent(ctx, entry.Extra["calendar_id"], entry.ID); err != nil {
				return nil, err
			}
			return m.afterEventChange(ctx, map[string]any{"deleted_event_id": displayID})
		},
	}, m.named(KindEvents, "event_id", "Delete event: %s"))
}

func (m *mirrorTools) todaysEvents(ctx context.Context) (map[string]any, error) {
	today := m.clock.Today()
	return m.listEvents(ctx, today, m.clock.AddDays(today, 1))
}

func (m *mirrorTools) listEvents(ctx context.Context, start, end time.Time) (map[string]any, error) {
	events, err := m.calendar.Events(ctx, start, end)
	if err != nil {
		return nil, err
	}
	entries := make([]CacheEntry, 0, len(events))
	out := make([]map[string]any, 0, len(events))
	for i, ev := range events {
		entries = append(entries, CacheEntry{ID: ev.ID, Name: ev.Summary, Extra: map[string]string{"calendar_id": ev.CalendarID}})
		out = append(out, m.renderEvent(ev, DisplayID(i)))
	}
	m.cache.Replace(KindEvents, entries)
	return map[string]any{"events": out}, nil
}

func (m *mirrorTools) renderEvent(ev mirror.Event, displayID string) map[string]any {
	item := map[string]any{
		"title": ev.Summary,
		"start": m.clock.FormatDate(ev.Start),
		"end":   m.clock.FormatDate(ev.End),
	}
	if displayID != "" {
		item["event_id"] = displayID
	}
	if ev.AllDay {
		item["all_day"] = true
	}
	if ev.Location != "" {
		item["location"] = ev.Location
	}
	if ev.Description != "" {
		item["description"] = ev.Description
	}
	return item
}

func (m *mirrorTools) afterEventChange(ctx context.Context, extra map[string]any) (any, error) {
	listing, err := m.todaysEvents(ctx)
	if err != nil {
		slog.Warn("Failed to refresh events after change", "error", err)
		return success(extra), nil
	}
	extra["events"] = listing["events"]
	return success(extra), nil
}
