package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/mirror"
)

// TaskBackend is the task database.
type TaskBackend interface {
	Tasks(ctx context.Context, onOrBefore time.Time) ([]mirror.Task, error)
	CreateTask(ctx context.Context, t mirror.NewTask) (mirror.Task, error)
	CreateSubtask(ctx context.Context, projectID string, t mirror.NewTask) (mirror.Task, error)
	CreateProjectWithSubtask(ctx context.Context, project, child mirror.NewTask) (mirror.Task, mirror.Task, error)
	UpdateTask(ctx context.Context, pageID string, u mirror.TaskUpdate) (mirror.Task, error)
	DeleteTask(ctx context.Context, pageID string) error
}

// HabitBackend is the habit tracker.
type HabitBackend interface {
	Habits(ctx context.Context) ([]mirror.Habit, error)
	SetHabitDone(ctx context.Context, pageID, property string, done bool) error
}

// CalendarBackend is the user's calendars.
type CalendarBackend interface {
	Events(ctx context.Context, start, end time.Time) ([]mirror.Event, error)
	CreateEvent(ctx context.Context, summary string, start, end time.Time) (mirror.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, u mirror.EventUpdate) (mirror.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// ClosetBackend is the closet inventory.
type ClosetBackend interface {
	Items(ctx context.Context, category string, limit int) ([]mirror.ClosetItem, error)
}

// OutfitBackend stores outfit suggestions.
type OutfitBackend interface {
	SaveOutfitSuggestion(ctx context.Context, date string, items []string) (mirror.OutfitSuggestion, error)
	OutfitSuggestions(ctx context.Context, fromDate string, limit int) ([]mirror.OutfitSuggestion, error)
}

// MirrorDeps wires the mirror tools. Tools whose backend is nil are not registered.
type MirrorDeps struct {
	Clock     *mirror.Clock
	Tasks     TaskBackend
	Habits    HabitBackend
	Calendar  CalendarBackend
	Closet    ClosetBackend
	Outfits   OutfitBackend
	Confirmer Confirmer
	Cache     *IDCache
}

type mirrorTools struct {
	clock     *mirror.Clock
	tasks     TaskBackend
	habits    HabitBackend
	calendar  CalendarBackend
	closet    ClosetBackend
	outfits   OutfitBackend
	confirmer Confirmer
	cache     *IDCache
}

// RegisterMirrorTools registers the read-only tools and the gated mutating
// tools for every configured backend.
func RegisterMirrorTools(r *Registry, d MirrorDeps) error {
	if d.Clock == nil {
		return fmt.Errorf("mirror tools: clock is required")
	}
	if d.Confirmer == nil {
		slog.Warn("No confirmer configured, every mutating tool call will be rejected")
		d.Confirmer = AlwaysDeny
	}
	if d.Cache == nil {
		d.Cache = NewIDCache()
	}
	m := &mirrorTools{
		clock:     d.Clock,
		tasks:     d.Tasks,
		habits:    d.Habits,
		calendar:  d.Calendar,
		closet:    d.Closet,
		outfits:   d.Outfits,
		confirmer: d.Confirmer,
		cache:     d.Cache,
	}

	m.registerTimeTools(r)
	if m.tasks != nil {
		m.registerTaskTools(r)
	}
	if m.habits != nil {
		m.registerHabitTools(r)
	}
	if m.calendar != nil {
		m.registerCalendarTools(r)
	}
	if m.closet != nil {
		m.registerClosetTools(r)
	}
	if m.outfits != nil {
		m.registerOutfitTools(r)
	}
	return nil
}

// gate registers a mutating tool behind the confirmation gate.
func (m *mirrorTools) gate(r *Registry, f *Func, describe Describer) {
	f.RiskTier = TierMutating
	r.Register(Gate(f, describe, m.confirmer))
}

func (m *mirrorTools) registerTimeTools(r *Registry) {
	r.Register(&Func{
		ToolName:        "get_time_zone",
		ToolDescription: "Gets the user's local time zone.",
		Schema:          objectSchema(map[string]any{}),
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"time_zone": m.clock.Location().String()}, nil
		},
	})
	r.Register(&Func{
		ToolName:        "get_current_datetime",
		ToolDescription: "Gets the current date and time in the user's local time zone.",
		Schema:          objectSchema(map[string]any{}),
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"datetime": m.clock.FormatDate(m.clock.Now())}, nil
		},
	})
}

// date parses a date argument, reporting bad input as ErrInvalidArguments.
func (m *mirrorTools) date(params map[string]any, key string) (time.Time, error) {
	t, err := m.clock.NormalizeDate(GetString(params, key, ""))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, key, err)
	}
	return t, nil
}

// optionalDate is date for parameters that may be omitted.
func (m *mirrorTools) optionalDate(params map[string]any, key string) (*time.Time, error) {
	if optionalString(params, key) == nil {
		return nil, nil
	}
	t, err := m.date(params, key)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// withName prefixes a description with the display name of a cached item,
// matching "Update tasks (Pay rent): ...".
func (m *mirrorTools) withName(kind, idParam string, describe Describer) Describer {
	return func(params map[string]any) (string, error) {
		entry, err := m.resolve(params, kind, idParam)
		if err != nil {
			return "", err
		}
		desc, err := describe(params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Update %s (%s): %s", kind, entry.Name, desc), nil
	}
}

// resolve maps the display id in params[idParam] to its cached item. The
// first resolution of a call is bound into params, so a gated tool acts on
// the item named in the prompt even if a later listing reuses the id.
func (m *mirrorTools) resolve(params map[string]any, kind, idParam string) (CacheEntry, error) {
	if entry, ok := bound[CacheEntry](params, idParam); ok {
		return entry, nil
	}
	entry, err := m.cache.Lookup(kind, GetString(params, idParam, ""))
	if err != nil {
		return CacheEntry{}, err
	}
	bind(params, idParam, entry)
	return entry, nil
}

// requireAny fails unless at least one of keys is supplied.
func requireAny(describe Describer, keys ...string) Describer {
	return func(params map[string]any) (string, error) {
		for _, k := range keys {
			if v, ok := params[k]; ok && v != nil && v != "" {
				return describe(params)
			}
		}
		return "", fmt.Errorf("%w: at least one of %v must be provided for update", ErrInvalidArguments, keys)
	}
}

func success(extra map[string]any) map[string]any {
	out := map[string]any{"status": "Success"}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
