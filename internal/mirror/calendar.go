package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarService reads events from several Google calendars and writes
// new events to one of them.
type CalendarService struct {
	svc             *calendar.Service
	calendarIDs     []string
	eventCalendarID string
	clock           *Clock
}

// NewCalendarService authenticates with a service-account key file.
func NewCalendarService(ctx context.Context, credentialsPath string, calendarIDs []string, eventCalendarID string, clock *Clock) (*CalendarService, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("calendar credentials: %w", ErrNotConfigured)
	}
	return NewCalendarServiceWithOptions(ctx, calendarIDs, eventCalendarID, clock,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(calendar.CalendarEventsScope),
	)
}

// NewCalendarServiceWithOptions builds the service from explicit client options.
func NewCalendarServiceWithOptions(ctx context.Context, calendarIDs []string, eventCalendarID string, clock *Clock, opts ...option.ClientOption) (*CalendarService, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}
	return &CalendarService{
		svc:             svc,
		calendarIDs:     calendarIDs,
		eventCalendarID: eventCalendarID,
		clock:           clock,
	}, nil
}

// Events returns events overlapping [start, end) across every configured
// calendar, ordered by start time.
func (c *CalendarService) Events(ctx context.Context, start, end time.Time) ([]Event, error) {
	var events []Event
	for _, calID := range c.calendarIDs {
		call := c.svc.Events.List(calID).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime")
		err := call.Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				events = append(events, c.fromAPI(calID, item))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list events of %s: %w", calID, err)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// CreateEvent adds an event to the event calendar.
func (c *CalendarService) CreateEvent(ctx context.Context, summary string, start, end time.Time) (Event, error) {
	if c.eventCalendarID == "" {
		return Event{}, fmt.Errorf("event calendar: %w", ErrNotConfigured)
	}
	body := &calendar.Event{
		Summary: summary,
		Start:   c.dateTime(start),
		End:     c.dateTime(end),
	}
	created, err := c.svc.Events.Insert(c.eventCalendarID, body).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("create event %q: %w", summary, err)
	}
	slog.Info("Calendar event created", "event_id", created.Id, "link", created.HtmlLink)
	return c.fromAPI(c.eventCalendarID, created), nil
}

// UpdateEvent changes the fields set in u.
func (c *CalendarService) UpdateEvent(ctx context.Context, calendarID, eventID string, u EventUpdate) (Event, error) {
	if u.Empty() {
		return Event{}, fmt.Errorf("update event %s: at least one property must be provided", eventID)
	}
	body, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}
	if u.Summary != nil {
		body.Summary = *u.Summary
	}
	if u.Start != nil {
		body.Start = c.dateTime(*u.Start)
	}
	if u.End != nil {
		body.End = c.dateTime(*u.End)
	}
	if u.Location != nil {
		body.Location = *u.Location
	}
	if u.Description != nil {
		body.Description = *u.Description
	}
	updated, err := c.svc.Events.Update(calendarID, eventID, body).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("update event %s: %w", eventID, err)
	}
	return c.fromAPI(calendarID, updated), nil
}

// DeleteEvent removes an event.
func (c *CalendarService) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	slog.Info("Calendar event deleted", "event_id", eventID, "calendar_id", calendarID)
	return nil
}

func (c *CalendarService) dateTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.In(c.clock.Location()).Format(time.RFC3339),
		TimeZone: c.clock.Location().String(),
	}
}

func (c *CalendarService) parseWhen(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.In(c.clock.Location()), false
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation("2006-01-02", dt.Date, c.clock.Location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (c *CalendarService) fromAPI(calendarID string, e *calendar.Event) Event {
	start, allDay := c.parseWhen(e.Start)
	end, _ := c.parseWhen(e.End)
	summary := e.Summary
	if summary == "" {
		summary = "No Title"
	}
	return Event{
		ID:          e.Id,
		CalendarID:  calendarID,
		Summary:     summary,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Location:    e.Location,
		Description: e.Description,
		Link:        e.HtmlLink,
	}
}
