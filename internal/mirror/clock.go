package mirror

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "America/New_York"

var dateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// naiveLayouts are accepted for datetimes without a zone, in order.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Clock resolves dates in the user's timezone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock loads tz. An empty tz selects DefaultTimezone.
func NewClock(tz string) (*Clock, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewFixedClock returns a clock frozen at now, for tests.
func NewFixedClock(loc *time.Location, now time.Time) *Clock {
	return &Clock{loc: loc, now: func() time.Time { return now }}
}

// Location returns the user's timezone.
func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current time in the user's timezone.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// Today returns local midnight of the current day.
func (c *Clock) Today() time.Time { return midnight(c.Now()) }

// AddDays moves t by n calendar days, keeping wall-clock time across DST changes.
func (c *Clock) AddDays(t time.Time, n int) time.Time {
	t = t.In(c.loc)
	return t.AddDate(0, 0, n)
}

// NormalizeDate parses user or model supplied dates. A bare YYYY-MM-DD
// means local midnight. Datetimes without an offset are taken as local.
func (c *Clock) NormalizeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if dateOnly.MatchString(s) {
		return time.ParseInLocation("2006-01-02", s, c.loc)
	}
	s = strings.Replace(s, " ", "T", 1)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(c.loc), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// FormatDate renders t as RFC3339 in the user's timezone.
func (c *Clock) FormatDate(t time.Time) string {
	return t.In(c.loc).Format(time.RFC3339)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
