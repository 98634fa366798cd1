package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYorkClock(t *testing.T) *Clock {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return NewFixedClock(loc, time.Date(2024, 5, 1, 14, 30, 0, 0, loc))
}

func TestNewClockDefaultsTimezone(t *testing.T) {
	c, err := NewClock("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, c.Location().String())

	_, err = NewClock("Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestClockToday(t *testing.T) {
	c := newYorkClock(t)
	assert.Equal(t, "2024-05-01T00:00:00-04:00", c.FormatDate(c.Today()))
	assert.Equal(t, "2024-05-01T14:30:00-04:00", c.FormatDate(c.Now()))
}

func TestNormalizeDate(t *testing.T) {
	c := newYorkClock(t)
	cases := []struct {
		in   string
		want string
	}{
		{"2024-05-03", "2024-05-03T00:00:00-04:00"},
		{"2024-05-03T09:15:00", "2024-05-03T09:15:00-04:00"},
		{"2024-05-03 09:15", "2024-05-03T09:15:00-04:00"},
		{"2024-05-03T09:15:00Z", "2024-05-03T05:15:00-04:00"},
		{"2024-12-03", "2024-12-03T00:00:00-05:00"},
		{"  2024-05-03T09:15:00.000-07:00 ", "2024-05-03T12:15:00-04:00"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := c.NormalizeDate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.FormatDate(got))
		})
	}

	for _, bad := range []string{"", "tomorrow", "2024-13-45", "05/03/2024"} {
		_, err := c.NormalizeDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddDaysAcrossDST(t *testing.T) {
	c := newYorkClock(t)
	start, err := c.NormalizeDate("2024-03-09")
	require.NoError(t, err)
	next := c.AddDays(start, 1)
	assert.Equal(t, "2024-03-10T00:00:00-05:00", c.FormatDate(next))
	assert.Equal(t, "2024-03-11T00:00:00-04:00", c.FormatDate(c.AddDays(start, 2)))
}
