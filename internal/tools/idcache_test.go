package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDCache(t *testing.T) {
	c := NewIDCache()
	c.Replace(KindTasks, []CacheEntry{{ID: "page-a", Name: "A"}, {ID: "page-b", Name: "B"}})

	e, err := c.Lookup(KindTasks, "2")
	require.NoError(t, err)
	assert.Equal(t, "page-b", e.ID)

	_, err = c.Lookup(KindTasks, "3")
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = c.Lookup(KindEvents, "1")
	require.ErrorIs(t, err, ErrInvalidArguments)

	// A new listing replaces the ids of its kind only.
	c.Replace(KindTasks, []CacheEntry{{ID: "page-c", Name: "C"}})
	e, err = c.Lookup(KindTasks, "1")
	require.NoError(t, err)
	assert.Equal(t, "page-c", e.ID)
	_, err = c.Lookup(KindTasks, "2")
	require.ErrorIs(t, err, ErrInvalidArguments)
}
