package resolution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/domain"
)

func TestPutThenGetReturnsStoredConfidence(t *testing.T) {
	c := New(time.Hour, time.Minute)
	c.Put("competitor-1", "project-1", domain.ConfidenceHigh)

	entry, ok := c.Get("competitor-1", "project-1")
	require.True(t, ok)
	assert.Equal(t, domain.ConfidenceHigh, entry.Confidence)
	assert.Equal(t, "competitor-1", entry.CompetitorID)
	assert.Equal(t, "project-1", entry.ProjectID)
}

func TestGetMissingEntryReturnsFalse(t *testing.T) {
	c := New(time.Hour, time.Minute)
	_, ok := c.Get("nobody", "project-1")
	assert.False(t, ok)
}

func TestDistinctProjectsForSameCompetitorDoNotCollide(t *testing.T) {
	c := New(time.Hour, time.Minute)
	c.Put("competitor-1", "project-1", domain.ConfidenceHigh)
	c.Put("competitor-1", "project-2", domain.ConfidenceLow)

	a, ok := c.Get("competitor-1", "project-1")
	require.True(t, ok)
	assert.Equal(t, domain.ConfidenceHigh, a.Confidence)

	b, ok := c.Get("competitor-1", "project-2")
	require.True(t, ok)
	assert.Equal(t, domain.ConfidenceLow, b.Confidence)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(time.Hour, time.Minute)
	c.Put("competitor-1", "project-1", domain.ConfidenceLow)
	c.Invalidate("competitor-1", "project-1")

	_, ok := c.Get("competitor-1", "project-1")
	assert.False(t, ok)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New(20*time.Millisecond, 10*time.Millisecond)
	c.Put("competitor-1", "project-1", domain.ConfidenceMedium)

	require.Eventually(t, func() bool {
		_, ok := c.Get("competitor-1", "project-1")
		return !ok
	}, time.Second, 5*time.Millisecond, "entry must expire once its TTL elapses")
}
