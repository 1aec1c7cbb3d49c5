package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRefresher struct {
	mu      sync.Mutex
	calls   int32
	block   chan struct{}
	failAll bool
}

func (r *countingRefresher) Refresh(ctx context.Context, projectID string) error {
	atomic.AddInt32(&r.calls, 1)
	if r.block != nil {
		<-r.block
	}
	if r.failAll {
		return assert.AnError
	}
	return nil
}

func TestScheduleAdvancesNextRunMonotonically(t *testing.T) {
	repo := store.NewMemoryRepository(discardLogger())
	repo.SeedProject(domain.Project{ID: "proj-1", Status: domain.ProjectActive}, nil, nil)
	refresher := &countingRefresher{}
	s := New(repo, refresher, discardLogger())

	scheduleID, err := s.Schedule(context.Background(), "proj-1", domain.FrequencyDaily, "")
	require.NoError(t, err)

	require.NoError(t, s.Trigger(context.Background(), scheduleID))

	schedules, err := repo.ListReportSchedules(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	first := schedules[0].NextRun
	assert.True(t, first.After(schedules[0].LastRun), "I3: nextRun must stay ahead of lastRun after a firing")

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Trigger(context.Background(), scheduleID))

	schedules, err = repo.ListReportSchedules(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.False(t, schedules[0].NextRun.Before(first), "I3: nextRun must never move backwards across firings")
}

func TestFireDropsOverlappingRuns(t *testing.T) {
	repo := store.NewMemoryRepository(discardLogger())
	repo.SeedProject(domain.Project{ID: "proj-1", Status: domain.ProjectActive}, nil, nil)
	refresher := &countingRefresher{block: make(chan struct{})}
	s := New(repo, refresher, discardLogger())

	scheduleID, err := s.Schedule(context.Background(), "proj-1", domain.FrequencyDaily, "")
	require.NoError(t, err)

	go s.Trigger(context.Background(), scheduleID)
	time.Sleep(20 * time.Millisecond) // let the first fire acquire the per-entry lock

	require.NoError(t, s.Trigger(context.Background(), scheduleID), "a dropped overlapping fire returns nil, not an error")

	close(refresher.block)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&refresher.calls), "maxConcurrentJobs=1: an overlapping fire must be dropped, not queued")
}

func TestParseFrequencyRoundTripsAllSupportedFrequencies(t *testing.T) {
	for _, freq := range []domain.ScrapingFrequency{
		domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyBiweekly,
		domain.FrequencyMonthly, domain.FrequencyCustom,
	} {
		got, err := ParseFrequency(FrequencyToString(freq))
		require.NoError(t, err)
		assert.Equal(t, freq, got, "parseFrequency(frequencyToString(f)) must equal f (§8)")
	}
}

func TestParseFrequencyIsCaseInsensitive(t *testing.T) {
	got, err := ParseFrequency("daily")
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyDaily, got)
}

func TestParseFrequencyRejectsUnknownValue(t *testing.T) {
	_, err := ParseFrequency("FORTNIGHTLY")
	assert.Error(t, err, "an unrecognized frequency string must be rejected, not silently cast")
}

func TestRepeatedFailuresDegradeSchedule(t *testing.T) {
	repo := store.NewMemoryRepository(discardLogger())
	repo.SeedProject(domain.Project{ID: "proj-1", Status: domain.ProjectActive}, nil, nil)
	refresher := &countingRefresher{failAll: true}
	s := New(repo, refresher, discardLogger())

	scheduleID, err := s.Schedule(context.Background(), "proj-1", domain.FrequencyDaily, "")
	require.NoError(t, err)

	for i := 0; i < maxConsecutiveFailures; i++ {
		require.NoError(t, s.Trigger(context.Background(), scheduleID))
	}

	schedules, err := repo.ListReportSchedules(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, domain.ScheduleDegraded, schedules[0].Status, "5 consecutive failures must move the schedule to DEGRADED, not disable it")
}
