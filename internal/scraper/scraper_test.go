package scraper

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/browser"
	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
	"github.com/rivalscope/corewatch/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCollector implements browser.Collector; failTimes calls return a
// retryable timeout error before finally succeeding (or failing forever
// when failTimes exceeds the caller's retry budget).
type fakeCollector struct {
	failTimes int32
	calls     int32
	fatal     bool // when true, the first (and only) error is non-retryable
}

func (f *fakeCollector) Capture(ctx context.Context, url string, opts browser.Options) (*browser.Capture, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.fatal {
		return nil, errkind.New("test", errkind.KindHTTP4xx, "", assertErr("not found"))
	}
	if n <= f.failTimes {
		return nil, errkind.New("test", errkind.KindTimeout, "", assertErr("timed out"))
	}
	return &browser.Capture{
		HTML:          "<html><head><title>Acme</title></head><body>hello world</body></html>",
		HTTPStatus:    200,
		ContentLength: 42,
		DurationMS:    10,
	}, nil
}

func (f *fakeCollector) Close() error { return nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newWorker(t *testing.T, c browser.Collector, cfg config.CaptureConfig) (*Worker, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository(discardLogger())
	return New(c, repo, cfg, discardLogger()), repo
}

func TestCaptureAndRecordSucceedsOnFirstTry(t *testing.T) {
	c := &fakeCollector{}
	w, _ := newWorker(t, c, config.CaptureConfig{MaxRetries: 2, RetryBackoffBase: time.Millisecond, RetryBackoffCap: 5 * time.Millisecond})

	owner := domain.NewProductOwner("product-1")
	result, err := w.CaptureAndRecord(context.Background(), owner, "project-1", "https://competitor.example.com", "corr-1")
	require.NoError(t, err)
	assert.True(t, result.Snapshot.CaptureSuccess)
	assert.Equal(t, "Acme", result.Snapshot.Metadata.Title)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, int32(1), c.calls)
}

func TestCaptureAndRecordRetriesTransientFailureThenSucceeds(t *testing.T) {
	c := &fakeCollector{failTimes: 2}
	w, _ := newWorker(t, c, config.CaptureConfig{MaxRetries: 3, RetryBackoffBase: time.Millisecond, RetryBackoffCap: 5 * time.Millisecond})

	owner := domain.NewProductOwner("product-1")
	result, err := w.CaptureAndRecord(context.Background(), owner, "project-1", "https://competitor.example.com", "corr-2")
	require.NoError(t, err)
	assert.True(t, result.Snapshot.CaptureSuccess)
	assert.Len(t, result.Attempts, 3, "two failed attempts then one success")
	assert.Equal(t, errkind.KindTimeout, result.Attempts[0].Kind)
	assert.Equal(t, errkind.KindTimeout, result.Attempts[1].Kind)
}

func TestCaptureAndRecordPersistsFailedSnapshotAfterExhaustingRetries(t *testing.T) {
	c := &fakeCollector{failTimes: 100}
	w, repo := newWorker(t, c, config.CaptureConfig{MaxRetries: 2, RetryBackoffBase: time.Millisecond, RetryBackoffCap: 5 * time.Millisecond})

	owner := domain.NewProductOwner("product-1")
	result, err := w.CaptureAndRecord(context.Background(), owner, "project-1", "https://competitor.example.com", "corr-3")
	require.NoError(t, err, "a capture failure is recorded as a failed snapshot, not returned as a worker error")
	assert.False(t, result.Snapshot.CaptureSuccess)
	assert.NotEmpty(t, result.Snapshot.ErrorMessage)
	assert.Len(t, result.Attempts, 3, "initial attempt plus MaxRetries retries, all failing")

	latest, err := repo.LatestSnapshot(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.False(t, latest.CaptureSuccess, "exactly one snapshot is still written on total failure (§4.2)")
}

func TestCaptureAndRecordDoesNotRetryNonRetryableFailure(t *testing.T) {
	c := &fakeCollector{fatal: true}
	w, _ := newWorker(t, c, config.CaptureConfig{MaxRetries: 5, RetryBackoffBase: time.Millisecond, RetryBackoffCap: 5 * time.Millisecond})

	owner := domain.NewProductOwner("product-1")
	result, err := w.CaptureAndRecord(context.Background(), owner, "project-1", "https://competitor.example.com", "corr-4")
	require.NoError(t, err)
	assert.False(t, result.Snapshot.CaptureSuccess)
	assert.Len(t, result.Attempts, 1, "a non-retryable kind (e.g. 4xx) fails fast without consuming the retry budget")
}
