// Package scraper implements the Scraper Worker (C2, §4.2): capture a
// single URL, retry transient failures with backoff, and persist
// exactly one Snapshot per call regardless of outcome.
package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rivalscope/corewatch/internal/browser"
	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
	"github.com/rivalscope/corewatch/internal/store"
)

// Worker runs captures against a Collector and records the outcome
// through a store.SnapshotStore, honoring the retry/backoff policy of
// CaptureConfig.
type Worker struct {
	collector browser.Collector
	snapshots store.SnapshotStore
	cfg       config.CaptureConfig
	logger    *slog.Logger
}

// New builds a Worker.
func New(collector browser.Collector, snapshots store.SnapshotStore, cfg config.CaptureConfig, logger *slog.Logger) *Worker {
	return &Worker{
		collector: collector,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.With("component", "scraper_worker"),
	}
}

// Attempt records one try within a capture, for telemetry/logging.
type Attempt struct {
	Number   int
	Kind     errkind.Kind
	Duration time.Duration
}

// Result is the outcome of CaptureAndRecord: the persisted Snapshot
// plus the per-attempt trail that produced it.
type Result struct {
	Snapshot *domain.Snapshot
	Attempts []Attempt
}

// CaptureAndRecord fetches url, retrying transient failures up to
// CaptureConfig.MaxRetries with exponential backoff capped at
// RetryBackoffCap, and persists exactly one Snapshot for owner
// regardless of whether capture ultimately succeeded (§4.2: "a
// snapshot is written for every call, success or failure").
func (w *Worker) CaptureAndRecord(ctx context.Context, owner domain.OwnerRef, projectID, url string, correlationID string) (*Result, error) {
	timeout := w.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var (
		capture  *browser.Capture
		lastErr  error
		attempts []Attempt
	)

	for attempt := 1; attempt <= w.cfg.MaxRetries+1; attempt++ {
		attemptStart := time.Now()
		cctx, cancel := context.WithTimeout(ctx, timeout)
		c, err := w.collector.Capture(cctx, url, browser.Options{
			Timeout:              timeout,
			BlockedResourceTypes: w.cfg.BlockedResourceTypes,
		})
		cancel()

		kind := errkind.As(err)
		attempts = append(attempts, Attempt{Number: attempt, Kind: kind, Duration: time.Since(attemptStart)})

		if err == nil {
			capture = c
			lastErr = nil
			break
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if !kind.Retryable() || attempt > w.cfg.MaxRetries {
			break
		}

		w.logger.Warn("capture attempt failed, retrying",
			"url", url, "attempt", attempt, "kind", kind, "correlation_id", correlationID)

		if err := sleepBackoff(ctx, attempt, w.cfg.RetryBackoffBase, w.cfg.RetryBackoffCap); err != nil {
			lastErr = err
			break
		}
	}

	success := lastErr == nil
	errMsg := ""
	meta := domain.SnapshotMetadata{URL: url}

	if success {
		meta.HTML = capture.HTML
		meta.Title = extractTitle(capture.HTML)
		meta.Text = extractText(capture.HTML)
		meta.HTTPStatus = capture.HTTPStatus
		meta.ContentLength = capture.ContentLength
		meta.DurationMS = capture.DurationMS
	} else {
		errMsg = lastErr.Error()
		w.logger.Error("capture failed after retries",
			"url", url, "attempts", len(attempts), "error", lastErr, "correlation_id", correlationID)
	}

	snap, err := w.snapshots.PutSnapshot(ctx, owner, projectID, meta, success, errMsg)
	if err != nil {
		return nil, errkind.New("scraper", errkind.KindStorageUnavailable, correlationID, err)
	}

	return &Result{Snapshot: snap, Attempts: attempts}, nil
}

func sleepBackoff(ctx context.Context, attempt int, base, cap time.Duration) error {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 10 * time.Second
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > cap {
		delay = cap
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2 + 1))
	delay = delay/2 + jitter

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func extractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
