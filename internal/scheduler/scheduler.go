// Package scheduler implements the Scheduler (C5, §4.5): translates a
// Project's configured frequency into a cron trigger, fires refresh
// jobs at most once concurrently per project, and supports manual
// triggers. Grounded on the robfig/cron/v3 + semaphore-bounded firing
// pattern used elsewhere in the retrieved corpus (scheduler.go), and
// on the teacher's worker-pool idiom in internal/engine/scheduler.go.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/store"
)

// Refresher is invoked on every firing (scheduled or manual) to
// refresh a project's competitor and product data (§4.5: "asks C7 to
// refresh project data").
type Refresher interface {
	Refresh(ctx context.Context, projectID string) error
}

const maxConsecutiveFailures = 5

// entry tracks the runtime state of one project's schedule.
type entry struct {
	scheduleID string
	projectID  string
	cronID     cron.EntryID
	running    sync.Mutex // maxConcurrentJobs=1: a locked mutex means "fire in progress, drop this one"
}

// Scheduler fires refresh jobs per the cron mapping in §4.5.
type Scheduler struct {
	cron      *cron.Cron
	repo      store.Repository
	refresher Refresher
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry // keyed by scheduleID
}

// New builds a Scheduler. Start must be called before schedules fire.
func New(repo store.Repository, refresher Refresher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		repo:      repo,
		refresher: refresher,
		logger:    logger.With("component", "scheduler"),
		entries:   make(map[string]*entry),
	}
}

// Start begins firing registered schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron loop, letting in-flight jobs finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// FrequencyToString renders freq as its wire/CLI string form.
// ScrapingFrequency is already string-typed, but this keeps callers from
// depending on that representation directly and gives ParseFrequency a
// single inverse to round-trip against (§8).
func FrequencyToString(freq domain.ScrapingFrequency) string {
	return string(freq)
}

// ParseFrequency validates s against the supported ScrapingFrequency
// values, rejecting anything cronExpr would otherwise fail on later
// with a less direct error. Matching is case-insensitive so CLI input
// like "daily" and stored values like "DAILY" both work.
func ParseFrequency(s string) (domain.ScrapingFrequency, error) {
	switch strings.ToUpper(s) {
	case string(domain.FrequencyDaily):
		return domain.FrequencyDaily, nil
	case string(domain.FrequencyWeekly):
		return domain.FrequencyWeekly, nil
	case string(domain.FrequencyBiweekly):
		return domain.FrequencyBiweekly, nil
	case string(domain.FrequencyMonthly):
		return domain.FrequencyMonthly, nil
	case string(domain.FrequencyCustom):
		return domain.FrequencyCustom, nil
	default:
		return "", fmt.Errorf("scheduler: unknown frequency %q", s)
	}
}

// cronExpr maps a ScrapingFrequency to its cron expression (§4.5).
func cronExpr(freq domain.ScrapingFrequency, custom string) (string, error) {
	switch freq {
	case domain.FrequencyDaily:
		return "0 9 * * *", nil
	case domain.FrequencyWeekly:
		return "0 9 * * 1", nil
	case domain.FrequencyBiweekly:
		return "0 9 * * 1/2", nil
	case domain.FrequencyMonthly:
		return "0 9 1 * *", nil
	case domain.FrequencyCustom:
		if custom == "" {
			return "", fmt.Errorf("scheduler: CUSTOM frequency requires a cron expression")
		}
		return custom, nil
	default:
		return "", fmt.Errorf("scheduler: unknown frequency %q", freq)
	}
}

// Schedule registers a recurring job for projectID at the given
// frequency and returns its schedule id.
func (s *Scheduler) Schedule(ctx context.Context, projectID string, freq domain.ScrapingFrequency, customCron string) (string, error) {
	expr, err := cronExpr(freq, customCron)
	if err != nil {
		return "", err
	}

	sched, err := s.repo.UpsertReportSchedule(ctx, domain.ReportSchedule{
		ProjectID: projectID,
		Frequency: freq,
		Cron:      expr,
		Status:    domain.ScheduleActive,
	})
	if err != nil {
		return "", err
	}

	e := &entry{scheduleID: sched.ID, projectID: projectID}
	id, err := s.cron.AddFunc(expr, func() { s.fire(context.Background(), e) })
	if err != nil {
		return "", fmt.Errorf("scheduler: register cron job: %w", err)
	}
	e.cronID = id

	s.mu.Lock()
	s.entries[sched.ID] = e
	s.mu.Unlock()

	return sched.ID, nil
}

// StopSchedule removes a previously scheduled job.
func (s *Scheduler) StopSchedule(scheduleID string) {
	s.mu.Lock()
	e, ok := s.entries[scheduleID]
	if ok {
		delete(s.entries, scheduleID)
	}
	s.mu.Unlock()

	if ok {
		s.cron.Remove(e.cronID)
	}
}

// Update re-registers scheduleID's project under a new frequency.
func (s *Scheduler) Update(ctx context.Context, scheduleID, projectID string, newFreq domain.ScrapingFrequency, customCron string) (string, error) {
	s.StopSchedule(scheduleID)
	return s.Schedule(ctx, projectID, newFreq, customCron)
}

// Trigger fires scheduleID's project refresh immediately, out of band from its
// cron schedule, subject to the same maxConcurrentJobs=1 rule.
func (s *Scheduler) Trigger(ctx context.Context, scheduleID string) error {
	s.mu.Lock()
	e, ok := s.entries[scheduleID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown schedule %s", scheduleID)
	}
	s.fire(ctx, e)
	return nil
}

// fire runs one refresh for e's project, dropping overlapping fires
// per §4.5's maxConcurrentJobs=1, and advancing nextRun/lastRun per I3.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	if !e.running.TryLock() {
		s.logger.Warn("overlapping fire dropped", "schedule_id", e.scheduleID, "project_id", e.projectID)
		return
	}
	defer e.running.Unlock()

	logger := s.logger.With("schedule_id", e.scheduleID, "project_id", e.projectID)

	err := s.refresher.Refresh(ctx, e.projectID)
	s.recordFiring(ctx, e, err, logger)
}

// recordFiring advances I3's nextRun/lastRun bookkeeping and applies
// the DEGRADED transition after maxConsecutiveFailures consecutive
// failures (§4.5), without disabling the schedule.
func (s *Scheduler) recordFiring(ctx context.Context, e *entry, fireErr error, logger *slog.Logger) {
	schedules, err := s.repo.ListReportSchedules(ctx, e.projectID)
	if err != nil {
		logger.Error("failed to load schedule for bookkeeping", "error", err)
		return
	}

	var sched *domain.ReportSchedule
	for _, cand := range schedules {
		if cand.ID == e.scheduleID {
			sched = cand
			break
		}
	}
	if sched == nil {
		logger.Warn("schedule vanished before bookkeeping could run")
		return
	}

	spec, parseErr := cron.ParseStandard(sched.Cron)
	now := time.Now()
	sched.LastRun = now
	if parseErr == nil {
		sched.NextRun = spec.Next(now)
	}

	if fireErr != nil {
		sched.ConsecutiveFailures++
		logger.Error("scheduled firing failed", "error", fireErr, "consecutive_failures", sched.ConsecutiveFailures)
		if sched.ConsecutiveFailures >= maxConsecutiveFailures && sched.Status == domain.ScheduleActive {
			sched.Status = domain.ScheduleDegraded
			logger.Warn("schedule marked DEGRADED after consecutive failures", "threshold", maxConsecutiveFailures)
		}
	} else {
		sched.ConsecutiveFailures = 0
	}

	if _, err := s.repo.UpsertReportSchedule(ctx, *sched); err != nil {
		logger.Error("failed to persist schedule bookkeeping", "error", err)
	}
}
