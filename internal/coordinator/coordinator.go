// Package coordinator implements the Async Report Coordinator (C10,
// §4.10): a two-path (immediate vs. queued-with-fallback) report
// pipeline driver with a single deterministic AsyncResult outcome
// shape. This is the hardest component in the system (§4.10).
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rivalscope/corewatch/internal/analysis"
	"github.com/rivalscope/corewatch/internal/collector"
	"github.com/rivalscope/corewatch/internal/completeness"
	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/metrics"
	"github.com/rivalscope/corewatch/internal/queue"
	"github.com/rivalscope/corewatch/internal/report"
	"github.com/rivalscope/corewatch/internal/status"
	"github.com/rivalscope/corewatch/internal/store"
)

// Method is the processing path that produced an AsyncResult.
type Method string

const (
	MethodImmediate Method = "immediate"
	MethodQueued    Method = "queued"
	MethodFallback  Method = "fallback"
	MethodFailed    Method = "failed"
)

// AsyncResult is the coordinator's single deterministic outcome shape
// (§4.10).
type AsyncResult struct {
	Success                 bool
	ProcessingMethod        Method
	ReportID                string
	TaskID                  string
	ProcessingTime          time.Duration
	TimeoutExceeded         bool
	FallbackUsed            bool
	QueueScheduled          bool
	RetryCount              int
	EstimatedQueueCompletion *time.Time
	Error                   string
}

// Options configures one processInitialReport call.
type Options struct {
	Timeout         time.Duration
	Priority        queue.Priority
	FallbackToQueue bool
	Template        report.Template
	Format          string
}

// Config mirrors CoordinatorConfig for the fields the coordinator needs directly.
type Config struct {
	MaxConcurrentProcessing int
	ImmediateTimeout        time.Duration
	ImmediateReserve        time.Duration
	FallbackToQueue         bool
	GracefulDegradation     bool
	QueueRetryAttempts      int
	QueueRetryBackoff       time.Duration
	QueueEstimatedSlot      time.Duration
	FallbackEnqueueDelay    time.Duration

	MinimumForFull       float64
	CompletenessMinimum  float64
	CollectionOpts       collector.Options
	AnalysisConfig       analysis.Config
	Features             config.FeatureConfig
}

// Coordinator drives C6->C7->C8->C9 with admission control and queue fallback.
type Coordinator struct {
	repo      store.Repository
	checker   *completeness.Checker
	collector *collector.Collector
	stage     *analysis.Stage
	composer  *report.Composer
	publisher *status.Publisher
	metrics   *metrics.Collector
	q         queue.Queue
	cfg       Config
	logger    *slog.Logger

	inFlight      atomic.Int64
	projectInFlight sync.Map // projectID -> *atomic.Int64
}

// InFlightForProject reports how many immediate-path pipelines are
// currently running for projectID (§4.10's per-project in-flight set).
func (c *Coordinator) InFlightForProject(projectID string) int64 {
	v, ok := c.projectInFlight.Load(projectID)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (c *Coordinator) projectCounter(projectID string) *atomic.Int64 {
	v, _ := c.projectInFlight.LoadOrStore(projectID, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// New builds a Coordinator. Queue workers start only when
// StartQueueWorkers is called.
func New(
	repo store.Repository,
	checker *completeness.Checker,
	coll *collector.Collector,
	stage *analysis.Stage,
	composer *report.Composer,
	publisher *status.Publisher,
	m *metrics.Collector,
	q queue.Queue,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	c := &Coordinator{
		repo: repo, checker: checker, collector: coll, stage: stage, composer: composer,
		publisher: publisher, metrics: m, q: q, cfg: cfg, logger: logger.With("component", "coordinator"),
	}
	return c
}

// StartQueueWorkers launches workers processing the durable queue with
// the longer queue-path timeout and bounded retries (§4.10 step 5).
func (c *Coordinator) StartQueueWorkers(ctx context.Context, workers int) {
	c.q.Process(ctx, workers, c.handleQueuedTask)
}

func (c *Coordinator) handleQueuedTask(ctx context.Context, t *queue.Task) error {
	projectID := t.ProjectID
	opts, _ := t.Payload.(Options)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.ImmediateTimeout * 2
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	correlationID := uuid.NewString()
	c.metrics.RecordStart(qctx, correlationID)

	result, err := c.generateReport(qctx, projectID, opts, correlationID)
	outcome := metrics.OutcomeQueued
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	c.metrics.RecordComplete(qctx, correlationID, projectID, outcome)

	if err != nil {
		return err
	}
	_ = result
	return nil
}

// ProcessInitialReport runs the two-path strategy of §4.10 for projectID.
func (c *Coordinator) ProcessInitialReport(ctx context.Context, projectID string, opts Options) *AsyncResult {
	start := time.Now()
	correlationID := uuid.NewString()
	c.metrics.RecordStart(ctx, correlationID)

	c.publish(projectID, status.PhaseValidation, status.StateGenerating, 0, "admission check")

	maxConcurrent := c.cfg.MaxConcurrentProcessing
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	// Step 1: Admission.
	if c.inFlight.Load() >= int64(maxConcurrent) && c.cfg.GracefulDegradation {
		return c.enqueue(ctx, projectID, opts, correlationID, start, false)
	}

	c.inFlight.Add(1)
	projectCounter := c.projectCounter(projectID)
	projectCounter.Add(1)
	admitted := true
	release := func() {
		c.inFlight.Add(-1)
		projectCounter.Add(-1)
	}
	defer func() {
		if admitted {
			release()
		}
	}()

	// Step 2: Immediate path races against T_immediate.
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.ImmediateTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
	}
	reserve := c.cfg.ImmediateReserve
	if reserve <= 0 {
		reserve = 5 * time.Second
	}
	pipelineTimeout := timeout - reserve
	if pipelineTimeout <= 0 {
		pipelineTimeout = timeout
	}

	ictx, cancel := context.WithTimeout(ctx, pipelineTimeout)
	defer cancel()

	type pipelineOutcome struct {
		reportID string
		err      error
	}
	resultCh := make(chan pipelineOutcome, 1)

	go func() {
		reportID, err := c.generateReport(ictx, projectID, opts, correlationID)
		resultCh <- pipelineOutcome{reportID: reportID, err: err}
	}()

	select {
	case out := <-resultCh:
		if out.err == nil {
			c.metrics.RecordComplete(ctx, correlationID, projectID, metrics.OutcomeImmediate)
			c.publish(projectID, status.PhaseCompleted, status.StateCompleted, 100, "report completed")
			return &AsyncResult{
				Success: true, ProcessingMethod: MethodImmediate, ReportID: out.reportID,
				ProcessingTime: time.Since(start),
			}
		}
		// Step 3: fail/timeout on the immediate path.
		admitted = false
		release()
		return c.handleImmediateFailure(ctx, projectID, opts, correlationID, start, out.err, false)

	case <-time.After(pipelineTimeout):
		admitted = false
		release()
		return c.handleImmediateFailure(ctx, projectID, opts, correlationID, start, errImmediateTimeout, true)
	}
}

func (c *Coordinator) handleImmediateFailure(ctx context.Context, projectID string, opts Options, correlationID string, start time.Time, cause error, timedOut bool) *AsyncResult {
	c.metrics.RecordComplete(ctx, correlationID, projectID, metrics.OutcomeFailed)

	fallbackToQueue := opts.FallbackToQueue
	if !fallbackToQueue {
		fallbackToQueue = c.cfg.FallbackToQueue
	}
	if !fallbackToQueue {
		c.publish(projectID, status.PhaseCompleted, status.StateFailed, 0, "generation failed", withErr(cause))
		return &AsyncResult{
			Success: false, ProcessingMethod: MethodFailed, ProcessingTime: time.Since(start),
			TimeoutExceeded: timedOut, Error: cause.Error(),
		}
	}

	delay := c.cfg.FallbackEnqueueDelay
	if delay <= 0 {
		delay = time.Second
	}
	time.Sleep(delay)

	result := c.enqueue(ctx, projectID, boostPriority(opts), correlationID, start, true)
	result.TimeoutExceeded = timedOut
	return result
}

// enqueue implements §4.10 step 4: push to the durable queue, boosting
// priority on fallback, and return the queued/fallback AsyncResult
// with an ETA computed from queue position.
func (c *Coordinator) enqueue(ctx context.Context, projectID string, opts Options, correlationID string, start time.Time, fallback bool) *AsyncResult {
	taskID := fmt.Sprintf("%s:generate_report", projectID)
	task := queue.Task{
		ID: taskID, ProjectID: projectID, TaskType: "generate_report",
		Payload: opts, Priority: opts.Priority,
		MaxAttempts: c.cfg.QueueRetryAttempts, Backoff: c.cfg.QueueRetryBackoff,
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = 3
	}
	if task.Backoff <= 0 {
		task.Backoff = 2 * time.Second
	}

	if err := c.q.Enqueue(task); err != nil {
		c.metrics.RecordComplete(ctx, correlationID, projectID, metrics.OutcomeFailed)
		return &AsyncResult{Success: false, ProcessingMethod: MethodFailed, ProcessingTime: time.Since(start), Error: err.Error()}
	}

	slot := c.cfg.QueueEstimatedSlot
	if slot <= 0 {
		slot = 120 * time.Second
	}
	position := c.q.Len()
	eta := time.Now().Add(time.Duration(position) * slot)

	method := MethodQueued
	outcome := metrics.OutcomeQueued
	if fallback {
		method = MethodFallback
		outcome = metrics.OutcomeFallback
	}
	c.metrics.RecordComplete(ctx, correlationID, projectID, outcome)
	c.publish(projectID, status.PhaseCompleted, status.StateGenerating, 0, "queued for background processing")

	return &AsyncResult{
		Success: true, ProcessingMethod: method, TaskID: taskID,
		ProcessingTime: time.Since(start), FallbackUsed: fallback, QueueScheduled: true,
		EstimatedQueueCompletion: &eta,
	}
}

func boostPriority(opts Options) Options {
	opts.Priority = queue.PriorityHigh
	return opts
}

// generateReport runs C6->C7->C8->C9 and persists the result, marking
// the Report COMPLETED only once a non-empty ReportVersion has been
// written — the store enforces I1 independently.
func (c *Coordinator) generateReport(ctx context.Context, projectID string, opts Options, correlationID string) (string, error) {
	c.publish(projectID, status.PhaseValidation, status.StateGenerating, 10, "checking data completeness")
	compResult, err := c.checker.Score(ctx, projectID, completeness.Options{MinimumScore: c.cfg.CompletenessMinimum})
	if err != nil {
		return "", err
	}

	c.publish(projectID, status.PhaseDataCollection, status.StateGenerating, 30, "collecting data", withScore(compResult.OverallScore))
	collection, err := c.collector.Collect(ctx, projectID, c.cfg.CollectionOpts)
	if err != nil {
		return "", err
	}

	c.publish(projectID, status.PhaseAnalysis, status.StateGenerating, 60, "running analysis")
	var a *analysis.Analysis
	comparativeEnabled := c.cfg.Features.ShouldUseComparativeReports(projectID)
	if comparativeEnabled && collection.CompletenessScore >= c.cfg.MinimumForFull {
		a = c.stage.Analyze(ctx, analysis.Input{
			Product: collection.Product, Competitors: collection.Competitors, Config: c.cfg.AnalysisConfig,
		})
	}

	c.publish(projectID, status.PhaseReportGeneration, status.StateGenerating, 85, "composing report")
	tmpl := opts.Template
	if tmpl.ID == "" {
		tmpl = report.StandardTemplate()
	}
	rendered := c.composer.Render(a, collection, tmpl, opts.Format)

	rep, err := c.repo.CreateReport(ctx, domain.Report{ProjectID: projectID, ProductID: collection.Product.ID})
	if err != nil {
		return "", err
	}

	content := report.Content(rendered)
	if _, err := c.repo.CreateReportVersion(ctx, domain.ReportVersion{
		ReportID: rep.ID, Content: content, Sections: rendered.Sections, Metadata: rendered.Metadata,
	}); err != nil {
		_ = c.repo.UpdateReportStatus(ctx, rep.ID, domain.ReportFailed)
		return "", err
	}

	if err := c.repo.UpdateReportStatus(ctx, rep.ID, domain.ReportCompleted); err != nil {
		return "", err
	}

	return rep.ID, nil
}

func (c *Coordinator) publish(projectID string, phase status.Phase, state status.State, progress int, message string, opts ...func(*status.Event)) {
	e := status.Event{ProjectID: projectID, Phase: phase, Status: state, Progress: progress, Message: message}
	for _, o := range opts {
		o(&e)
	}
	c.publisher.Publish(e)
}

func withScore(score float64) func(*status.Event) {
	return func(e *status.Event) { e.DataCompletenessScore = &score }
}

func withErr(err error) func(*status.Event) {
	return func(e *status.Event) { e.Error = err.Error() }
}
