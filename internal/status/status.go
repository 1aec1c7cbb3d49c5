// Package status implements the Status Publisher (C11, §4.11):
// per-project fan-out of progress events to subscribed sinks,
// best-effort and at-least-once, with no replay for late subscribers.
package status

import (
	"sync"
	"time"
)

// State is the coarse status of a project's report generation.
type State string

const (
	StateGenerating State = "generating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateNotStarted State = "not_started"
)

// Phase marks which pipeline stage emitted the event.
type Phase string

const (
	PhaseValidation       Phase = "validation"
	PhaseSnapshotCapture  Phase = "snapshot_capture"
	PhaseDataCollection   Phase = "data_collection"
	PhaseAnalysis         Phase = "analysis"
	PhaseReportGeneration Phase = "report_generation"
	PhaseCompleted        Phase = "completed"
)

// Event is one status update, published at phase boundaries.
type Event struct {
	ProjectID                 string
	Status                    State
	Phase                     Phase
	Progress                  int // 0-100
	Message                   string
	Timestamp                 time.Time
	EstimatedCompletionTime   *time.Time
	CompetitorSnapshotsStatus string
	DataCompletenessScore     *float64
	Error                     string
}

// Sink receives published events for a subscription. Write returning
// an error causes the subscription to be dropped.
type Sink interface {
	Write(e Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e Event) error

func (f SinkFunc) Write(e Event) error { return f(e) }

// Subscription identifies one subscribe() call; pass it to Unsubscribe.
type Subscription struct {
	id        int64
	projectID string
}

type subscriber struct {
	id   int64
	sink Sink
	mu   sync.Mutex // serializes writes to preserve per-sink FIFO
}

// Publisher fans out Events to subscribers of each project.
type Publisher struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[string][]*subscriber // projectID -> subscribers
}

// New builds an empty Publisher.
func New() *Publisher {
	return &Publisher{subs: make(map[string][]*subscriber)}
}

// Subscribe registers sink for projectID's events. Only events
// published after this call are delivered (no replay, §4.11).
func (p *Publisher) Subscribe(projectID string, sink Sink) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	sub := &subscriber{id: p.nextID, sink: sink}
	p.subs[projectID] = append(p.subs[projectID], sub)
	return Subscription{id: sub.id, projectID: projectID}
}

// Unsubscribe removes a previously registered subscription.
func (p *Publisher) Unsubscribe(sub Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subs[sub.projectID]
	for i, s := range subs {
		if s.id == sub.id {
			p.subs[sub.projectID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish fans e out to every sink subscribed to e.ProjectID. Delivery
// is best-effort: a sink whose Write errors is dropped from future
// delivery. Per-sink delivery is serialized to preserve FIFO ordering.
func (p *Publisher) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	p.mu.RLock()
	subs := append([]*subscriber(nil), p.subs[e.ProjectID]...)
	p.mu.RUnlock()

	var dead []int64
	for _, sub := range subs {
		sub.mu.Lock()
		err := sub.sink.Write(e)
		sub.mu.Unlock()
		if err != nil {
			dead = append(dead, sub.id)
		}
	}

	if len(dead) > 0 {
		p.dropSubscribers(e.ProjectID, dead)
	}
}

func (p *Publisher) dropSubscribers(projectID string, ids []int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dead := make(map[int64]bool, len(ids))
	for _, id := range ids {
		dead[id] = true
	}

	var kept []*subscriber
	for _, s := range p.subs[projectID] {
		if !dead[s.id] {
			kept = append(kept, s)
		}
	}
	p.subs[projectID] = kept
}
