// Package governor implements the Rate & Concurrency Governor (C3,
// §4.3): per-project and global concurrency caps, per-registered-domain
// throttling, daily/hourly budgets, and a per-domain circuit breaker.
// It is grounded on the teacher's internal/engine/scheduler.go
// domainThrottle + worker-pool pattern, generalized from a single
// politeness delay into the full governor contract.
package governor

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/errkind"
)

// Lease is held by a caller between Acquire and Release. It carries
// nothing but identity; Release uses its projectID to find the
// project's slot pool. Releasing the same Lease twice is not detected.
type Lease struct {
	projectID string
	domain    string
}

// Governor enforces C3's concurrency, throttle, budget, and
// circuit-breaker rules. The zero value is not usable; use New.
type Governor struct {
	cfg config.GovernorConfig

	globalSem chan struct{}

	mu           sync.Mutex
	projectSems  map[string]chan struct{}
	projectQueue map[string]int // FIFO depth per project, for fairness accounting

	domainMu  sync.Mutex
	lastFetch map[string]time.Time

	budgetMu    sync.Mutex
	dailyCount  map[string]int
	dailyReset  time.Time
	hourlyCount map[string]int
	hourlyReset time.Time

	circuitMu sync.Mutex
	circuits  map[string]*circuitState
}

type circuitState struct {
	windowStart time.Time
	attempts    int
	failures    int
	openUntil   time.Time
}

// New builds a Governor from GovernorConfig.
func New(cfg config.GovernorConfig) *Governor {
	global := cfg.MaxConcurrentGlobal
	if global <= 0 {
		global = 20
	}
	now := time.Now()
	return &Governor{
		cfg:          cfg,
		globalSem:    make(chan struct{}, global),
		projectSems:  make(map[string]chan struct{}),
		projectQueue: make(map[string]int),
		lastFetch:    make(map[string]time.Time),
		dailyCount:   make(map[string]int),
		dailyReset:   now.Add(24 * time.Hour),
		hourlyCount:  make(map[string]int),
		hourlyReset:  now.Add(time.Hour),
		circuits:     make(map[string]*circuitState),
	}
}

func (g *Governor) projectSem(projectID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	sem, ok := g.projectSems[projectID]
	if !ok {
		n := g.cfg.MaxConcurrentPerProject
		if n <= 0 {
			n = 5
		}
		sem = make(chan struct{}, n)
		g.projectSems[projectID] = sem
	}
	return sem
}

// RegisteredDomain returns the eTLD+1 of rawURL, the unit C3 throttles
// and circuit-breaks over (§4.3: "same registered domain").
func RegisteredDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		host = rawURL
	}
	etld, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil // fall back to bare host for IPs / unlisted TLDs
	}
	return etld, nil
}

// Acquire blocks until a project slot, a global slot, and the
// per-domain throttle all clear, respecting budgets and the circuit
// breaker. It returns `congested` if the bounded wait (default 60s)
// elapses first, and `blocked` if the domain's circuit is open.
func (g *Governor) Acquire(ctx context.Context, projectID, rawURL string) (*Lease, error) {
	domain, err := RegisteredDomain(rawURL)
	if err != nil {
		domain = rawURL
	}

	if open, until := g.circuitOpen(domain); open {
		return nil, errkind.New("governor", errkind.KindBlocked, "", errCircuitOpen(domain, until))
	}

	if !g.BudgetOK(time.Now()) {
		return nil, errkind.New("governor", errkind.KindBudgetExceeded, "", errBudgetExceeded)
	}

	waitTimeout := g.cfg.QueueWaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 60 * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	g.mu.Lock()
	g.projectQueue[projectID]++
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.projectQueue[projectID]--
		g.mu.Unlock()
	}()

	sem := g.projectSem(projectID)
	select {
	case sem <- struct{}{}:
	case <-wctx.Done():
		return nil, errkind.New("governor", errkind.KindCongested, "", errCongested)
	}

	select {
	case g.globalSem <- struct{}{}:
	case <-wctx.Done():
		<-sem
		return nil, errkind.New("governor", errkind.KindCongested, "", errCongested)
	}

	if err := g.waitDomainThrottle(wctx, domain); err != nil {
		<-g.globalSem
		<-sem
		return nil, errkind.New("governor", errkind.KindCongested, "", errCongested)
	}

	g.recordBudgetUse()

	return &Lease{projectID: projectID, domain: domain}, nil
}

// Release returns a Lease's slots to the pool.
func (g *Governor) Release(lease *Lease) {
	if lease == nil {
		return
	}
	sem := g.projectSem(lease.projectID)
	select {
	case <-sem:
	default:
	}
	select {
	case <-g.globalSem:
	default:
	}
}

// waitDomainThrottle blocks until DomainThrottleInterval has elapsed
// since the last fetch to domain, then stamps the new last-fetch time.
func (g *Governor) waitDomainThrottle(ctx context.Context, domain string) error {
	interval := g.cfg.DomainThrottleInterval
	if interval <= 0 {
		return nil
	}

	for {
		g.domainMu.Lock()
		last, ok := g.lastFetch[domain]
		now := time.Now()
		if !ok || now.Sub(last) >= interval {
			g.lastFetch[domain] = now
			g.domainMu.Unlock()
			return nil
		}
		wait := interval - now.Sub(last)
		g.domainMu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// BudgetOK reports whether the daily/hourly snapshot budgets still
// have room, resetting counters on wall-clock rollover.
func (g *Governor) BudgetOK(now time.Time) bool {
	g.budgetMu.Lock()
	defer g.budgetMu.Unlock()
	g.rollBudgetsLocked(now)

	dailyMax := g.cfg.DailySnapshotLimit
	hourlyMax := g.cfg.HourlySnapshotLimit
	if dailyMax > 0 && g.totalLocked(g.dailyCount) >= dailyMax {
		return false
	}
	if hourlyMax > 0 && g.totalLocked(g.hourlyCount) >= hourlyMax {
		return false
	}
	return true
}

func (g *Governor) totalLocked(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func (g *Governor) rollBudgetsLocked(now time.Time) {
	if now.After(g.dailyReset) {
		g.dailyCount = make(map[string]int)
		g.dailyReset = now.Add(24 * time.Hour)
	}
	if now.After(g.hourlyReset) {
		g.hourlyCount = make(map[string]int)
		g.hourlyReset = now.Add(time.Hour)
	}
}

func (g *Governor) recordBudgetUse() {
	g.budgetMu.Lock()
	defer g.budgetMu.Unlock()
	now := time.Now()
	g.rollBudgetsLocked(now)
	g.dailyCount["*"]++
	g.hourlyCount["*"]++
}

// RecordOutcome feeds a capture's success/failure into the per-domain
// circuit breaker. Call it once per completed attempt against domain.
// domain may be a host or a registered domain; it is reduced to its
// registered domain, the key Acquire checks.
func (g *Governor) RecordOutcome(domain string, success bool) {
	if d, err := RegisteredDomain(domain); err == nil {
		domain = d
	}
	window := g.cfg.CircuitBreakerWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	threshold := g.cfg.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	g.circuitMu.Lock()
	defer g.circuitMu.Unlock()

	now := time.Now()
	cs, ok := g.circuits[domain]
	if !ok || now.Sub(cs.windowStart) > window {
		cs = &circuitState{windowStart: now}
		g.circuits[domain] = cs
	}

	cs.attempts++
	if !success {
		cs.failures++
	}

	if cs.attempts >= 5 && float64(cs.failures)/float64(cs.attempts) > threshold {
		cs.openUntil = now.Add(window)
	}
}

func (g *Governor) circuitOpen(domain string) (bool, time.Time) {
	g.circuitMu.Lock()
	defer g.circuitMu.Unlock()

	cs, ok := g.circuits[domain]
	if !ok {
		return false, time.Time{}
	}
	if time.Now().Before(cs.openUntil) {
		return true, cs.openUntil
	}
	if !cs.openUntil.IsZero() && time.Now().After(cs.openUntil) {
		// window elapsed: reset so the domain gets a fresh trial
		g.circuits[domain] = &circuitState{windowStart: time.Now()}
	}
	return false, time.Time{}
}
