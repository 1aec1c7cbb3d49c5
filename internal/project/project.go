// Package project implements the project-creation half of §5's
// distributed-lock requirement: a lock keyed by
// project_creation:{userId}:{name} serializes concurrent creation
// attempts for the same user+name pair so at most one of them observes
// an empty storage slot. Grounded on the governor's keyed-mutex-map
// idiom (internal/governor's projectSems/lastFetch), generalized from a
// semaphore pool to a plain exclusion lock per key.
package project

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
	"github.com/rivalscope/corewatch/internal/store"
)

// Creator serializes CreateProject calls per {userId, name} and retries
// transient storage conflicts with bounded jittered backoff, never
// retrying a confirmed duplicate (§5, §8 scenario 6).
type Creator struct {
	repo store.Repository

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	maxRetries  int
	backoffBase time.Duration
}

// New builds a Creator around repo with the default retry policy
// (MAX_RETRY_ATTEMPTS=3, §6).
func New(repo store.Repository) *Creator {
	return &Creator{repo: repo, locks: make(map[string]*sync.Mutex), maxRetries: 3, backoffBase: 100 * time.Millisecond}
}

func lockKey(userID, name string) string {
	return fmt.Sprintf("project_creation:%s:%s", userID, name)
}

func (c *Creator) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Create inserts p after acquiring the project_creation:{userId}:{name}
// lock, so of N concurrent calls for the same pair exactly one observes
// the empty slot and the rest fail with a duplicate error (never
// retried past maxRetries).
func (c *Creator) Create(ctx context.Context, p domain.Project) (*domain.Project, error) {
	key := lockKey(p.UserID, p.Name)
	lock := c.lockFor(key)

	lock.Lock()
	defer lock.Unlock()

	return c.createWithRetry(ctx, p)
}

func (c *Creator) createWithRetry(ctx context.Context, p domain.Project) (*domain.Project, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		created, err := c.repo.CreateProject(ctx, p)
		if err == nil {
			return created, nil
		}
		if errkind.As(err) == errkind.KindDuplicate {
			return nil, err
		}
		lastErr = err
		if attempt < c.maxRetries {
			jitter := time.Duration(rand.Int63n(int64(c.backoffBase) + 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoffBase + jitter):
			}
		}
	}
	return nil, lastErr
}
