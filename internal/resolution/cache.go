// Package resolution implements the ResolutionCache (§3, §6): a
// TTL-bounded competitor→project mapping with a confidence tier,
// written by the Smart Data Collector (C7) after each competitor
// resolution. The collector does not read it back.
package resolution

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rivalscope/corewatch/internal/domain"
)

// Cache wraps patrickmn/go-cache with the ResolutionCacheEntry shape.
type Cache struct {
	store *gocache.Cache
	ttl   time.Duration
}

// New builds a Cache with the given TTL and cleanup interval (§6:
// CACHE_TTL, default 1h).
func New(ttl, cleanupInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &Cache{store: gocache.New(ttl, cleanupInterval), ttl: ttl}
}

func key(competitorID, projectID string) string {
	return competitorID + ":" + projectID
}

// Put records a resolution with the given confidence, using the
// cache's configured TTL.
func (c *Cache) Put(competitorID, projectID string, confidence domain.ResolutionConfidence) {
	c.store.Set(key(competitorID, projectID), domain.ResolutionCacheEntry{
		CompetitorID: competitorID,
		ProjectID:    projectID,
		Confidence:   confidence,
		ResolvedAt:   time.Now(),
	}, c.ttl)
}

// Get returns a cached resolution if present and unexpired.
func (c *Cache) Get(competitorID, projectID string) (domain.ResolutionCacheEntry, bool) {
	v, ok := c.store.Get(key(competitorID, projectID))
	if !ok {
		return domain.ResolutionCacheEntry{}, false
	}
	return v.(domain.ResolutionCacheEntry), true
}

// Invalidate drops a cached resolution, e.g. after a low-confidence
// match is later corrected.
func (c *Cache) Invalidate(competitorID, projectID string) {
	c.store.Delete(key(competitorID, projectID))
}
