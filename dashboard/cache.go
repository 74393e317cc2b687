/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Content-addressed publish cache: one entry per
             (dashboard name, spec hash) pair, so republishing
             an identical DashboardSpec only reasserts the active
             pointer instead of materializing new artifacts (I6).
Context:     Adapted from a semantic response cache's namespace
             isolation and TTL/eviction machinery — the similarity
             search is gone, the exact-hash fast path is now the
             only path, since dashboard specs are compared for
             byte-identical equality, not approximate similarity.
Suitability: L3 — cache architecture with per-namespace isolation.
──────────────────────────────────────────────────────────────
*/

package dashboard

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// CacheConfig tunes the publish cache's retention.
type CacheConfig struct {
	DefaultTTL time.Duration
	MaxEntries int
}

// DefaultCacheConfig returns production defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: 30 * 24 * time.Hour,
		MaxEntries: 5000,
	}
}

// PublishedArtifact is one materialized-and-published dashboard version.
type PublishedArtifact struct {
	DashboardName string
	SpecHash      string
	StageVersion  string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	HitCount      int64
}

// CacheStats summarizes publish-cache activity.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int64
}

// Cache is the per-dashboard-name publish cache. A hit means "this exact
// spec hash has already been materialized and published" — the factory
// reuses the existing stage version and only reasserts the active pointer.
type Cache struct {
	mu     sync.RWMutex
	logger zerolog.Logger
	config CacheConfig

	// namespace (dashboard name) → spec hash → artifact
	store map[string]map[string]*PublishedArtifact

	hits      int64
	misses    int64
	evictions int64
}

// NewCache builds a publish cache.
func NewCache(logger zerolog.Logger, config ...CacheConfig) *Cache {
	cfg := DefaultCacheConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Cache{
		logger: logger.With().Str("component", "dashboard-cache").Logger(),
		config: cfg,
		store:  make(map[string]map[string]*PublishedArtifact),
	}
}

// Lookup returns the published artifact for (dashboardName, specHash) if
// one exists and has not expired.
func (c *Cache) Lookup(dashboardName, specHash string) (*PublishedArtifact, bool) {
	c.mu.RLock()
	entries := c.store[dashboardName]
	entry, ok := entries[specHash]
	c.mu.RUnlock()

	if !ok || entry.ExpiresAt.Before(time.Now()) {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	atomic.AddInt64(&entry.HitCount, 1)
	return entry, true
}

// Store records a newly published artifact, evicting the oldest entry for
// the dashboard name if it is at capacity.
func (c *Cache) Store(dashboardName, specHash, stageVersion string) *PublishedArtifact {
	now := time.Now()
	entry := &PublishedArtifact{
		DashboardName: dashboardName,
		SpecHash:      specHash,
		StageVersion:  stageVersion,
		CreatedAt:     now,
		ExpiresAt:     now.Add(c.config.DefaultTTL),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.store[dashboardName]
	if !ok {
		entries = make(map[string]*PublishedArtifact)
		c.store[dashboardName] = entries
	}
	if len(entries) >= c.config.MaxEntries {
		c.evictOldestLocked(dashboardName)
	}
	entries[specHash] = entry

	c.logger.Debug().Str("dashboard", dashboardName).Str("spec_hash", specHash).Msg("artifact published")
	return entry
}

// Invalidate removes every cached version for a dashboard name and returns
// how many were removed.
func (c *Cache) Invalidate(dashboardName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.store[dashboardName])
	delete(c.store, dashboardName)
	atomic.AddInt64(&c.evictions, int64(n))
	return n
}

func (c *Cache) evictOldestLocked(dashboardName string) {
	entries := c.store[dashboardName]
	var oldestKey string
	var oldestAt time.Time
	for k, v := range entries {
		if oldestKey == "" || v.CreatedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, v.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(entries, oldestKey)
		atomic.AddInt64(&c.evictions, 1)
	}
}

// Stats returns current cache metrics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var entries int64
	for _, m := range c.store {
		entries += int64(len(m))
	}
	return CacheStats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Entries:   entries,
	}
}
