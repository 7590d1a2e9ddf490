package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/target/mmk-reports/internal/domain/model"
)

// CacheRepository defines the interface for key-value caching operations.
// The core defines the interface and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// DefaultReportCacheTTL bounds how long a completed report snapshot is served from cache.
const DefaultReportCacheTTL = 300 * time.Second

// ReportCacheKey returns the cache key holding the snapshot of report id.
func ReportCacheKey(id string) string {
	return "report:" + id
}

// ReportCache stores JSON snapshots of completed reports on top of a CacheRepository.
// It is never authoritative; the job store wins on any disagreement.
type ReportCache struct {
	cache CacheRepository
	ttl   time.Duration
}

// ReportCacheOptions bundles dependencies for NewReportCache.
type ReportCacheOptions struct {
	Cache CacheRepository
	TTL   time.Duration
}

// NewReportCache creates a ReportCache. A non-positive TTL falls back to DefaultReportCacheTTL.
func NewReportCache(opts ReportCacheOptions) *ReportCache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultReportCacheTTL
	}
	return &ReportCache{cache: opts.Cache, ttl: ttl}
}

// TTL returns the expiry applied to cached snapshots.
func (c *ReportCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached snapshot or nil on a miss.
func (c *ReportCache) Get(ctx context.Context, id string) (*model.Report, error) {
	raw, err := c.cache.Get(ctx, ReportCacheKey(id))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var r model.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode cached report %s: %w", id, err)
	}
	return &r, nil
}

// Put caches a snapshot of r. Only completed reports are cached; other statuses are ignored.
func (c *ReportCache) Put(ctx context.Context, r *model.Report) error {
	if r == nil || r.Status != model.ReportStatusCompleted {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	return c.cache.Set(ctx, ReportCacheKey(r.ID), raw, c.ttl)
}

// Evict removes the snapshot of report id. A missing entry is not an error.
func (c *ReportCache) Evict(ctx context.Context, id string) error {
	_, err := c.cache.Delete(ctx, ReportCacheKey(id))
	return err
}

// Health reports whether the underlying cache is reachable.
func (c *ReportCache) Health(ctx context.Context) error {
	return c.cache.Health(ctx)
}
