package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"discord-insight-go/internal/metrics"
	"discord-insight-go/internal/models"
)

// ComputeFunc produces a query result for the cache on a miss.
type ComputeFunc func(ctx context.Context) (interface{}, error)

// Cache memoizes query-layer results in the analysis_cache table, keyed by
// query type plus the canonical serialization of the parameter set.
//
// Concurrency policy: one mutex per key guards computation, so at most one
// computation per key runs at a time in this process. Waiters block on the
// key's mutex, then re-check the store; a successful computation is thus run
// once and shared. A failed or cancelled computation stores nothing and
// releases the lock, so the failure surfaces to its caller and the next
// waiter computes afresh instead of inheriting a poisoned lock.
type Cache struct {
	db      *gorm.DB
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a new result cache. The metrics handle may be nil.
func New(db *gorm.DB, m *metrics.Metrics) *Cache {
	return &Cache{
		db:      db,
		metrics: m,
		locks:   make(map[string]*keyLock),
	}
}

// CanonicalParams serializes a parameter set into its canonical JSON form:
// map keys sorted, numbers normalized. Structurally equal parameter sets
// always canonicalize to the same string, which makes the string usable as
// a cache key component.
func CanonicalParams(params interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parameters: %w", err)
	}
	// Round-trip through a generic value: re-marshaling a map sorts its
	// keys and collapses numeric representations.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("failed to normalize parameters: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize parameters: %w", err)
	}
	return string(canonical), nil
}

// GetOrCompute returns the cached result for (queryType, params) if a fresh
// entry exists, otherwise runs compute, stores its result with the given ttl
// and returns it. A ttl of zero means the entry never expires. A result past
// its expires_at is never returned; the expired row is dropped and the value
// recomputed.
func (c *Cache) GetOrCompute(ctx context.Context, queryType string, params interface{}, ttl time.Duration, compute ComputeFunc) (json.RawMessage, error) {
	canonical, err := CanonicalParams(params)
	if err != nil {
		return nil, err
	}
	key := queryType + "\x00" + canonical

	if result, ok, err := c.lookup(ctx, queryType, canonical); err != nil {
		return nil, err
	} else if ok {
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return result, nil
	}

	unlock := c.lockKey(key)
	defer unlock()

	// Another caller may have computed and stored while we waited.
	if result, ok, err := c.lookup(ctx, queryType, canonical); err != nil {
		return nil, err
	} else if ok {
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return result, nil
	}

	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	start := time.Now()
	value, err := compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", queryType, err)
	}
	if err := ctx.Err(); err != nil {
		// Cancelled mid-computation: leave no partial entry behind.
		return nil, fmt.Errorf("computation of %s cancelled: %w", queryType, err)
	}
	if c.metrics != nil {
		c.metrics.CacheComputeTime.Observe(time.Since(start).Seconds())
	}

	result, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s result: %w", queryType, err)
	}

	if err := c.store(ctx, queryType, canonical, result, ttl); err != nil {
		return nil, err
	}
	return result, nil
}

// lookup fetches a fresh entry, lazily deleting an expired one.
func (c *Cache) lookup(ctx context.Context, queryType, canonical string) (json.RawMessage, bool, error) {
	var entry models.AnalysisCache
	err := c.db.WithContext(ctx).
		Where("query_type = ? AND parameters = ?", queryType, canonical).
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up cache entry: %w", err)
	}

	if entry.ExpiresAt != nil && !entry.ExpiresAt.After(time.Now()) {
		if err := c.db.WithContext(ctx).Delete(&models.AnalysisCache{}, entry.ID).Error; err != nil {
			return nil, false, fmt.Errorf("failed to evict expired cache entry: %w", err)
		}
		logrus.Debugf("Evicted expired cache entry for %s", queryType)
		return nil, false, nil
	}
	return json.RawMessage(entry.Result), true, nil
}

// store replaces the entry for the key. Uniqueness of (query_type,
// parameters) is logical, so replacement is delete-then-insert in one
// transaction.
func (c *Cache) store(ctx context.Context, queryType, canonical string, result []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	entry := models.AnalysisCache{
		QueryType:  queryType,
		Parameters: canonical,
		Result:     string(result),
		CreatedAt:  now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("query_type = ? AND parameters = ?", queryType, canonical).
			Delete(&models.AnalysisCache{}).Error; err != nil {
			return fmt.Errorf("failed to replace cache entry: %w", err)
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to store cache entry: %w", err)
		}
		return nil
	})
}

// Invalidate drops the entry for one (queryType, params) key.
func (c *Cache) Invalidate(ctx context.Context, queryType string, params interface{}) error {
	canonical, err := CanonicalParams(params)
	if err != nil {
		return err
	}
	if err := c.db.WithContext(ctx).
		Where("query_type = ? AND parameters = ?", queryType, canonical).
		Delete(&models.AnalysisCache{}).Error; err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// InvalidateType drops every entry of a query type. Used when the output
// shape of a query changes.
func (c *Cache) InvalidateType(ctx context.Context, queryType string) error {
	if err := c.db.WithContext(ctx).
		Where("query_type = ?", queryType).
		Delete(&models.AnalysisCache{}).Error; err != nil {
		return fmt.Errorf("failed to invalidate cache type %s: %w", queryType, err)
	}
	return nil
}

// Sweep deletes all expired entries and returns the number removed. Run
// periodically; lazily evicted entries make this a cleanup, not a
// correctness requirement.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now()).
		Delete(&models.AnalysisCache{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// lockKey acquires the per-key computation mutex and returns its release
// function. Lock entries are reference counted so the map does not grow
// with the key space.
func (c *Cache) lockKey(key string) func() {
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyLock{}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}
