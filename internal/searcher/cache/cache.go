// Package cache memoizes search results per published index generation.
// Keys embed the generation, so a rebuild can never serve results computed
// against the previous index.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MotherTongues/mothertongues/internal/searcher"
	"github.com/MotherTongues/mothertongues/pkg/config"
	"github.com/MotherTongues/mothertongues/pkg/metrics"
)

const keyPrefix = "mtd:query:"

// Backend is the part of the engine the cache decorates.
type Backend interface {
	Search(ctx context.Context, q searcher.Query) (*searcher.Result, error)
	Snapshot(side config.Side) *searcher.Snapshot
}

// QueryCache decorates a Backend. Results returned from the cache are shared
// between concurrent callers and must be treated as read-only.
type QueryCache struct {
	backend Backend
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over backend. m may be nil.
func New(backend Backend, store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Search answers q from the store when possible and otherwise runs it once
// per key, however many callers miss at the same time. cached reports
// whether the result came from the store.
func (c *QueryCache) Search(ctx context.Context, q searcher.Query) (res *searcher.Result, cached bool, err error) {
	key, ok := c.key(q)
	if !ok {
		// Unknown side or no index yet; let the engine report it.
		res, err = c.backend.Search(ctx, q)
		return res, false, err
	}
	if res, ok := c.get(ctx, key, true); ok {
		return res, true, nil
	}
	// The shared computation outlives any one caller, so it keeps ctx's
	// values but not its cancellation.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if res, ok := c.get(shared, key, false); ok {
			return res, nil
		}
		res, err := c.backend.Search(shared, q)
		if err != nil {
			return nil, err
		}
		if len(res.Terms) > 0 {
			c.set(shared, key, res)
		}
		return res, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.(*searcher.Result), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// InvalidateSide drops every cached result of side.
func (c *QueryCache) InvalidateSide(ctx context.Context, side config.Side) error {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix+string(side)+":")
	if err != nil {
		return fmt.Errorf("invalidating %s cache: %w", side, err)
	}
	c.logger.Info("cache invalidated", "side", side, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// get looks key up. Only the first lookup of a query is counted, so the
// re-check inside the singleflight group does not double count misses.
func (c *QueryCache) get(ctx context.Context, key string, count bool) (*searcher.Result, bool) {
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	var res searcher.Result
	if err == nil && found {
		if err := json.Unmarshal(data, &res); err != nil {
			c.logger.Error("cache unmarshal failed", "key", key, "error", err)
			found = false
		}
	}
	if err != nil || !found {
		if count {
			c.recordMiss()
		}
		return nil, false
	}
	if count {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
	}
	return &res, true
}

func (c *QueryCache) set(ctx context.Context, key string, res *searcher.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// key hashes the normalized query with the side, generation and page. ok is
// false when the side is unknown or has no index.
func (c *QueryCache) key(q searcher.Query) (string, bool) {
	side, err := config.ParseSide(q.Side)
	if err != nil {
		return "", false
	}
	snap := c.backend.Snapshot(side)
	if snap == nil {
		return "", false
	}
	return Key(side, snap.Generation, snap.Analyzer.Normalize(q.Text), q.Offset, q.Limit), true
}

// Key builds the store key for a normalized query.
func Key(side config.Side, generation uint64, normalized string, offset, limit int) string {
	raw := fmt.Sprintf("%s|%d|%s|offset=%d|limit=%d", side, generation, normalized, offset, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%d:%x", keyPrefix, side, generation, hash[:16])
}

var _ Backend = (*searcher.Engine)(nil)
