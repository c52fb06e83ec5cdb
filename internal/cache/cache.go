// Package cache memoises query results in Redis. Keys embed the corpus
// generation, so results computed against a replaced corpus are never
// served; Invalidate additionally drops them eagerly after an ingest.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "bm25:query:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store  Store
	ttl    time.Duration
	isMiss func(error) bool
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache. isMiss reports whether a Store.Get error means
// the key is absent rather than that the store failed.
func New(store Store, ttl time.Duration, isMiss func(error) bool) *QueryCache {
	return &QueryCache{
		store:  store,
		ttl:    ttl,
		isMiss: isMiss,
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, generation uint64, query string, topK int) ([]retriever.Result, bool) {
	key := BuildKey(generation, query, topK)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !c.isMiss(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var results []retriever.Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, generation uint64, query string, topK int, results []retriever.Result) {
	key := BuildKey(generation, query, topK)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results or runs computeFn once per key even
// under concurrent identical queries. Errors from computeFn are not cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	query string,
	topK int,
	computeFn func() ([]retriever.Result, error),
) ([]retriever.Result, bool, error) {
	if results, ok := c.Get(ctx, generation, query, topK); ok {
		return results, true, nil
	}
	key := BuildKey(generation, query, topK)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		results, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, generation, query, topK, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]retriever.Result), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey hashes the query terms exactly as the tokenizer will see them,
// so whitespace-only differences share an entry but case differences do
// not.
func BuildKey(generation uint64, query string, topK int) string {
	normalized := strings.Join(strings.Fields(query), " ")
	raw := fmt.Sprintf("%s|top_k=%d", normalized, topK)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%sg%d:%x", keyPrefix, generation, hash[:16])
}
