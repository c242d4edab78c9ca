package memory

// Two-tier cache. The vector store is the system of record (§4.2); this
// cache is disposable — a cold or unreachable cache must never affect
// correctness, only latency. Grounded on
// AleutianAI-AleutianFOSS/services/trace/agent/routing/router_cache.go's
// BadgerRouterCacheStore: an embedded key-value store with Badger-native
// per-entry TTL, accessed through a small interface so callers never see
// the storage engine directly.
//
// The byte-budget LRU eviction on top of Badger is hand-rolled
// (container/list guarding a doubly-linked access order): no repository
// in the retrieved corpus pairs Badger with a byte-budget LRU wrapper,
// and no LRU library (e.g. hashicorp/golang-lru) appears in any go.mod in
// the corpus either, so there is no pack-grounded third-party choice for
// this one piece. The storage engine and its native TTL remain
// pack-grounded; only the eviction bookkeeping is hand-written.

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cogniflow/agentrt/pkg/metrics"
)

const (
	embedNamespace   = "embed:"
	queryNamespace   = "query:"
	sessionNamespace = "session:"
)

// Cache is the disposable two-tier cache in front of the vector store.
// Safe for concurrent use.
type Cache struct {
	db     *badger.DB
	budget int64

	mu      sync.Mutex
	used    int64
	order   *list.List // front = most recently used
	entries map[string]*list.Element

	logger *slog.Logger

	hits   atomicCounter
	misses atomicCounter

	metrics *metrics.Metrics
}

// SetMetrics attaches a Prometheus collector Get* reports hit/miss
// outcomes into, alongside the existing in-process hit-rate counters
// Stats() reports over the get_memory_stats tool. Optional.
func (c *Cache) SetMetrics(m *metrics.Metrics) {
	if c == nil {
		return
	}
	c.metrics = m
}

type cacheEntryMeta struct {
	key  string
	size int64
}

// NewCache opens (or creates) a Badger database at dir and wraps it with a
// byte-budget LRU tracker. A nil *Cache is a valid,
// always-miss cache for unavailable-cache operation per spec.md §4.2.
func NewCache(dir string, budgetBytes int64, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	c := &Cache{
		db:      db,
		budget:  budgetBytes,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		logger:  logger,
	}
	return c, nil
}

// Close releases the underlying Badger database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// GetEmbedding returns a previously cached embedding vector for key, or
// (nil, false) on miss. key is the CacheKey the caller computed.
func (c *Cache) GetEmbedding(ctx context.Context, key [16]byte) ([]byte, bool) {
	return c.get(ctx, embedNamespace+string(key[:]))
}

// SetEmbedding stores an embedding vector under key with the embedding TTL.
func (c *Cache) SetEmbedding(ctx context.Context, key [16]byte, value []byte, ttl time.Duration) {
	c.set(ctx, embedNamespace+string(key[:]), value, ttl)
}

// GetQuery returns a previously cached search-result blob for key.
func (c *Cache) GetQuery(ctx context.Context, key [16]byte) ([]byte, bool) {
	return c.get(ctx, queryNamespace+string(key[:]))
}

// SetQuery stores a search-result blob under key with the query TTL.
func (c *Cache) SetQuery(ctx context.Context, key [16]byte, value []byte, ttl time.Duration) {
	c.set(ctx, queryNamespace+string(key[:]), value, ttl)
}

// InvalidateQueryNamespace drops every cached query result, across all
// collections. Memory's Save, BatchSave, UpdateMetadata and Delete each
// call this after a successful write (the query-cache invalidation option
// permitted by spec.md §4.2).
func (c *Cache) InvalidateQueryNamespace(ctx context.Context) error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(queryNamespace)
		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			toDelete = append(toDelete, k)
		}
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetSessionState stores opaque session state with the session-state TTL.
func (c *Cache) SetSessionState(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.set(ctx, sessionNamespace+key, value, ttl)
}

// GetSessionState returns previously stored session state.
func (c *Cache) GetSessionState(ctx context.Context, key string) ([]byte, bool) {
	return c.get(ctx, sessionNamespace+key)
}

// Stats reports the cache's hit rate, approximate used bytes, and entry
// count, per spec.md §4.2's stats() contract.
type Stats struct {
	HitRate   float64
	UsedBytes int64
	Entries   int
}

// Stats returns the current cache statistics. Reachable==false mirrors
// spec.md §4.2's failure model: operations must still succeed using the
// vector store directly when the cache is unreachable.
func (c *Cache) Stats() (Stats, bool) {
	if c == nil || c.db == nil {
		return Stats{}, false
	}
	c.mu.Lock()
	used := c.used
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.load()
	misses := c.misses.load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Stats{HitRate: rate, UsedBytes: used, Entries: entries}, true
}

func (c *Cache) get(_ context.Context, key string) ([]byte, bool) {
	if c == nil || c.db == nil {
		return nil, false
	}
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.misses.add(1)
		c.recordCacheMetric(key, false)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss", "error", err)
		c.misses.add(1)
		c.recordCacheMetric(key, false)
		return nil, false
	}
	c.hits.add(1)
	c.recordCacheMetric(key, true)
	c.touch(key, int64(len(value)))
	return value, true
}

func (c *Cache) recordCacheMetric(key string, hit bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCacheResult(cacheTier(key), hit)
}

// cacheTier maps a namespaced key back to the tier name Stats()/the
// get_memory_stats tool distinguish, for the "tier" metric label.
func cacheTier(key string) string {
	switch {
	case strings.HasPrefix(key, embedNamespace):
		return "embedding"
	case strings.HasPrefix(key, queryNamespace):
		return "query"
	case strings.HasPrefix(key, sessionNamespace):
		return "session"
	default:
		return "unknown"
	}
}

func (c *Cache) set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil || c.db == nil {
		return
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "error", err)
		return
	}
	c.touch(key, int64(len(value)))
	c.evictIfOverBudget()
}

// touch records key as the most-recently-used entry of approximate size.
func (c *Cache) touch(key string, size int64) {
	if c.budget <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		meta := el.Value.(*cacheEntryMeta)
		c.used += size - meta.size
		meta.size = size
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntryMeta{key: key, size: size})
	c.entries[key] = el
	c.used += size
}

// evictIfOverBudget drops least-recently-used entries until the cache is
// back under its configured byte budget. No operation ever fails because
// of cache pressure (spec.md §8): eviction happens best-effort, off the
// request's success path.
func (c *Cache) evictIfOverBudget() {
	if c.budget <= 0 {
		return
	}
	c.mu.Lock()
	var toEvict []string
	for c.used > c.budget {
		back := c.order.Back()
		if back == nil {
			break
		}
		meta := back.Value.(*cacheEntryMeta)
		c.order.Remove(back)
		delete(c.entries, meta.key)
		c.used -= meta.size
		toEvict = append(toEvict, meta.key)
	}
	c.mu.Unlock()

	if len(toEvict) == 0 {
		return
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		for _, k := range toEvict {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		c.logger.Warn("cache eviction failed", "error", err, "count", len(toEvict))
	}
}

// atomicCounter is a tiny mutex-guarded counter; kept local to avoid pulling
// in sync/atomic's typed Int64 wrapper for two call sites.
type atomicCounter struct {
	mu sync.Mutex
	n  uint64
}

func (a *atomicCounter) add(n uint64) {
	a.mu.Lock()
	a.n += n
	a.mu.Unlock()
}

func (a *atomicCounter) load() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
