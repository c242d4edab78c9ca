package memory

import "context"

// CollectionStats reports one collection's size and the cache's behavior
// in front of it, per spec.md §4.2's stats() contract.
type CollectionStats struct {
	Collection   string
	MemoryCount  int64
	CacheHitRate float64
	CacheEntries int
	CacheUsedMB  float64
}

// Stats returns CollectionStats for every named collection. Cache figures
// are process-wide (the cache has no per-collection accounting) and are
// repeated across every collection in the response.
func (m *Memory) Stats(ctx context.Context, collections []string) ([]CollectionStats, error) {
	cacheStats, cacheReachable := Stats{}, false
	if m.cache != nil {
		cacheStats, cacheReachable = m.cache.Stats()
	}

	out := make([]CollectionStats, 0, len(collections))
	for _, c := range collections {
		count, err := m.store.CollectionCount(ctx, c)
		if err != nil {
			return nil, err
		}
		cs := CollectionStats{Collection: c, MemoryCount: count}
		if cacheReachable {
			cs.CacheHitRate = cacheStats.HitRate
			cs.CacheEntries = cacheStats.Entries
			cs.CacheUsedMB = float64(cacheStats.UsedBytes) / (1024 * 1024)
		}
		out = append(out, cs)
	}
	return out, nil
}
