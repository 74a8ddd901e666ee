package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Querier fronts a Cache with request coalescing: concurrent misses for
// the same key and generation run the computation once.
type Querier struct {
	cache      Cache
	generation func() uint64
	group      singleflight.Group
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

func NewQuerier(c Cache, generation func() uint64) *Querier {
	if c == nil {
		c = Nop{}
	}
	return &Querier{
		cache:      c,
		generation: generation,
		logger:     slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached page for key or computes, stores and
// returns it. The generation is read before computing, so a page computed
// while the index changes is stamped stale and never served afterwards.
func (q *Querier) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (*Entry, error)) (*Entry, bool, error) {
	gen := q.generation()
	if entry, ok := q.cache.Get(ctx, key, gen); ok {
		q.hits.Add(1)
		return entry, true, nil
	}
	q.misses.Add(1)
	val, err, _ := q.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		if entry, ok := q.cache.Get(ctx, key, gen); ok {
			return entry, nil
		}
		entry, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		stored := *entry
		stored.Generation = gen
		stored.CreatedAt = time.Now().UTC()
		q.cache.Put(ctx, key, &stored)
		return &stored, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Entry), false, nil
}

func (q *Querier) InvalidateAll(ctx context.Context) error {
	return q.cache.InvalidateAll(ctx)
}

func (q *Querier) Stats() (hits, misses int64) {
	return q.hits.Load(), q.misses.Load()
}
