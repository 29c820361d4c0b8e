package hnsw

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Graph (C9) is the public facade over core/engine: a single RWMutex
// serializes every structural edit behind a single-writer lane while
// letting readers (KNNSearch, GetItem) run concurrently with each other,
// per §5. There is no per-node locking or parallel insert lane; that was
// considered and explicitly left out (§9 open questions).
type Graph[T any, D cmp.Ordered] struct {
	mu       sync.RWMutex
	core     *core[T, D]
	engine   *engine[T, D]
	reporter Reporter
	params   Parameters
}

// New constructs an empty Graph. rng seeds layer sampling during INSERT;
// reusing the same seed across an identical insert sequence makes layer
// assignment, and therefore tie-broken KNNSearch ordering, deterministic
// (§8's determinism-under-fixed-seed property). rng defaults to a
// fixed-seed source if nil.
func New[T any, D cmp.Ordered](distance DistanceFunc[T, D], rng *rand.Rand, params Parameters) (*Graph[T, D], error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if distance == nil {
		return nil, fmt.Errorf("%w: distance function must not be nil", ErrInvalidParameters)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	c := newCore(distance, params)
	return &Graph[T, D]{
		core:     c,
		engine:   newEngine(c, rng),
		reporter: noopReporter{},
		params:   params,
	}, nil
}

// SetReporter installs r as the Graph's event sink, replacing the no-op
// default (or a previously installed one).
func (g *Graph[T, D]) SetReporter(r Reporter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r == nil {
		r = noopReporter{}
	}
	g.reporter = r
}

// AddItems inserts items one at a time under the write lock and returns
// their assigned ids in the same order. progress, if non-nil, is called
// after each insert with the running count of items inserted so far.
func (g *Graph[T, D]) AddItems(items []T, progress func(done int)) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]int, len(items))
	for i, item := range items {
		prevEntry := g.engine.entryPoint
		id := g.engine.Insert(item)
		ids[i] = id
		g.reporter.ItemInserted(id, g.core.nodes[id].maxLayer)
		if g.engine.entryPoint != prevEntry {
			g.reporter.EntryPointChanged(g.engine.entryPoint, g.engine.maxLayer)
		}
		if progress != nil {
			progress(i + 1)
		}
	}
	return ids
}

// RemoveItem tombstones id and eagerly repairs its former neighbors'
// connections (§4.8, §4.9). Returns ErrUnknownID if id does not name a
// currently live item.
func (g *Graph[T, D]) RemoveItem(id int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.core == nil {
		return ErrUninitialized
	}
	if !g.core.isLive(id) {
		return fmt.Errorf("%w: id %d", ErrUnknownID, id)
	}
	prevEntry := g.engine.entryPoint
	g.engine.Remove(id)
	g.reporter.ItemRemoved(id)
	if g.engine.entryPoint != prevEntry {
		g.reporter.EntryPointChanged(g.engine.entryPoint, g.engine.maxLayer)
	}
	return nil
}

// GetItem returns the item stored at id and whether id currently names a
// live item.
func (g *Graph[T, D]) GetItem(id int) (T, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.core.isLive(id) {
		var zero T
		return zero, false
	}
	return g.core.itemAt(id), true
}

// KNNSearch finds up to k items nearest to query (§4.10). filter, if
// non-nil, excludes ids from the returned results for which it returns
// false. Retries internally (bounded by maxSearchRetries) if a concurrent
// write invalidates an in-flight search; see ErrRetriesExhausted.
func (g *Graph[T, D]) KNNSearch(ctx context.Context, query T, k int, filter func(id int, item T) bool) ([]SearchResult[T, D], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.core == nil {
		return nil, ErrUninitialized
	}
	start := time.Now()
	results, err := g.engine.KNNSearch(ctx, query, k, filter)
	g.reporter.SearchCompleted(k, time.Since(start))
	return results, err
}

// Len returns the number of currently live items.
func (g *Graph[T, D]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.core.liveCount()
}

// Parameters returns the configuration the Graph was constructed with.
func (g *Graph[T, D]) Parameters() Parameters {
	return g.params
}
