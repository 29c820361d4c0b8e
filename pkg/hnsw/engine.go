package hnsw

import (
	"cmp"
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
)

// maxSearchRetries bounds how many times KNNSearch will retry after losing
// a race with a concurrent structural edit before giving up. A search
// retrying this many times implies a writer is continuously mutating the
// graph faster than a single search pass can complete, which the facade
// surfaces as ErrRetriesExhausted rather than retrying forever.
const maxSearchRetries = 1024

// SearchResult is one KNNSearch hit.
type SearchResult[T any, D cmp.Ordered] struct {
	ID       int
	Item     T
	Distance D
}

// engine (C8) implements INSERT, REMOVE, and KNN-SEARCH over a core arena,
// maintaining the graph invariants (§3) and the single entry point. version
// is bumped after every structural edit; a search seeded under an older
// version that observes a mismatch aborts and retries rather than continue
// walking adjacency that may have been mutated underneath it. Callers are
// expected to serialize INSERT/RemoveItem against each other and against
// readers themselves (the facade's RWMutex does this); engine performs no
// locking of its own.
type engine[T any, D cmp.Ordered] struct {
	core       *core[T, D]
	selector   *neighborSelector[T, D]
	rng        *rand.Rand
	entryPoint int
	maxLayer   int
	version    atomic.Uint64
	searchers  sync.Pool
}

func newEngine[T any, D cmp.Ordered](c *core[T, D], rng *rand.Rand) *engine[T, D] {
	e := &engine[T, D]{
		core:       c,
		selector:   newNeighborSelector[T, D](c.params),
		rng:        rng,
		entryPoint: -1,
		maxLayer:   -1,
	}
	e.searchers.New = func() any {
		return newLayerSearcher[T, D](c.params.ConstructionPruning)
	}
	return e
}

func (e *engine[T, D]) acquireSearcher() *layerSearcher[T, D] {
	return e.searchers.Get().(*layerSearcher[T, D])
}

func (e *engine[T, D]) releaseSearcher(ls *layerSearcher[T, D]) {
	e.searchers.Put(ls)
}

// randomLevel samples a layer per §4.7's formula floor(-ln(u)/ln(M)).
func randomLevel(rng *rand.Rand, lambda float64) int {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * lambda))
}

// Insert runs INSERT (§4.7): allocate an id, sample its layer, greedily
// descend from the entry point to the target layer, then at each layer from
// min(entryMaxLayer, level) down to 0 search for efConstruction candidates
// and connect to the selector's chosen subset, pruning any node pushed over
// its degree bound. If level exceeds the current max layer, id becomes the
// new entry point.
//
// No partial insert is ever left committed (§7): until the id's allocation
// is confirmed below, a deferred rollback undoes allocID on any panic
// escaping the distance function, by recovering it, rolling the allocation
// back with rollbackAlloc (truncating the arena if id was its last slot,
// otherwise returning id to the free list), and re-panicking with the original value so the panic still bubbles to the
// caller unchanged. This guarantees the allocated id itself never leaks as
// a live-but-half-built node; it does not retroactively unwind edges
// already connected into other nodes at layers processed before the panic.
func (e *engine[T, D]) Insert(item T) int {
	id := e.core.allocID()
	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			e.core.rollbackAlloc(id)
			panic(r)
		}
	}()

	level := randomLevel(e.rng, e.core.params.levelLambda())
	e.core.nodes[id] = newNode(id, level)
	e.core.items[id] = item

	if e.entryPoint < 0 {
		e.entryPoint = id
		e.maxLayer = level
		e.version.Add(1)
		committed = true
		return id
	}

	costs := newTravelingCostsToNode(e.core, id)
	ls := e.acquireSearcher()
	defer e.releaseSearcher(ls)

	nearest := e.entryPoint
	for l := e.maxLayer; l > level; l-- {
		results, _ := ls.search(context.Background(), e.core, costs, []int{nearest}, 1, l, e.version.Load(), e.version.Load, nil)
		if len(results) > 0 {
			nearest = results[0].id
		}
	}

	entryPoints := []int{nearest}
	top := e.maxLayer
	if level < top {
		top = level
	}
	for l := top; l >= 0; l-- {
		candidates, _ := ls.search(context.Background(), e.core, costs, entryPoints, e.core.params.ConstructionPruning, l, e.version.Load(), e.version.Load, nil)
		selected := e.selector.selectBestForConnecting(e.core, candidates, costs, l, e.core.params.mForLayer(l))
		for _, s := range selected {
			e.core.connect(e.selector, id, s.id, l)
		}
		if len(selected) > 0 {
			entryPoints = []int{selected[0].id}
		}
	}

	if level > e.maxLayer {
		e.entryPoint = id
		e.maxLayer = level
	}
	e.version.Add(1)
	committed = true
	return id
}

// Remove runs REMOVE (§4.8): unlink id from every layer it participates in,
// eagerly repairing each former neighbor's connections in place (§4.9), then
// tombstones id. If id was the entry point, the graph is rescanned for any
// remaining live node with the greatest maxLayer so an isolated-but-nonempty
// graph never loses its entry point (the REDESIGN FLAG resolution in §4.8).
func (e *engine[T, D]) Remove(id int) {
	n := e.core.nodeAt(id)
	affected := make(map[int]bool)
	for l := 0; l <= n.maxLayer; l++ {
		peers := append(append([]int(nil), n.connections[l]...), n.inConnections[l]...)
		for _, nb := range peers {
			e.core.disconnect(id, nb, l)
			affected[nb] = true
		}
	}
	n.removed = true
	n.clearAdjacency()
	e.core.releaseID(id)

	if e.entryPoint == id {
		e.reseatEntryPoint()
	}

	ls := e.acquireSearcher()
	defer e.releaseSearcher(ls)
	for nb := range affected {
		e.repairNode(ls, nb)
	}

	e.version.Add(1)
}

// reseatEntryPoint scans the whole arena for any live node with the
// greatest maxLayer, used when the current entry point is removed.
func (e *engine[T, D]) reseatEntryPoint() {
	e.entryPoint = -1
	e.maxLayer = -1
	for id, n := range e.core.nodes {
		if n == nil || n.removed {
			continue
		}
		if n.maxLayer > e.maxLayer {
			e.maxLayer = n.maxLayer
			e.entryPoint = id
		}
	}
}

// repairNode refills id's connections at any layer where it now has fewer
// than half the layer's degree bound, by re-searching from the current entry
// point and merging fresh candidates with id's surviving neighbors before
// re-selecting. Best-effort: a retry signal from a concurrent structural
// change simply skips that layer, since the next write will version-bump
// again and any reader will already be retrying on its own.
func (e *engine[T, D]) repairNode(ls *layerSearcher[T, D], id int) {
	n := e.core.nodeAt(id)
	if n == nil || n.removed {
		return
	}
	costs := newTravelingCostsToNode(e.core, id)
	for l := 0; l <= n.maxLayer; l++ {
		limit := e.core.params.mForLayer(l)
		if 2*len(n.connections[l]) >= limit || e.entryPoint < 0 {
			continue
		}
		results, err := ls.search(context.Background(), e.core, costs, []int{e.entryPoint}, e.core.params.ConstructionPruning, l, e.version.Load(), e.version.Load, nil)
		if err != nil {
			continue
		}
		candidates := make([]candidate[D], 0, len(results)+len(n.connections[l]))
		for _, r := range results {
			if r.id != id {
				candidates = append(candidates, r)
			}
		}
		for _, nb := range n.connections[l] {
			candidates = append(candidates, candidate[D]{id: nb, dist: costs.from(nb)})
		}
		selected := e.selector.selectBestForConnecting(e.core, candidates, costs, l, limit)
		for _, nb := range append([]int(nil), n.connections[l]...) {
			e.core.disconnect(id, nb, l)
		}
		for _, s := range selected {
			e.core.connect(e.selector, id, s.id, l)
		}
	}
}

// KNNSearch runs K-NN-SEARCH (§4.10): greedy descent to layer 0 then a
// beam search with ef = max(k, MinNN), retried up to maxSearchRetries times
// if a concurrent write invalidates the in-flight search. filter, if
// non-nil, is threaded into the layer-0 beam search (§4.6 step 3) and
// excludes ids from the results heap without excluding them from
// traversal, so a restrictive filter can still legitimately return fewer
// than k hits.
//
// ctx cancellation is not an error (§5, §7): layerSearcher.search polls it
// on every iteration and returns its partial topCandidates with a nil
// error, which KNNSearch passes straight through rather than retrying.
func (e *engine[T, D]) KNNSearch(ctx context.Context, query T, k int, filter func(id int, item T) bool) ([]SearchResult[T, D], error) {
	if e.entryPoint < 0 {
		return nil, nil
	}
	ef := k
	if e.core.params.MinNN > ef {
		ef = e.core.params.MinNN
	}

	for attempt := 0; attempt < maxSearchRetries; attempt++ {
		version := e.version.Load()
		entry := e.entryPoint
		top := e.maxLayer
		if entry < 0 {
			return nil, nil
		}

		costs := newTravelingCostsToQuery(e.core, query)
		ls := e.acquireSearcher()

		nearest := entry
		retry := false
		for l := top; l > 0; l-- {
			results, err := ls.search(ctx, e.core, costs, []int{nearest}, 1, l, version, e.version.Load, nil)
			if err != nil {
				if !isGraphChanged(err) {
					e.releaseSearcher(ls)
					return nil, err
				}
				retry = true
				break
			}
			if len(results) > 0 {
				nearest = results[0].id
			}
		}
		if retry {
			e.releaseSearcher(ls)
			continue
		}

		results, err := ls.search(ctx, e.core, costs, []int{nearest}, ef, 0, version, e.version.Load, filter)
		e.releaseSearcher(ls)
		if err != nil {
			if isGraphChanged(err) {
				continue
			}
			return nil, err
		}

		if len(results) > k {
			results = results[:k]
		}
		out := make([]SearchResult[T, D], 0, len(results))
		for _, r := range results {
			out = append(out, SearchResult[T, D]{ID: r.id, Item: e.core.itemAt(r.id), Distance: r.dist})
		}
		return out, nil
	}
	return nil, ErrRetriesExhausted
}
