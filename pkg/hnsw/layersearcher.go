package hnsw

import (
	"cmp"
	"context"
)

// layerSearcher (C7) holds one thread's SEARCH-LAYER scratch buffers: a
// min-heap frontier of candidates still to explore, a max-heap of the best
// ef results seen so far (so the current farthest accepted result is O(1)
// to inspect), and a visited set. All three are owned by the searcher and
// reused across calls instead of being reallocated per search.
type layerSearcher[T any, D cmp.Ordered] struct {
	candidates *binaryHeap[D]
	results    *binaryHeap[D]
	visited    *visitedBitSet
}

func newLayerSearcher[T any, D cmp.Ordered](capacityHint int) *layerSearcher[T, D] {
	return &layerSearcher[T, D]{
		candidates: newBinaryHeap[D](minOrder, capacityHint),
		results:    newBinaryHeap[D](maxOrder, capacityHint),
		visited:    newVisitedBitSet(capacityHint),
	}
}

// extractResults drains the results heap into ascending (nearest-first)
// order. Used both by the normal exit path and the cancelled-partial path.
func (ls *layerSearcher[T, D]) extractResults() []candidate[D] {
	out := make([]candidate[D], ls.results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = ls.results.pop()
	}
	return out
}

// search runs SEARCH-LAYER (§4.6) from entryPoints over one layer, returning
// up to ef results ordered nearest-first. version is the graph version this
// call was seeded under; readVersion reports the graph's current version.
// If they diverge while the search is in flight, connections may have been
// mutated underneath it, so search aborts with graphChanged and leaves it
// to the caller to retry against the now-current graph rather than return a
// result computed over a partially stale adjacency.
//
// filter, if non-nil, gates only what is admitted into the results heap
// (§4.6 step 3): a candidate failing it is still pushed onto the frontier
// and explored for its own neighbors, so a restrictive filter narrows what
// is returned without narrowing what the beam can still reach.
//
// ctx is polled at the top of the loop and before each neighbor expansion
// (§5). Cancellation is not an error: search stops early and returns
// whatever partial results it has accumulated so far, with a nil error.
func (ls *layerSearcher[T, D]) search(ctx context.Context, c *core[T, D], costs *travelingCosts[T, D], entryPoints []int, ef int, layer int, version uint64, readVersion func() uint64, filter func(id int, item T) bool) ([]candidate[D], error) {
	ls.candidates.reset()
	ls.results.reset()
	ls.visited.clear()

	passes := func(id int) bool {
		return filter == nil || filter(id, c.itemAt(id))
	}

	for _, ep := range entryPoints {
		if !c.isLive(ep) || ls.visited.has(uint32(ep)) {
			continue
		}
		ls.visited.add(uint32(ep))
		cd := candidate[D]{id: ep, dist: costs.from(ep)}
		ls.candidates.push(cd)
		if passes(ep) {
			ls.results.push(cd)
		}
	}

	for ls.candidates.Len() > 0 {
		if ctx.Err() != nil {
			return ls.extractResults(), nil
		}
		if readVersion() != version {
			return nil, graphChanged{}
		}

		nearest := ls.candidates.pop()
		if ls.results.Len() >= ef && nearest.dist > ls.results.peek().dist {
			break
		}

		n := c.nodeAt(nearest.id)
		if n == nil || layer > n.maxLayer {
			continue
		}
		for _, nb := range n.connections[layer] {
			if ctx.Err() != nil {
				return ls.extractResults(), nil
			}
			if ls.visited.has(uint32(nb)) {
				continue
			}
			ls.visited.add(uint32(nb))
			if !c.isLive(nb) {
				continue
			}
			d := costs.from(nb)
			if ls.results.Len() < ef || d < ls.results.peek().dist {
				cd := candidate[D]{id: nb, dist: d}
				ls.candidates.push(cd)
				if passes(nb) {
					ls.results.push(cd)
					if ls.results.Len() > ef {
						ls.results.pop()
					}
				}
			}
		}
	}

	return ls.extractResults(), nil
}
