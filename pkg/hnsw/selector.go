package hnsw

import (
	"cmp"
	"sort"
)

// neighborSelector (C6) is a closed variant set over the three
// SELECT-NEIGHBORS strategies (§4.5) rather than three separate types, so
// that a Graph can pick its strategy once via Parameters.NeighborHeuristic
// and every call site dispatches through the same value.
type neighborSelector[T any, D cmp.Ordered] struct {
	kind                  SelectorKind
	expandCandidates      bool
	keepPrunedConnections bool
}

func newNeighborSelector[T any, D cmp.Ordered](p Parameters) *neighborSelector[T, D] {
	return &neighborSelector[T, D]{
		kind:                  p.NeighborHeuristic,
		expandCandidates:      p.ExpandBestSelection,
		keepPrunedConnections: p.KeepPrunedConnections,
	}
}

// selectBestForConnecting picks up to m candidates to connect to, out of
// candidates, dispatching on the selector's kind.
func (s *neighborSelector[T, D]) selectBestForConnecting(c *core[T, D], candidates []candidate[D], costs *travelingCosts[T, D], layer int, m int) []candidate[D] {
	switch s.kind {
	case SelectorHeuristic:
		return s.heuristic(c, candidates, costs, layer, m)
	case SelectorCustom:
		return s.custom(c, candidates, m)
	default:
		return simpleSelect(candidates, m)
	}
}

func sortByDistance[D cmp.Ordered](candidates []candidate[D]) []candidate[D] {
	sorted := append([]candidate[D](nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted
}

// simpleSelect is Algorithm 3: keep the M nearest, no diversity check.
func simpleSelect[D cmp.Ordered](candidates []candidate[D], m int) []candidate[D] {
	sorted := sortByDistance(candidates)
	if len(sorted) > m {
		sorted = sorted[:m]
	}
	return sorted
}

// diverse reports whether candidate e may be accepted into result: it must
// be closer to the target than to every result already accepted. This is
// the geometric-diversity test shared by the heuristic and custom variants
// (Algorithm 4 and Algorithm 5 differ only in expandCandidates and discard
// reuse, not in the acceptance test itself).
func diverse[T any, D cmp.Ordered](c *core[T, D], e candidate[D], result []candidate[D]) bool {
	for _, r := range result {
		if c.distBetween(e.id, r.id) < e.dist {
			return false
		}
	}
	return true
}

// heuristic is Algorithm 4: optionally expands the candidate set with the
// candidates' own neighbors, applies the diversity test nearest-first, and
// optionally backfills from the discard pile if fewer than m survived.
func (s *neighborSelector[T, D]) heuristic(c *core[T, D], candidates []candidate[D], costs *travelingCosts[T, D], layer int, m int) []candidate[D] {
	working := candidates
	if s.expandCandidates {
		seen := make(map[int]bool, len(candidates))
		for _, cd := range candidates {
			seen[cd.id] = true
		}
		expanded := append([]candidate[D](nil), candidates...)
		for _, cd := range candidates {
			n := c.nodeAt(cd.id)
			if n == nil || layer > n.maxLayer {
				continue
			}
			for _, nb := range n.connections[layer] {
				if seen[nb] {
					continue
				}
				seen[nb] = true
				expanded = append(expanded, candidate[D]{id: nb, dist: costs.from(nb)})
			}
		}
		working = expanded
	}

	frontier := newBinaryHeap[D](minOrder, len(working))
	frontier.build(working)
	discard := newBinaryHeap[D](minOrder, len(working))

	result := make([]candidate[D], 0, m)
	for frontier.Len() > 0 && len(result) < m {
		e := frontier.pop()
		if diverse(c, e, result) {
			result = append(result, e)
		} else {
			discard.push(e)
		}
	}
	if s.keepPrunedConnections {
		for len(result) < m && discard.Len() > 0 {
			result = append(result, discard.pop())
		}
	}
	return result
}

// custom is Algorithm 5: the same diversity test as heuristic, but over the
// raw candidate set only (no expandCandidates) and with no discard reuse.
func (s *neighborSelector[T, D]) custom(c *core[T, D], candidates []candidate[D], m int) []candidate[D] {
	sorted := sortByDistance(candidates)
	result := make([]candidate[D], 0, m)
	for _, e := range sorted {
		if len(result) >= m {
			break
		}
		if diverse(c, e, result) {
			result = append(result, e)
		}
	}
	return result
}
