package hnsw

import (
	"cmp"

	"github.com/tidwall/btree"
)

// DistanceFunc is the user-supplied, pure distance function d: (T,T) -> D.
// It must be callable concurrently with itself (searches may run in
// parallel with each other, though never with a structural edit).
type DistanceFunc[T any, D cmp.Ordered] func(a, b T) D

// core (C5) is the arena: an ordered node list indexed by id, the parallel
// item slice, and the free list of tombstoned ids available for reuse by a
// future insert. Ids are never recycled out of order — allocID always hands
// out the smallest free id first — so a long-lived graph with churn doesn't
// grow its arena without bound.
type core[T any, D cmp.Ordered] struct {
	items    []T
	nodes    []*node
	removed  *btree.BTreeG[int]
	distFunc DistanceFunc[T, D]
	params   Parameters
}

func newCore[T any, D cmp.Ordered](distFunc DistanceFunc[T, D], params Parameters) *core[T, D] {
	return &core[T, D]{
		items:    make([]T, 0, params.InitialItemsSize),
		nodes:    make([]*node, 0, params.InitialItemsSize),
		removed:  btree.NewBTreeG[int](func(a, b int) bool { return a < b }),
		distFunc: distFunc,
		params:   params,
	}
}

// allocID reserves a slot for a new node: the smallest tombstoned id if one
// exists, otherwise a freshly appended slot. The caller is responsible for
// installing both c.nodes[id] and c.items[id] before the id is visible to
// any reader; until then the slot holds a nil node (fresh slot) or the old
// tombstoned node (reused id), both of which isLive treats as not-live so a
// half-finished insert can never be observed as a neighbor.
func (c *core[T, D]) allocID() int {
	if min, ok := c.removed.Min(); ok {
		c.removed.Delete(min)
		return min
	}
	id := len(c.nodes)
	c.nodes = append(c.nodes, nil)
	var zero T
	c.items = append(c.items, zero)
	return id
}

// releaseID tombstones id, making it eligible for reuse by a future insert.
func (c *core[T, D]) releaseID(id int) {
	c.removed.Set(id)
	var zero T
	c.items[id] = zero
}

// rollbackAlloc undoes allocID for an insert that failed before it was
// committed to the graph (e.g. the distance function panicked mid-INSERT).
// If id is the most recently appended slot it is truncated away entirely
// rather than tombstoned, so a failed insert never leaks an id into the
// free list ahead of ids that were never allocated at all. Otherwise the
// slot is cleared back to the nil-node state allocID handed out (so isLive
// reports false, exactly as for an id that was never installed) and added
// to the free list for reuse.
func (c *core[T, D]) rollbackAlloc(id int) {
	if id == len(c.nodes)-1 {
		c.nodes = c.nodes[:id]
		c.items = c.items[:id]
		return
	}
	c.nodes[id] = nil
	var zero T
	c.items[id] = zero
	c.removed.Set(id)
}

func (c *core[T, D]) isLive(id int) bool {
	return id >= 0 && id < len(c.nodes) && c.nodes[id] != nil && !c.nodes[id].removed
}

func (c *core[T, D]) nodeAt(id int) *node {
	return c.nodes[id]
}

func (c *core[T, D]) itemAt(id int) T {
	return c.items[id]
}

func (c *core[T, D]) dist(a, b T) D {
	return c.distFunc(a, b)
}

// distBetween measures the distance between two arena items by id.
func (c *core[T, D]) distBetween(a, b int) D {
	return c.distFunc(c.items[a], c.items[b])
}

// liveCount returns the number of non-tombstoned nodes, used by the facade
// for reporting and by the optimizer to size refinement batches.
func (c *core[T, D]) liveCount() int {
	return len(c.nodes) - c.removed.Len()
}

// connect adds a symmetric edge between a and b at layer, pruning a's and
// b's neighbor lists down to mForLayer(layer) with the selector if either
// now exceeds it. This is the only way connections/inConnections may be
// mutated outside of node construction and removal, keeping invariant 2
// (symmetry) and invariant 3 (degree bound) together in one place.
func (c *core[T, D]) connect(sel *neighborSelector[T, D], a, b, layer int) {
	na, nb := c.nodes[a], c.nodes[b]
	if !containsID(na.connections[layer], b) {
		na.connections[layer] = append(na.connections[layer], b)
		nb.inConnections[layer] = append(nb.inConnections[layer], a)
	}
	if !containsID(nb.connections[layer], a) {
		nb.connections[layer] = append(nb.connections[layer], a)
		na.inConnections[layer] = append(na.inConnections[layer], b)
	}
	c.shrinkIfNeeded(sel, a, layer)
	c.shrinkIfNeeded(sel, b, layer)
}

// shrinkIfNeeded re-selects id's outgoing neighbors at layer down to the
// layer's degree bound when connect has pushed it over, keeping the
// dropped neighbors' inConnections lists in sync.
func (c *core[T, D]) shrinkIfNeeded(sel *neighborSelector[T, D], id, layer int) {
	n := c.nodes[id]
	limit := c.params.mForLayer(layer)
	if len(n.connections[layer]) <= limit {
		return
	}
	costs := newTravelingCostsToNode(c, id)
	candidates := make([]candidate[D], len(n.connections[layer]))
	for i, nb := range n.connections[layer] {
		candidates[i] = candidate[D]{id: nb, dist: costs.from(nb)}
	}
	kept := sel.selectBestForConnecting(c, candidates, costs, layer, limit)
	keptSet := make(map[int]bool, len(kept))
	for _, k := range kept {
		keptSet[k.id] = true
	}
	for _, nb := range n.connections[layer] {
		if keptSet[nb] {
			continue
		}
		c.nodes[nb].inConnections[layer] = removeID(c.nodes[nb].inConnections[layer], id)
	}
	newConns := make([]int, 0, len(kept))
	for _, k := range kept {
		newConns = append(newConns, k.id)
	}
	n.connections[layer] = newConns
}

// disconnect removes the symmetric edge between a and b at layer, if any.
func (c *core[T, D]) disconnect(a, b, layer int) {
	c.nodes[a].connections[layer] = removeID(c.nodes[a].connections[layer], b)
	c.nodes[b].inConnections[layer] = removeID(c.nodes[b].inConnections[layer], a)
	c.nodes[b].connections[layer] = removeID(c.nodes[b].connections[layer], a)
	c.nodes[a].inConnections[layer] = removeID(c.nodes[a].inConnections[layer], b)
}
