package hnsw

import "cmp"

// travelingCosts (C3) binds "distance to a fixed destination" so callers
// walking a frontier never re-derive which item they're measuring against.
// destID is the destination's arena id when it has one, or the sentinel -1
// when the destination is a bare query item supplied to KNNSearch that was
// never inserted into the arena. The sentinel must never be written into a
// connections list. When destID names a node, from(destID) returns zero
// without calling the distance function; the sentinel matches no id, so for
// a query every call goes through the distance function.
type travelingCosts[T any, D cmp.Ordered] struct {
	destination T
	destID      int
	distFunc    DistanceFunc[T, D]
	items       *[]T
}

func newTravelingCostsToNode[T any, D cmp.Ordered](c *core[T, D], destID int) *travelingCosts[T, D] {
	return &travelingCosts[T, D]{
		destination: c.items[destID],
		destID:      destID,
		distFunc:    c.distFunc,
		items:       &c.items,
	}
}

func newTravelingCostsToQuery[T any, D cmp.Ordered](c *core[T, D], query T) *travelingCosts[T, D] {
	return &travelingCosts[T, D]{
		destination: query,
		destID:      -1,
		distFunc:    c.distFunc,
		items:       &c.items,
	}
}

// from returns d(destination, items[x]).
func (tc *travelingCosts[T, D]) from(x int) D {
	if x == tc.destID {
		var zero D
		return zero
	}
	return tc.distFunc(tc.destination, (*tc.items)[x])
}
