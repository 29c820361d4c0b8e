package hnsw

import "cmp"

// candidate pairs a node id with its distance to some fixed destination.
// Ties are broken by id to keep heap order (and therefore search results)
// deterministic for a fixed insert order and RNG seed.
type candidate[D cmp.Ordered] struct {
	id   int
	dist D
}

func less[D cmp.Ordered](a, b candidate[D]) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

// binaryHeap is an implicit binary heap over a contiguous buffer (C1). It is
// parameterized by order: minOrder keeps the closest candidate on top,
// maxOrder keeps the farthest. The zero value is not usable; construct with
// newBinaryHeap so the backing buffer can be pre-sized once and reused
// across many SEARCH-LAYER calls without further allocation.
type binaryHeap[D cmp.Ordered] struct {
	buf   []candidate[D]
	order heapOrder
}

type heapOrder int8

const (
	minOrder heapOrder = iota
	maxOrder
)

func newBinaryHeap[D cmp.Ordered](order heapOrder, capacityHint int) *binaryHeap[D] {
	return &binaryHeap[D]{
		buf:   make([]candidate[D], 0, capacityHint),
		order: order,
	}
}

// reset clears the heap for reuse without releasing the backing array.
func (h *binaryHeap[D]) reset() {
	h.buf = h.buf[:0]
}

func (h *binaryHeap[D]) Len() int { return len(h.buf) }

func (h *binaryHeap[D]) less(i, j int) bool {
	if h.order == minOrder {
		return less(h.buf[i], h.buf[j])
	}
	return less(h.buf[j], h.buf[i])
}

func (h *binaryHeap[D]) swap(i, j int) {
	h.buf[i], h.buf[j] = h.buf[j], h.buf[i]
}

// push adds x and sifts it up.
func (h *binaryHeap[D]) push(x candidate[D]) {
	h.buf = append(h.buf, x)
	i := len(h.buf) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

// pop removes and returns the top of the heap, swapping the last element
// into the root and sifting it down.
func (h *binaryHeap[D]) pop() candidate[D] {
	top := h.buf[0]
	last := len(h.buf) - 1
	h.buf[0] = h.buf[last]
	h.buf = h.buf[:last]
	h.siftDown(0)
	return top
}

func (h *binaryHeap[D]) siftDown(i int) {
	n := len(h.buf)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

// peek returns the top of the heap without removing it.
func (h *binaryHeap[D]) peek() candidate[D] {
	return h.buf[0]
}

// build bulk-initializes the heap from an existing unordered buffer in
// O(n), used when seeding the candidates heap from expandCandidates (§4.5).
func (h *binaryHeap[D]) build(items []candidate[D]) {
	h.buf = append(h.buf[:0], items...)
	for i := len(h.buf)/2 - 1; i >= 0; i-- {
		h.siftDown(i)
	}
}
