package hnsw

import (
	"math/rand"
	"sort"
	"testing"
)

func TestBinaryHeapMinOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	h := newBinaryHeap[int](minOrder, 0)
	var want []int
	for i := 0; i < 200; i++ {
		d := rng.Intn(1000)
		want = append(want, d)
		h.push(candidate[int]{id: i, dist: d})
	}
	sort.Ints(want)

	var got []int
	for h.Len() > 0 {
		got = append(got, h.pop().dist)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order mismatch at %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBinaryHeapMaxOrder(t *testing.T) {
	h := newBinaryHeap[int](maxOrder, 0)
	for _, d := range []int{5, 1, 9, 3, 7} {
		h.push(candidate[int]{id: d, dist: d})
	}
	var got []int
	for h.Len() > 0 {
		got = append(got, h.pop().dist)
	}
	want := []int{9, 7, 5, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order mismatch at %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBinaryHeapBuild(t *testing.T) {
	items := []candidate[int]{{id: 0, dist: 5}, {id: 1, dist: 1}, {id: 2, dist: 9}, {id: 3, dist: 3}}
	h := newBinaryHeap[int](minOrder, 0)
	h.build(items)
	if h.peek().dist != 1 {
		t.Fatalf("peek after build = %d, want 1", h.peek().dist)
	}
}

func TestBinaryHeapTieBreakByID(t *testing.T) {
	h := newBinaryHeap[int](minOrder, 0)
	h.push(candidate[int]{id: 5, dist: 1})
	h.push(candidate[int]{id: 2, dist: 1})
	first := h.pop()
	if first.id != 2 {
		t.Fatalf("tie-break: got id %d, want 2", first.id)
	}
}

func TestBinaryHeapReset(t *testing.T) {
	h := newBinaryHeap[int](minOrder, 0)
	h.push(candidate[int]{id: 1, dist: 1})
	h.reset()
	if h.Len() != 0 {
		t.Fatalf("Len after reset = %d, want 0", h.Len())
	}
}
