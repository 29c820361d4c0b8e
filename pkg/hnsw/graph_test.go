package hnsw

import (
	"bytes"
	"context"
	"math/rand"
	"sort"
	"testing"
)

func squaredEuclidean(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func generateVectors(seed int64, n, dims int) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vecs[i] = v
	}
	return vecs
}

func newTestGraph(t *testing.T, seed int64) *Graph[[]float32, float32] {
	t.Helper()
	g, err := New[[]float32, float32](squaredEuclidean, rand.New(rand.NewSource(seed)), DefaultParameters())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestInsertAndSearchFindsSelf(t *testing.T) {
	g := newTestGraph(t, 1)
	vecs := generateVectors(2, 500, 16)
	ids := g.AddItems(vecs, nil)

	for i, id := range ids {
		results, err := g.KNNSearch(context.Background(), vecs[i], 1, nil)
		if err != nil {
			t.Fatalf("KNNSearch: %v", err)
		}
		if len(results) == 0 || results[0].ID != id {
			t.Errorf("item %d: expected self (%d) as nearest, got %+v", i, id, results)
		}
	}
}

func TestDegreeBound(t *testing.T) {
	g := newTestGraph(t, 3)
	g.AddItems(generateVectors(4, 1000, 8), nil)

	for id, n := range g.core.nodes {
		if n == nil || n.removed {
			continue
		}
		for l, conns := range n.connections {
			if limit := g.params.mForLayer(l); len(conns) > limit {
				t.Errorf("node %d layer %d: degree %d exceeds limit %d", id, l, len(conns), limit)
			}
		}
	}
}

func TestConnectionsSymmetric(t *testing.T) {
	g := newTestGraph(t, 5)
	g.AddItems(generateVectors(6, 300, 8), nil)

	for id, n := range g.core.nodes {
		if n == nil || n.removed {
			continue
		}
		for l, conns := range n.connections {
			for _, nb := range conns {
				if !containsID(g.core.nodes[nb].inConnections[l], id) {
					t.Errorf("node %d -> %d at layer %d missing reciprocal inConnections entry", id, nb, l)
				}
			}
		}
	}
}

func TestEntryPointIsMaxLayerLiveNode(t *testing.T) {
	g := newTestGraph(t, 7)
	g.AddItems(generateVectors(8, 400, 8), nil)

	want := -1
	for id, n := range g.core.nodes {
		if n == nil || n.removed {
			continue
		}
		if want == -1 || n.maxLayer > g.core.nodes[want].maxLayer {
			want = id
		}
	}
	if g.engine.maxLayer != g.core.nodes[want].maxLayer {
		t.Errorf("entry point maxLayer = %d, want %d", g.engine.maxLayer, g.core.nodes[want].maxLayer)
	}
	if !g.core.isLive(g.engine.entryPoint) || g.core.nodes[g.engine.entryPoint].maxLayer != g.core.nodes[want].maxLayer {
		t.Errorf("entry point %d is not a live node of maxLayer %d", g.engine.entryPoint, g.core.nodes[want].maxLayer)
	}
}

func TestRemoveClearsAdjacencyAndRepairsNeighbors(t *testing.T) {
	g := newTestGraph(t, 9)
	ids := g.AddItems(generateVectors(10, 300, 8), nil)

	victim := ids[len(ids)/2]
	neighbors := append([]int(nil), g.core.nodes[victim].connections[0]...)

	if err := g.RemoveItem(victim); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if g.core.isLive(victim) {
		t.Errorf("victim %d still live after removal", victim)
	}
	for l, conns := range g.core.nodes[victim].connections {
		if len(conns) != 0 {
			t.Errorf("removed node still has connections at layer %d: %v", l, conns)
		}
	}
	for _, nb := range neighbors {
		if containsID(g.core.nodes[nb].connections[0], victim) {
			t.Errorf("neighbor %d still references removed node %d", nb, victim)
		}
		if limit := g.params.mForLayer(0); 2*len(g.core.nodes[nb].connections[0]) < limit {
			t.Errorf("neighbor %d left with %d connections, below half the layer-0 bound %d", nb, len(g.core.nodes[nb].connections[0]), limit)
		}
	}
}

func TestRemovedIDsNotInAdjacency(t *testing.T) {
	g := newTestGraph(t, 11)
	ids := g.AddItems(generateVectors(12, 500, 8), nil)

	for i := 0; i < 50; i++ {
		if err := g.RemoveItem(ids[i]); err != nil {
			t.Fatalf("RemoveItem: %v", err)
		}
	}
	for id, n := range g.core.nodes {
		if n == nil {
			continue
		}
		for l, conns := range n.connections {
			for _, nb := range conns {
				if !g.core.isLive(nb) {
					t.Errorf("node %d layer %d references non-live id %d", id, l, nb)
				}
			}
		}
	}
}

func TestEntryPointSurvivesIsolation(t *testing.T) {
	g := newTestGraph(t, 13)
	ids := g.AddItems(generateVectors(14, 50, 8), nil)

	for _, id := range ids[:len(ids)-1] {
		_ = g.RemoveItem(id)
	}
	if g.engine.entryPoint < 0 {
		t.Fatal("graph is nonempty but has no entry point")
	}
	if !g.core.isLive(g.engine.entryPoint) {
		t.Fatalf("entry point %d is not live", g.engine.entryPoint)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	g := newTestGraph(t, 15)
	vecs := generateVectors(16, 200, 8)
	g.AddItems(vecs, nil)

	var buf bytes.Buffer
	if err := g.SerializeGraph(&buf); err != nil {
		t.Fatalf("SerializeGraph: %v", err)
	}

	g2, err := DeserializeGraph[[]float32, float32](vecs, squaredEuclidean, rand.New(rand.NewSource(1)), &buf)
	if err != nil {
		t.Fatalf("DeserializeGraph: %v", err)
	}
	if g2.engine.entryPoint != g.engine.entryPoint || g2.engine.maxLayer != g.engine.maxLayer {
		t.Errorf("entry point mismatch: got (%d,%d), want (%d,%d)", g2.engine.entryPoint, g2.engine.maxLayer, g.engine.entryPoint, g.engine.maxLayer)
	}
	for id, n := range g.core.nodes {
		n2 := g2.core.nodes[id]
		if n.removed != n2.removed {
			t.Fatalf("node %d removed mismatch", id)
		}
		if n.removed {
			continue
		}
		for l := range n.connections {
			if len(n.connections[l]) != len(n2.connections[l]) {
				t.Errorf("node %d layer %d connection count mismatch: %d vs %d", id, l, len(n.connections[l]), len(n2.connections[l]))
			}
		}
	}
}

func TestDeterministicUnderFixedSeed(t *testing.T) {
	vecs := generateVectors(20, 400, 8)

	g1 := newTestGraph(t, 42)
	g1.AddItems(vecs, nil)
	g2 := newTestGraph(t, 42)
	g2.AddItems(vecs, nil)

	query := generateVectors(21, 1, 8)[0]
	r1, err := g1.KNNSearch(context.Background(), query, 5, nil)
	if err != nil {
		t.Fatalf("KNNSearch: %v", err)
	}
	r2, err := g2.KNNSearch(context.Background(), query, 5, nil)
	if err != nil {
		t.Fatalf("KNNSearch: %v", err)
	}
	if len(r1) != len(r2) {
		t.Fatalf("result length mismatch: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i].ID != r2[i].ID {
			t.Errorf("result %d differs: %d vs %d", i, r1[i].ID, r2[i].ID)
		}
	}
}

func TestSelfRecall(t *testing.T) {
	g := newTestGraph(t, 99)
	vecs := generateVectors(100, 2000, 16)
	ids := g.AddItems(vecs, nil)

	recall, err := Recall(g, ids, vecs)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if recall < 0.995 {
		t.Errorf("self-recall = %.4f, want >= 0.995", recall)
	}
}

func TestCancellationReturnsPartialResultNoError(t *testing.T) {
	g := newTestGraph(t, 101)
	vecs := generateVectors(102, 100, 8)
	g.AddItems(vecs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := g.KNNSearch(ctx, vecs[0], 5, nil)
	if err != nil {
		t.Fatalf("KNNSearch under a cancelled context returned an error, want nil: %v", err)
	}
	if len(results) > 5 {
		t.Fatalf("got %d results, want at most k=5", len(results))
	}
}

func TestRemoveUnknownID(t *testing.T) {
	g := newTestGraph(t, 103)
	if err := g.RemoveItem(0); err == nil {
		t.Fatal("expected ErrUnknownID for empty graph")
	}
}

func TestInvalidParameters(t *testing.T) {
	p := DefaultParameters()
	p.M = 1
	if _, err := New[[]float32, float32](squaredEuclidean, nil, p); err == nil {
		t.Fatal("expected error for M < 2")
	}
}

// TestFilterExcludesIDs excludes more of the nearest neighbors than ef, so
// a naive implementation that filters a fixed-size unfiltered beam
// post-hoc would come back short. The beam must keep expanding past
// excluded candidates (§4.6 step 3) to still find k passing results.
func TestFilterExcludesIDs(t *testing.T) {
	g := newTestGraph(t, 105)
	vecs := generateVectors(106, 300, 8)
	ids := g.AddItems(vecs, nil)

	type ranked struct {
		id   int
		dist float32
	}
	ranks := make([]ranked, len(vecs))
	for i, v := range vecs {
		ranks[i] = ranked{id: ids[i], dist: squaredEuclidean(vecs[0], v)}
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].dist < ranks[j].dist })

	const excludeCount = 30
	const k = 5
	excluded := make(map[int]bool, excludeCount)
	for _, r := range ranks[:excludeCount] {
		excluded[r.id] = true
	}

	results, err := g.KNNSearch(context.Background(), vecs[0], k, func(id int, item []float32) bool {
		return !excluded[id]
	})
	if err != nil {
		t.Fatalf("KNNSearch: %v", err)
	}
	if len(results) != k {
		t.Fatalf("got %d results, want %d (filter excludes the %d nearest neighbors, more than ef)", len(results), k, excludeCount)
	}
	for _, r := range results {
		if excluded[r.ID] {
			t.Errorf("filtered id %d leaked into results", r.ID)
		}
	}
}
