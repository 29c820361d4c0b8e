package hnsw

import (
	"context"
	"math/rand"
	"os"
	"runtime/pprof"
	"sync"
	"testing"
)

// TestConcurrentSearchDuringWrites runs KNNSearch readers against a graph
// that a separate goroutine is concurrently inserting into (§8 scenario 5).
// The facade's RWMutex serializes actual structural edits against readers,
// so this does not exercise graphChanged-triggered retries directly, but it
// does exercise the engine's read path under the race detector while writes
// are continuously landing, and guards against deadlock between the two.
func TestConcurrentSearchDuringWrites(t *testing.T) {
	g := newTestGraph(t, 106)
	seed := generateVectors(107, 500, 16)
	g.AddItems(seed, nil)

	writerVecs := generateVectors(108, 200, 16)
	query := seed[0]

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, v := range writerVecs {
			g.AddItems([][]float32{v}, nil)
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := g.KNNSearch(context.Background(), query, 5, nil); err != nil {
					t.Errorf("KNNSearch: %v", err)
				}
			}
		}()
	}
	wg.Wait()
}

// TestLargeBatchInsertionForProfiling inserts a realistic-scale corpus under
// a CPU profile, written to insert_cpu.prof in the test's working directory
// (the package directory). It is skipped under
// -short since it exists to produce a profile to inspect, not to assert a
// behavior.
func TestLargeBatchInsertionForProfiling(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large-batch profiling run in -short mode")
	}

	f, err := os.Create("insert_cpu.prof")
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	defer f.Close()

	if err := pprof.StartCPUProfile(f); err != nil {
		t.Fatalf("start profile: %v", err)
	}
	defer pprof.StopCPUProfile()

	g := newTestGraph(t, 7)
	vecs := generateVectors(77, 100000, 64)
	ids := g.AddItems(vecs, nil)
	if len(ids) != len(vecs) {
		t.Fatalf("inserted %d ids, want %d", len(ids), len(vecs))
	}
}

func BenchmarkInsert(b *testing.B) {
	vecs := generateVectors(1, b.N, 128)
	g, err := New[[]float32, float32](squaredEuclidean, rand.New(rand.NewSource(2)), DefaultParameters())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	g.AddItems(vecs, nil)
}

func BenchmarkKNNSearch(b *testing.B) {
	g, err := New[[]float32, float32](squaredEuclidean, rand.New(rand.NewSource(3)), DefaultParameters())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	vecs := generateVectors(4, 20000, 128)
	g.AddItems(vecs, nil)
	query := generateVectors(5, 1, 128)[0]

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.KNNSearch(context.Background(), query, 10, nil); err != nil {
			b.Fatalf("KNNSearch: %v", err)
		}
	}
}

func BenchmarkConcurrentKNNSearch(b *testing.B) {
	g, err := New[[]float32, float32](squaredEuclidean, rand.New(rand.NewSource(6)), DefaultParameters())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	vecs := generateVectors(7, 20000, 128)
	g.AddItems(vecs, nil)
	query := generateVectors(8, 1, 128)[0]

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := g.KNNSearch(context.Background(), query, 10, nil); err != nil {
				b.Fatalf("KNNSearch: %v", err)
			}
		}
	})
}
