// Command hnswbench builds a graph over random vectors and reports insert
// throughput and search recall/latency against a brute-force baseline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/sanonone/hnswgraph/pkg/hnsw"
	"github.com/sanonone/hnswgraph/pkg/hnsw/prometheusreporter"
	"github.com/sanonone/hnswgraph/pkg/vecdist"
)

type benchConfig struct {
	Parameters  hnsw.Parameters      `yaml:"parameters"`
	Optimizer   hnsw.OptimizerConfig `yaml:"optimizer"`
	Dimensions  int                  `yaml:"dimensions"`
	NumItems    int                  `yaml:"num_items"`
	NumQueries  int                  `yaml:"num_queries"`
	K           int                  `yaml:"k"`
	Seed        int64                `yaml:"seed"`
	MetricsAddr string               `yaml:"metrics_addr"`
}

func defaultBenchConfig() benchConfig {
	return benchConfig{
		Parameters: hnsw.DefaultParameters(),
		Optimizer:  hnsw.DefaultOptimizerConfig(),
		Dimensions: 128,
		NumItems:   10000,
		NumQueries: 200,
		K:          10,
		Seed:       42,
	}
}

func loadConfig(path string) (benchConfig, error) {
	cfg := defaultBenchConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func randomVector(rng *rand.Rand, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

func bruteForceNearest(items [][]float32, query []float32, k int) []int {
	type hit struct {
		id   int
		dist float32
	}
	hits := make([]hit, len(items))
	for i, it := range items {
		hits[i] = hit{id: i, dist: vecdist.Float32SquaredEuclidean(query, it)}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].dist < hits[b].dist })
	if len(hits) > k {
		hits = hits[:k]
	}
	ids := make([]int, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}

func main() {
	configPath := flag.String("config", "", "path to a YAML bench config")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("hnswbench: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	graph, err := hnsw.New(vecdist.Float32SquaredEuclidean, rand.New(rand.NewSource(cfg.Seed)), cfg.Parameters)
	if err != nil {
		log.Fatalf("hnswbench: %v", err)
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		graph.SetReporter(prometheusreporter.New(reg, "hnswbench"))
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr}
		go func() {
			log.Printf("hnswbench: serving metrics on %s", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("hnswbench: metrics server stopped: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			server.Close()
		}()
	}

	opt := hnsw.NewOptimizer(graph, cfg.Optimizer, nil)
	opt.Start(ctx)
	defer opt.Stop()

	rng := rand.New(rand.NewSource(cfg.Seed))
	items := make([][]float32, cfg.NumItems)
	for i := range items {
		items[i] = randomVector(rng, cfg.Dimensions)
	}

	start := time.Now()
	ids := graph.AddItems(items, func(done int) {
		if done%1000 == 0 {
			log.Printf("hnswbench: inserted %d/%d", done, len(items))
		}
	})
	log.Printf("hnswbench: inserted %d items in %s", len(ids), time.Since(start))

	hits := 0
	searchStart := time.Now()
	for q := 0; q < cfg.NumQueries; q++ {
		query := randomVector(rng, cfg.Dimensions)
		want := bruteForceNearest(items, query, cfg.K)
		gotResults, err := graph.KNNSearch(ctx, query, cfg.K, nil)
		if err != nil {
			log.Fatalf("hnswbench: search failed: %v", err)
		}
		wantSet := make(map[int]bool, len(want))
		for _, id := range want {
			wantSet[id] = true
		}
		for _, r := range gotResults {
			if wantSet[r.ID] {
				hits++
			}
		}
	}
	elapsed := time.Since(searchStart)
	recall := float64(hits) / float64(cfg.NumQueries*cfg.K)
	log.Printf("hnswbench: recall@%d=%.4f over %d queries in %s", cfg.K, recall, cfg.NumQueries, elapsed)
}
