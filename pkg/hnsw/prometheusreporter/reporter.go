// Package prometheusreporter adapts hnsw.Reporter to Prometheus metrics.
package prometheusreporter

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reporter implements hnsw.Reporter, recording structural and search
// activity as Prometheus metrics. It is not imported by the hnsw package
// itself, keeping the core graph engine free of an instrumentation
// dependency.
type Reporter struct {
	inserts          prometheus.Counter
	removals         prometheus.Counter
	entryChanges     prometheus.Counter
	entryPointLevel  prometheus.Gauge
	searchDurations  *prometheus.HistogramVec
}

// New registers Reporter's metrics with reg (pass prometheus.DefaultRegisterer
// for the global registry) under namespace.
func New(reg prometheus.Registerer, namespace string) *Reporter {
	factory := promauto.With(reg)
	return &Reporter{
		inserts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hnsw_items_inserted_total",
			Help:      "Total items inserted into the graph.",
		}),
		removals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hnsw_items_removed_total",
			Help:      "Total items removed from the graph.",
		}),
		entryChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hnsw_entry_point_changes_total",
			Help:      "Total times the graph's entry point changed.",
		}),
		entryPointLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hnsw_entry_point_level",
			Help:      "Current maxLayer of the graph's entry point.",
		}),
		searchDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hnsw_search_duration_seconds",
			Help:      "KNNSearch latency in seconds, labeled by k.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"k"}),
	}
}

func (r *Reporter) ItemInserted(id int, layer int) { r.inserts.Inc() }
func (r *Reporter) ItemRemoved(id int)             { r.removals.Inc() }

func (r *Reporter) EntryPointChanged(id int, layer int) {
	r.entryChanges.Inc()
	r.entryPointLevel.Set(float64(layer))
}

func (r *Reporter) SearchCompleted(k int, duration time.Duration) {
	r.searchDurations.WithLabelValues(strconv.Itoa(k)).Observe(duration.Seconds())
}
