package hnsw

import "time"

// Reporter receives structural and performance events (C10). Graph starts
// with a noopReporter; install a real one with SetReporter. Implementations
// must be safe to call while the Graph's lock is held, since every call
// site here is inside AddItems/RemoveItem (write lock) or KNNSearch (read
// lock, so SearchCompleted may be called from several goroutines at once).
type Reporter interface {
	ItemInserted(id int, layer int)
	ItemRemoved(id int)
	EntryPointChanged(id int, layer int)
	SearchCompleted(k int, duration time.Duration)
}

type noopReporter struct{}

func (noopReporter) ItemInserted(id int, layer int)             {}
func (noopReporter) ItemRemoved(id int)                         {}
func (noopReporter) EntryPointChanged(id int, layer int)        {}
func (noopReporter) SearchCompleted(k int, duration time.Duration) {}
