package hnsw

import (
	"cmp"
	"context"
	"log/slog"
	"time"
)

// Optimizer (C11) periodically re-optimizes existing connections in the
// background. This is a distinct concern from the eager, delete-triggered
// local repair in engine.repairNode: repair restores the degree bound right
// after a removal, while Refine revisits still-healthy nodes on a timer to
// give them a chance to discover shortcuts that greedy insertion order
// missed. Disabled by default (OptimizerConfig.Enabled).
type Optimizer[T any, D cmp.Ordered] struct {
	graph  *Graph[T, D]
	config OptimizerConfig
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOptimizer wires a background refinement loop to graph. Call Start to
// begin running it and Stop to end it; constructing one does not start it.
func NewOptimizer[T any, D cmp.Ordered](graph *Graph[T, D], config OptimizerConfig, logger *slog.Logger) *Optimizer[T, D] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer[T, D]{graph: graph, config: config, logger: logger}
}

// Start launches the periodic refine loop in its own goroutine. No-op if
// config.Enabled is false.
func (o *Optimizer[T, D]) Start(ctx context.Context) {
	if !o.config.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.loop(ctx)
}

// Stop cancels the refine loop and waits for any in-flight cycle to finish.
func (o *Optimizer[T, D]) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
}

func (o *Optimizer[T, D]) loop(ctx context.Context) {
	defer close(o.done)
	ticker := time.NewTicker(time.Duration(o.config.Interval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refineOnce()
		}
	}
}

// refineOnce re-selects connections for up to BatchSize live nodes, walking
// the arena in id order from id 0 on every cycle. It keeps no position
// between cycles, so live nodes beyond the first BatchSize are not refined.
func (o *Optimizer[T, D]) refineOnce() {
	o.graph.mu.Lock()
	defer o.graph.mu.Unlock()

	c := o.graph.core
	e := o.graph.engine
	pruning := o.config.ConstructionPruning
	if pruning == 0 {
		pruning = c.params.ConstructionPruning
	}

	ls := e.acquireSearcher()
	defer e.releaseSearcher(ls)

	refined := 0
	for id, n := range c.nodes {
		if refined >= o.config.BatchSize {
			break
		}
		if n == nil || n.removed {
			continue
		}
		o.refineNode(ls, id, n, pruning)
		refined++
	}
	o.logger.Debug("hnsw optimizer refine cycle complete", "nodes_refined", refined)
}

// refineNode re-searches the graph from the current entry point around id
// and lets the selector reconsider id's connections against that fresher
// candidate set, merged with id's current neighbors so a strictly better
// set never loses to a stale one.
func (o *Optimizer[T, D]) refineNode(ls *layerSearcher[T, D], id int, n *node, pruning int) {
	c := o.graph.core
	e := o.graph.engine
	if e.entryPoint < 0 {
		return
	}
	costs := newTravelingCostsToNode(c, id)
	for l := 0; l <= n.maxLayer; l++ {
		results, err := ls.search(context.Background(), c, costs, []int{e.entryPoint}, pruning, l, e.version.Load(), e.version.Load, nil)
		if err != nil {
			continue
		}
		candidates := make([]candidate[D], 0, len(results)+len(n.connections[l]))
		for _, r := range results {
			if r.id != id {
				candidates = append(candidates, r)
			}
		}
		for _, nb := range n.connections[l] {
			candidates = append(candidates, candidate[D]{id: nb, dist: costs.from(nb)})
		}
		selected := e.selector.selectBestForConnecting(c, candidates, costs, l, c.params.mForLayer(l))
		for _, nb := range append([]int(nil), n.connections[l]...) {
			c.disconnect(id, nb, l)
		}
		for _, s := range selected {
			c.connect(e.selector, id, s.id, l)
		}
	}
	e.version.Add(1)
}
