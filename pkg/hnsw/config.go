package hnsw

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SelectorKind names one of the three SELECT-NEIGHBORS variants.
type SelectorKind string

const (
	// SelectorSimple keeps the M nearest candidates (Algorithm 3).
	SelectorSimple SelectorKind = "simple"
	// SelectorHeuristic runs the diversity heuristic with optional
	// expandCandidates/keepPrunedConnections flags (Algorithm 4).
	SelectorHeuristic SelectorKind = "heuristic"
	// SelectorCustom runs the simpler RNG-like diversity rule with no
	// discard reuse (Algorithm 5).
	SelectorCustom SelectorKind = "custom"
)

// Duration wraps time.Duration with JSON decoding that accepts either a
// plain number of nanoseconds or a duration string ("1m", "10s"), so an
// OptimizerConfig loaded from JSON can use either form. Duration has no
// YAML-specific decoding, so YAML input gives it as a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("hnsw: invalid duration %v", v)
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Parameters configures a Graph. See DefaultParameters for the defaults
// named in the parameters table.
type Parameters struct {
	// M is the max out-degree per node per layer above 0; layer 0 allows 2*M.
	M int `json:"m" yaml:"m"`
	// ConstructionPruning is efConstruction, the candidate list size used
	// while inserting.
	ConstructionPruning int `json:"construction_pruning" yaml:"construction_pruning"`
	// MinNN is a lower bound on the ef used during KNNSearch.
	MinNN int `json:"min_nn" yaml:"min_nn"`
	// NeighborHeuristic selects which SELECT-NEIGHBORS variant to use.
	NeighborHeuristic SelectorKind `json:"neighbor_heuristic" yaml:"neighbor_heuristic"`
	// ExpandBestSelection is the heuristic variant's extendCandidates flag.
	ExpandBestSelection bool `json:"expand_best_selection" yaml:"expand_best_selection"`
	// KeepPrunedConnections is the heuristic variant's discard-backfill flag.
	KeepPrunedConnections bool `json:"keep_pruned_connections" yaml:"keep_pruned_connections"`
	// InitialItemsSize hints the arena's initial capacity.
	InitialItemsSize int `json:"initial_items_size" yaml:"initial_items_size"`
}

// DefaultParameters returns the defaults from the parameters table: M=10,
// simple selector, efConstruction=200.
func DefaultParameters() Parameters {
	return Parameters{
		M:                     10,
		ConstructionPruning:   200,
		MinNN:                 0,
		NeighborHeuristic:     SelectorSimple,
		ExpandBestSelection:   false,
		KeepPrunedConnections: false,
		InitialItemsSize:      1024,
	}
}

func (p Parameters) validate() error {
	if p.M < 2 {
		return fmt.Errorf("%w: M must be >= 2, got %d", ErrInvalidParameters, p.M)
	}
	if p.ConstructionPruning < 1 {
		return fmt.Errorf("%w: construction pruning must be >= 1, got %d", ErrInvalidParameters, p.ConstructionPruning)
	}
	switch p.NeighborHeuristic {
	case SelectorSimple, SelectorHeuristic, SelectorCustom:
	default:
		return fmt.Errorf("%w: unknown neighbor heuristic %q", ErrInvalidParameters, p.NeighborHeuristic)
	}
	if p.InitialItemsSize < 0 {
		return fmt.Errorf("%w: initial items size must be >= 0", ErrInvalidParameters)
	}
	return nil
}

func (p Parameters) levelLambda() float64 {
	return 1.0 / math.Log(float64(p.M))
}

func (p Parameters) mForLayer(layer int) int {
	if layer == 0 {
		return 2 * p.M
	}
	return p.M
}

// OptimizerConfig configures the background re-optimization pass (§10.4).
// It is a distinct concern from delete-triggered local repair, which always
// runs eagerly and unconditionally.
type OptimizerConfig struct {
	// Enabled turns the periodic refine loop on.
	Enabled bool `json:"refine_enabled" yaml:"refine_enabled"`
	// Interval between refinement cycles.
	Interval Duration `json:"refine_interval" yaml:"refine_interval"`
	// BatchSize is the number of nodes re-processed per cycle.
	BatchSize int `json:"refine_batch_size" yaml:"refine_batch_size"`
	// ConstructionPruning overrides Parameters.ConstructionPruning for
	// refinement search; 0 means "use the graph's own value".
	ConstructionPruning int `json:"refine_construction_pruning" yaml:"refine_construction_pruning"`
}

// DefaultOptimizerConfig returns background refinement disabled by default.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Enabled:             false,
		Interval:            Duration(30 * time.Second),
		BatchSize:           500,
		ConstructionPruning: 0,
	}
}
