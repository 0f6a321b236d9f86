package curation

import (
	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/modules/asymmetry"
)

// EvalContext carries the point-in-time inputs shared by every curator.
// It is assembled once per evaluation and never mutated.
type EvalContext struct {
	Snapshot domain.PortfolioSnapshot
	Closes   map[string][]float64 // recent daily closes per symbol
	Metrics  asymmetry.MarketMetrics
}

// Curator is an independent scoring component evaluating one dimension
// of a candidate plan. Implementations must be pure functions over the
// plan and context: no shared mutable state, safe to run in parallel.
type Curator interface {
	ID() string
	Evaluate(plan domain.TradingPlan, ec EvalContext) (domain.CuratorContribution, error)
}

// RegistryEntry pairs a curator with its voting weight
type RegistryEntry struct {
	Curator Curator
	Weight  float64 // [0,1]
}

// Registry holds the weighted set of curators consulted per evaluation
type Registry struct {
	entries []RegistryEntry
}

// NewRegistry creates an empty curator registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a curator with the given weight
func (r *Registry) Register(c Curator, weight float64) {
	r.entries = append(r.entries, RegistryEntry{Curator: c, Weight: weight})
}

// Entries returns the registered curators in registration order
func (r *Registry) Entries() []RegistryEntry {
	return r.entries
}

// Len returns the number of registered curators
func (r *Registry) Len() int {
	return len(r.entries)
}
