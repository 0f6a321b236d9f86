package lessons

import (
	"time"

	"github.com/helixtrade/curator/internal/domain"
)

// Status is the lifecycle state of a lesson. Deprecated is terminal:
// a re-emerging pattern mints a new candidate row, preserving an
// auditable history.
type Status string

const (
	StatusCandidate  Status = "candidate"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

// Lever names the decision-path knob a lesson adjusts
type Lever string

const (
	LeverSize       Lever = "size_multiplier"
	LeverAllocation Lever = "allocation_multiplier"
)

// LeverForAction maps an action category onto the lever its lessons
// move: entries and adds shape position sizing, trims and exits shape
// allocation.
func LeverForAction(action domain.ActionCategory) Lever {
	switch action {
	case domain.ActionTrim, domain.ActionExit:
		return LeverAllocation
	default:
		return LeverSize
	}
}

// Effect is a bounded multiplier on a named lever
type Effect struct {
	Lever      Lever   `json:"lever"`
	Multiplier float64 `json:"multiplier"`
}

// Stats carries a lesson's statistical provenance
type Stats struct {
	EdgeRaw         float64 `json:"edge_raw"`
	IncrementalEdge float64 `json:"incremental_edge"`
	AvgRR           float64 `json:"avg_rr"`
	N               int64   `json:"n"`
	DecayHalfLife   float64 `json:"decay_halflife_hours"` // 0 = none measured
	LatentFactorID  int64   `json:"latent_factor_id"`     // 0 = unassigned
}

// Lesson is a validated behavioral adjustment derived from a braid
type Lesson struct {
	ID           int64                 `json:"id"`
	BraidID      int64                 `json:"braid_id"`
	PatternKey   string                `json:"pattern_key"`
	Action       domain.ActionCategory `json:"action_category"`
	Trigger      domain.Scope          `json:"trigger"`
	TriggerKey   string                `json:"trigger_key"`
	Effect       Effect                `json:"effect"`
	Stats        Stats                 `json:"stats"`
	Status       Status                `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	DeprecatedAt *time.Time            `json:"deprecated_at,omitempty"`
}

// AppliesTo reports whether the lesson's trigger is a subset of the
// given scope values.
func (l Lesson) AppliesTo(scope domain.Scope) bool {
	return scope.Contains(l.Trigger)
}

// LatentFactor is a cluster of pattern keys whose outcome sets are
// statistically near-identical.
type LatentFactor struct {
	ID             int64     `json:"id"`
	Representative string    `json:"representative"`
	Members        []string  `json:"members"`
	CreatedAt      time.Time `json:"created_at"`
}
