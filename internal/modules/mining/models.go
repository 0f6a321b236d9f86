package mining

import (
	"math"
	"time"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/pkg/formulas"
)

// Braid is the running aggregate over all events sharing a pattern,
// action, and scope subset. Statistics update online; nothing is ever
// recomputed from full history.
type Braid struct {
	ID         int64                 `json:"id"`
	PatternKey string                `json:"pattern_key"`
	Action     domain.ActionCategory `json:"action_category"`
	ScopeKey   string                `json:"scope_key"`
	Scope      domain.Scope          `json:"scope"`
	N          int64                 `json:"n"`
	SumRR      float64               `json:"sum_rr"`
	SumRR2     float64               `json:"sum_rr2"`
	EdgeRaw    float64               `json:"edge_raw"`
	FirstSeen  time.Time             `json:"first_seen"`
	LastSeen   time.Time             `json:"last_seen"`
}

// AvgRR returns the mean realized risk/reward
func (b Braid) AvgRR() float64 {
	if b.N == 0 {
		return 0
	}
	return b.SumRR / float64(b.N)
}

// Variance returns the population variance of realized R/R, derived
// from the running moments. Clamped at zero against rounding drift.
func (b Braid) Variance() float64 {
	if b.N == 0 {
		return 0
	}
	n := float64(b.N)
	mean := b.SumRR / n
	return math.Max(0, b.SumRR2/n-mean*mean)
}

// EdgeParams configures the edge_raw computation
type EdgeParams struct {
	// RegimeWeights scale edge by regime value; missing regimes get 1.0.
	RegimeWeights map[string]float64
	// ReferenceN is the sample count at which recurrence saturates.
	ReferenceN float64
	// StalenessHalfLife controls how fast time efficiency decays with
	// the age of the braid's most recent event.
	StalenessHalfLife time.Duration
}

// DefaultEdgeParams returns the standard edge configuration
func DefaultEdgeParams() EdgeParams {
	return EdgeParams{
		RegimeWeights: map[string]float64{
			"bull":     1.0,
			"bear":     0.9,
			"sideways": 0.8,
			"crisis":   0.6,
		},
		ReferenceN:        50,
		StalenessHalfLife: 30 * 24 * time.Hour,
	}
}

// ComputeEdgeRaw derives the braid's raw edge: a regime-weighted blend
// of average R/R, time efficiency, field coherence, and recurrence.
// All four terms live in [0,1], so edge_raw is bounded by the regime
// weight.
func (b Braid) ComputeEdgeRaw(p EdgeParams, now time.Time) float64 {
	if b.N == 0 {
		return 0
	}

	// tanh squashes avg R/R into (-1,1); shift to [0,1] so a zero-edge
	// pattern sits at 0.5.
	rrTerm := (math.Tanh(b.AvgRR()/2) + 1) / 2

	timeEff := 1.0
	if p.StalenessHalfLife > 0 && now.After(b.LastSeen) {
		age := now.Sub(b.LastSeen)
		timeEff = math.Pow(0.5, age.Hours()/p.StalenessHalfLife.Hours())
	}

	coherence := 1.0 / (1.0 + b.Variance())

	nRef := p.ReferenceN
	if nRef <= 0 {
		nRef = 50
	}
	recurrence := formulas.Clip(math.Log1p(float64(b.N))/math.Log1p(nRef), 0, 1)

	weight := 1.0
	if regime, ok := b.Scope.Get(domain.DimRegime); ok {
		if w, found := p.RegimeWeights[regime]; found {
			weight = w
		}
	}

	return weight * (0.40*rrTerm + 0.20*timeEff + 0.20*coherence + 0.20*recurrence)
}

// EdgeSnapshot is one recorded observation of a braid's edge over time
type EdgeSnapshot struct {
	BraidID int64     `json:"braid_id"`
	EdgeRaw float64   `json:"edge_raw"`
	TakenAt time.Time `json:"taken_at"`
}
