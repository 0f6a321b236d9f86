package asymmetry

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/pkg/formulas"
)

// MarketMetrics holds the derivatives-market readings for one symbol,
// each with the reference history its deviation is measured against.
type MarketMetrics struct {
	OpenInterestChange float64   `json:"open_interest_change"`
	OpenInterestHist   []float64 `json:"-"`
	FundingRate        float64   `json:"funding_rate"`
	FundingHist        []float64 `json:"-"`
	Basis              float64   `json:"basis"`
	BasisHist          []float64 `json:"-"`
	DepthImbalance     float64   `json:"depth_imbalance"`
	DepthHist          []float64 `json:"-"`
}

// Result is the asymmetry assessment for one plan.
// Asymmetry scales the budget; it never vetoes.
type Result struct {
	ZScores       map[string]float64 `json:"z_scores"`
	CombinedScore float64            `json:"combined_score"` // mean(|z|)
	ScalingFactor float64            `json:"scaling_factor"` // budget multiplier
}

// Engine detects crypto market asymmetries (crowding, funding stress,
// basis dislocation, one-sided books) worth leaning into.
type Engine struct {
	maxScaling float64
	log        zerolog.Logger
}

// NewEngine creates an asymmetry engine
func NewEngine(maxScaling float64, log zerolog.Logger) *Engine {
	return &Engine{
		maxScaling: maxScaling,
		log:        log.With().Str("engine", "asymmetry").Logger(),
	}
}

// Evaluate computes per-metric z-scores against their histories,
// a combined score, and the resulting budget scaling factor:
//
//	combined = mean(|z_i|)
//	scaling  = 1 + min(combined*0.5, maxScaling-1)
func (e *Engine) Evaluate(m MarketMetrics) (Result, error) {
	if len(m.OpenInterestHist) < 2 && len(m.FundingHist) < 2 &&
		len(m.BasisHist) < 2 && len(m.DepthHist) < 2 {
		return Result{}, fmt.Errorf("no reference history for any asymmetry metric")
	}

	zScores := map[string]float64{
		"open_interest":   formulas.ZScore(m.OpenInterestChange, m.OpenInterestHist),
		"funding_rate":    formulas.ZScore(m.FundingRate, m.FundingHist),
		"basis":           formulas.ZScore(m.Basis, m.BasisHist),
		"depth_imbalance": formulas.ZScore(m.DepthImbalance, m.DepthHist),
	}

	var sum float64
	for _, z := range zScores {
		sum += math.Abs(z)
	}
	combined := sum / float64(len(zScores))

	scaling := 1.0 + math.Min(combined*0.5, e.maxScaling-1.0)

	e.log.Debug().
		Float64("combined_score", combined).
		Float64("scaling_factor", scaling).
		Msg("Asymmetry evaluated")

	return Result{
		ZScores:       zScores,
		CombinedScore: combined,
		ScalingFactor: scaling,
	}, nil
}
