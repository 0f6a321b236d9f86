package risk

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/pkg/formulas"
)

// Limits holds the hard risk limits that trigger a veto
type Limits struct {
	VaRConfidence      float64
	VaRLimit           float64
	CVaRLimit          float64
	DrawdownLimit      float64
	ConcentrationLimit float64
}

// Assessment is the risk engine's verdict on one plan
type Assessment struct {
	VaR             float64  `json:"var"`
	CVaR            float64  `json:"cvar"`
	MaxDrawdown     float64  `json:"max_drawdown"`
	Concentration   float64  `json:"concentration"`
	Score           float64  `json:"score"`            // [0,1]
	PortfolioImpact float64  `json:"portfolio_impact"` // [0,1], 0.5 = neutral
	HardVeto        bool     `json:"hard_veto"`
	Reasons         []string `json:"reasons,omitempty"`
}

// Engine simulates the portfolio with the candidate position added and
// measures tail risk by historical simulation.
type Engine struct {
	limits Limits
	log    zerolog.Logger
}

// NewEngine creates a risk engine
func NewEngine(limits Limits, log zerolog.Logger) *Engine {
	return &Engine{
		limits: limits,
		log:    log.With().Str("engine", "risk").Logger(),
	}
}

// Evaluate runs the historical simulation. It is a pure function over the
// immutable plan and the point-in-time snapshot.
func (e *Engine) Evaluate(plan domain.TradingPlan, snap domain.PortfolioSnapshot) (Assessment, error) {
	candidateReturns, ok := snap.Returns[plan.Symbol]
	if !ok || len(candidateReturns) < 2 {
		return Assessment{}, fmt.Errorf("no return history for %s", plan.Symbol)
	}

	baseline := e.simulateReturns(snap, domain.TradingPlan{})
	simulated := e.simulateReturns(snap, plan)
	if len(simulated) < 2 {
		return Assessment{}, fmt.Errorf("insufficient overlapping history to simulate %s", plan.Symbol)
	}

	tail := formulas.HistoricalVaR(simulated, e.limits.VaRConfidence)
	drawdown := formulas.MaxDrawdown(cumulativeValue(simulated))
	concentration := e.concentrationWith(snap, plan)

	var reasons []string
	veto := false
	if tail.VaR > e.limits.VaRLimit {
		veto = true
		reasons = append(reasons, fmt.Sprintf("VaR %.4f exceeds limit %.4f", tail.VaR, e.limits.VaRLimit))
	}
	if tail.CVaR > e.limits.CVaRLimit {
		veto = true
		reasons = append(reasons, fmt.Sprintf("CVaR %.4f exceeds limit %.4f", tail.CVaR, e.limits.CVaRLimit))
	}
	if drawdown > e.limits.DrawdownLimit {
		veto = true
		reasons = append(reasons, fmt.Sprintf("simulated drawdown %.2f%% exceeds limit %.2f%%",
			drawdown*100, e.limits.DrawdownLimit*100))
	}
	if concentration > e.limits.ConcentrationLimit {
		veto = true
		reasons = append(reasons, fmt.Sprintf("concentration %.3f exceeds limit %.3f",
			concentration, e.limits.ConcentrationLimit))
	}

	score := e.score(tail, drawdown, concentration)

	// Impact: how much tail risk the candidate adds relative to the
	// baseline portfolio. 0.5 is neutral, below 0.5 means added risk.
	baseTail := formulas.HistoricalVaR(baseline, e.limits.VaRConfidence)
	impact := formulas.Clip(0.5+(baseTail.VaR-tail.VaR)/e.limits.VaRLimit*0.5, 0, 1)

	e.log.Debug().
		Str("symbol", plan.Symbol).
		Float64("var", tail.VaR).
		Float64("cvar", tail.CVaR).
		Float64("score", score).
		Bool("veto", veto).
		Msg("Risk evaluated")

	return Assessment{
		VaR:             tail.VaR,
		CVaR:            tail.CVaR,
		MaxDrawdown:     drawdown,
		Concentration:   concentration,
		Score:           score,
		PortfolioImpact: impact,
		HardVeto:        veto,
		Reasons:         reasons,
	}, nil
}

// simulateReturns builds the daily return series of the portfolio with
// the candidate added (or without it, when plan is zero-valued).
func (e *Engine) simulateReturns(snap domain.PortfolioSnapshot, plan domain.TradingPlan) []float64 {
	// Shortest common history across all constituents.
	length := -1
	consider := func(series []float64) {
		if len(series) == 0 {
			return
		}
		if length < 0 || len(series) < length {
			length = len(series)
		}
	}
	for _, pos := range snap.Positions {
		consider(snap.Returns[pos.Symbol])
	}

	candidateSize := plan.PositionSize
	if candidateSize > 0 {
		consider(snap.Returns[plan.Symbol])
	}
	if length <= 0 {
		return nil
	}

	// Existing weights shrink pro rata to make room for the candidate.
	scale := 1.0 - candidateSize

	combined := make([]float64, length)
	for _, pos := range snap.Positions {
		series := snap.Returns[pos.Symbol]
		if len(series) < length {
			continue
		}
		tail := series[len(series)-length:]
		for i, r := range tail {
			combined[i] += pos.Weight * scale * r
		}
	}

	if candidateSize > 0 {
		series := snap.Returns[plan.Symbol]
		tail := series[len(series)-length:]
		sign := 1.0
		if plan.Direction == domain.DirectionShort {
			sign = -1.0
		}
		for i, r := range tail {
			combined[i] += candidateSize * sign * r
		}
	}

	return combined
}

// concentrationWith computes the Herfindahl index of the portfolio
// after adding the candidate position. Weights are fractions of total
// portfolio value (cash dilutes), so shares are used as-is rather than
// renormalized over positions only.
func (e *Engine) concentrationWith(snap domain.PortfolioSnapshot, plan domain.TradingPlan) float64 {
	scale := 1.0 - plan.PositionSize
	candidateWeight := plan.PositionSize

	var hhi float64
	for _, pos := range snap.Positions {
		w := pos.Weight * scale
		if pos.Symbol == plan.Symbol {
			candidateWeight += w
			continue
		}
		hhi += w * w
	}
	hhi += candidateWeight * candidateWeight

	return hhi
}

// score maps the measured risk onto [0,1]: 1 = far from every limit,
// 0 = at or beyond all of them.
func (e *Engine) score(tail formulas.TailRisk, drawdown, concentration float64) float64 {
	headroom := func(value, limit float64) float64 {
		if limit <= 0 {
			return 0.5
		}
		return formulas.Clip(1.0-value/limit, 0, 1)
	}

	s := 0.35*headroom(tail.VaR, e.limits.VaRLimit) +
		0.25*headroom(tail.CVaR, e.limits.CVaRLimit) +
		0.20*headroom(drawdown, e.limits.DrawdownLimit) +
		0.20*headroom(concentration, e.limits.ConcentrationLimit)

	return formulas.Clip(s, 0, 1)
}

// cumulativeValue converts a return series to an indexed value path
func cumulativeValue(returns []float64) []float64 {
	values := make([]float64, len(returns)+1)
	values[0] = 1.0
	for i, r := range returns {
		values[i+1] = values[i] * (1.0 + r)
	}
	return values
}
