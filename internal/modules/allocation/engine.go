package allocation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/pkg/formulas"
)

// Constraints holds the allocation rules for candidate positions
type Constraints struct {
	MaxPositionWeight float64 // hard cap on any single position, fraction of portfolio
	TargetPositions   int     // diversification target
	MaxCorrelation    float64 // soft ceiling on mean correlation with the book
	CostPerTurnover   float64 // round-trip transaction cost as fraction of traded value
}

// DefaultConstraints returns sensible allocation defaults
func DefaultConstraints() Constraints {
	return Constraints{
		MaxPositionWeight: 0.15,
		TargetPositions:   10,
		MaxCorrelation:    0.80,
		CostPerTurnover:   0.002,
	}
}

// Assessment is the allocation engine's verdict on one plan
type Assessment struct {
	Diversification float64  `json:"diversification"` // [0,1]
	Concentration   float64  `json:"concentration"`   // candidate's resulting weight
	Correlation     float64  `json:"correlation"`     // mean corr vs existing positions
	TurnoverCost    float64  `json:"turnover_cost"`   // fraction of portfolio
	Score           float64  `json:"score"`           // [0,1]
	HardVeto        bool     `json:"hard_veto"`
	Reasons         []string `json:"reasons,omitempty"`
}

// Engine checks a candidate position against portfolio-construction
// constraints: diversification, concentration, correlation, and cost.
type Engine struct {
	constraints Constraints
	log         zerolog.Logger
}

// NewEngine creates an allocation engine
func NewEngine(constraints Constraints, log zerolog.Logger) *Engine {
	return &Engine{
		constraints: constraints,
		log:         log.With().Str("engine", "allocation").Logger(),
	}
}

// Evaluate is a pure function over the immutable plan and snapshot.
func (e *Engine) Evaluate(plan domain.TradingPlan, snap domain.PortfolioSnapshot) (Assessment, error) {
	if plan.PositionSize <= 0 {
		return Assessment{}, fmt.Errorf("plan has no position size")
	}

	resultingWeight := plan.PositionSize
	for _, pos := range snap.Positions {
		if pos.Symbol == plan.Symbol {
			resultingWeight += pos.Weight * (1.0 - plan.PositionSize)
		}
	}

	var reasons []string
	veto := false
	if resultingWeight > e.constraints.MaxPositionWeight {
		veto = true
		reasons = append(reasons, fmt.Sprintf("resulting weight %.2f%% exceeds per-position cap %.2f%%",
			resultingWeight*100, e.constraints.MaxPositionWeight*100))
	}

	diversification := e.diversificationScore(snap, plan)
	correlation := e.meanCorrelation(snap, plan)
	turnoverCost := plan.PositionSize * e.constraints.CostPerTurnover

	score := e.score(diversification, resultingWeight, correlation, turnoverCost, expectedReturn(plan))

	e.log.Debug().
		Str("symbol", plan.Symbol).
		Float64("resulting_weight", resultingWeight).
		Float64("correlation", correlation).
		Float64("score", score).
		Bool("veto", veto).
		Msg("Allocation evaluated")

	return Assessment{
		Diversification: diversification,
		Concentration:   resultingWeight,
		Correlation:     correlation,
		TurnoverCost:    turnoverCost,
		Score:           score,
		HardVeto:        veto,
		Reasons:         reasons,
	}, nil
}

// diversificationScore rewards books below the target position count
// for adding new names, penalizes piling into an existing one.
func (e *Engine) diversificationScore(snap domain.PortfolioSnapshot, plan domain.TradingPlan) float64 {
	held := false
	for _, pos := range snap.Positions {
		if pos.Symbol == plan.Symbol {
			held = true
			break
		}
	}

	count := len(snap.Positions)
	if !held {
		count++
	}

	fill := formulas.Clip(float64(count)/float64(e.constraints.TargetPositions), 0, 1)
	if held {
		// Adding to an existing name does nothing for diversification.
		return fill * 0.5
	}
	return 0.5 + fill*0.5
}

// meanCorrelation measures the average correlation between the candidate's
// return series and every existing position's series. Positions without
// overlapping history are skipped.
func (e *Engine) meanCorrelation(snap domain.PortfolioSnapshot, plan domain.TradingPlan) float64 {
	candidate := snap.Returns[plan.Symbol]
	if len(candidate) < 2 || len(snap.Positions) == 0 {
		return 0
	}

	var sum float64
	var n int
	for _, pos := range snap.Positions {
		if pos.Symbol == plan.Symbol {
			continue
		}
		series := snap.Returns[pos.Symbol]
		length := len(candidate)
		if len(series) < length {
			length = len(series)
		}
		if length < 2 {
			continue
		}
		corr := formulas.Correlation(candidate[len(candidate)-length:], series[len(series)-length:])
		sum += corr
		n++
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (e *Engine) score(diversification, weight, correlation, cost, expected float64) float64 {
	weightHeadroom := 0.5
	if e.constraints.MaxPositionWeight > 0 {
		weightHeadroom = formulas.Clip(1.0-weight/e.constraints.MaxPositionWeight, 0, 1)
	}

	corrScore := 1.0
	if correlation > 0 {
		corrScore = formulas.Clip(1.0-correlation/e.constraints.MaxCorrelation, 0, 1)
	}

	// Penalize cost by how much of the expected return it eats.
	costScore := 1.0
	if expected > 0 {
		costScore = formulas.Clip(1.0-cost/expected, 0, 1)
	}

	s := 0.30*diversification + 0.30*weightHeadroom + 0.25*corrScore + 0.15*costScore
	return formulas.Clip(s, 0, 1)
}

// expectedReturn estimates the plan's expected gain as a fraction of
// the portfolio: risk/reward times position size, scaled by the usual
// per-trade risk fraction. A plan without a stated risk/reward gets a
// conservative 1:1.
func expectedReturn(plan domain.TradingPlan) float64 {
	rr := plan.RiskReward
	if rr <= 0 {
		rr = 1.0
	}
	return rr * plan.PositionSize * 0.1
}
