package curators

import (
	"fmt"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/modules/curation"
	"github.com/helixtrade/curator/pkg/formulas"
)

// CostCurator scores whether the plan's expected edge survives
// execution costs. Cost is estimated as spread plus impact that grows
// with position size, then compared against the plan's risk/reward.
type CostCurator struct {
	baseSpread  float64 // round-trip spread + fees, fraction of notional
	impactCoeff float64 // market impact per unit of position size
}

func NewCostCurator() *CostCurator {
	return &CostCurator{
		baseSpread:  0.0008,
		impactCoeff: 0.02,
	}
}

func (c *CostCurator) ID() string {
	return "cost"
}

func (c *CostCurator) Evaluate(plan domain.TradingPlan, _ curation.EvalContext) (domain.CuratorContribution, error) {
	if plan.PositionSize <= 0 {
		return domain.CuratorContribution{}, fmt.Errorf("non-positive position size %.4f", plan.PositionSize)
	}

	cost := c.baseSpread + c.impactCoeff*plan.PositionSize

	// Expected gross edge per unit risked. A plan without a stated
	// risk/reward gets a conservative 1:1.
	rr := plan.RiskReward
	if rr <= 0 {
		rr = 1.0
	}

	// Risk per trade approximated by the stop distance when present,
	// otherwise the position size itself bounds the loss.
	riskPerTrade := plan.PositionSize
	if plan.StopLoss > 0 && plan.TakeProfit > plan.StopLoss {
		riskPerTrade = plan.PositionSize * 0.5
	}
	expectedEdge := rr * riskPerTrade * 0.1

	if expectedEdge <= cost {
		return domain.CuratorContribution{
			Score:  0.1,
			Reason: fmt.Sprintf("estimated cost %.4f exceeds expected edge %.4f", cost, expectedEdge),
		}, nil
	}

	// Score by cost headroom: edge 10x cost is excellent, edge barely
	// above cost hovers near the reject band.
	ratio := expectedEdge / cost
	score := formulas.Clip(0.3+0.07*ratio, 0, 1)

	return domain.CuratorContribution{Score: score}, nil
}
