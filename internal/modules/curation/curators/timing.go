package curators

import (
	"fmt"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/modules/curation"
	"github.com/helixtrade/curator/pkg/formulas"
)

// TimingCurator scores entry timing from momentum. It uses RSI on the
// candidate's close history: entering long into an overbought market
// (or short into an oversold one) scores poorly, while a pullback in
// the plan's direction scores well.
type TimingCurator struct {
	rsiPeriod  float64
	overbought float64
	oversold   float64
}

// NewTimingCurator creates a timing curator with the standard 14-period
// RSI and 70/30 bands.
func NewTimingCurator() *TimingCurator {
	return &TimingCurator{
		rsiPeriod:  14,
		overbought: 70,
		oversold:   30,
	}
}

func (c *TimingCurator) ID() string {
	return "timing"
}

// Evaluate scores the plan's entry timing.
func (c *TimingCurator) Evaluate(plan domain.TradingPlan, ec curation.EvalContext) (domain.CuratorContribution, error) {
	closes := ec.Closes[plan.Symbol]
	rsi := formulas.CalculateRSI(closes, int(c.rsiPeriod))
	if rsi == nil {
		return domain.CuratorContribution{}, fmt.Errorf("insufficient close history for %s: need %d bars, have %d",
			plan.Symbol, int(c.rsiPeriod)+1, len(closes))
	}

	// Map RSI to [0,1] from the plan's perspective: for a long, low RSI
	// is cheap (good timing) and high RSI is chasing. Mirror for shorts.
	var score float64
	switch plan.Direction {
	case domain.DirectionLong:
		score = (100 - *rsi) / 100
	case domain.DirectionShort:
		score = *rsi / 100
	default:
		return domain.CuratorContribution{}, fmt.Errorf("unknown direction %q", plan.Direction)
	}

	reason := ""
	if plan.Direction == domain.DirectionLong && *rsi >= c.overbought {
		reason = fmt.Sprintf("RSI %.1f overbought; entering long is chasing", *rsi)
	} else if plan.Direction == domain.DirectionShort && *rsi <= c.oversold {
		reason = fmt.Sprintf("RSI %.1f oversold; entering short is chasing", *rsi)
	}

	return domain.CuratorContribution{
		Score:  formulas.Clip(score, 0, 1),
		Reason: reason,
	}, nil
}
