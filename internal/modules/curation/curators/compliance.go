package curators

import (
	"fmt"
	"strings"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/modules/curation"
)

// ComplianceCurator enforces hard policy rules: restricted symbols,
// banned directions per symbol, and structural requirements every plan
// must carry. Violations are hard vetoes, not low scores.
type ComplianceCurator struct {
	restricted   map[string]bool
	noShort      map[string]bool
	requireStops bool
}

// NewComplianceCurator builds a compliance curator. Symbol lists are
// matched case-insensitively.
func NewComplianceCurator(restricted, noShort []string, requireStops bool) *ComplianceCurator {
	c := &ComplianceCurator{
		restricted:   make(map[string]bool, len(restricted)),
		noShort:      make(map[string]bool, len(noShort)),
		requireStops: requireStops,
	}
	for _, s := range restricted {
		c.restricted[strings.ToUpper(s)] = true
	}
	for _, s := range noShort {
		c.noShort[strings.ToUpper(s)] = true
	}
	return c
}

func (c *ComplianceCurator) ID() string {
	return "compliance"
}

func (c *ComplianceCurator) Evaluate(plan domain.TradingPlan, _ curation.EvalContext) (domain.CuratorContribution, error) {
	symbol := strings.ToUpper(plan.Symbol)

	if c.restricted[symbol] {
		return domain.CuratorContribution{
			Score:    0,
			HardVeto: true,
			Reason:   fmt.Sprintf("%s is on the restricted list", plan.Symbol),
		}, nil
	}

	if plan.Direction == domain.DirectionShort && c.noShort[symbol] {
		return domain.CuratorContribution{
			Score:    0,
			HardVeto: true,
			Reason:   fmt.Sprintf("shorting %s is not permitted", plan.Symbol),
		}, nil
	}

	if c.requireStops && plan.StopLoss <= 0 {
		return domain.CuratorContribution{
			Score:    0,
			HardVeto: true,
			Reason:   "plan has no stop loss",
		}, nil
	}

	return domain.CuratorContribution{Score: 1.0}, nil
}
