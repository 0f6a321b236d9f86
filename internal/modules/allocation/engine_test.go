package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/pkg/logger"
)

func TestEvaluate_WeightCapVeto(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(DefaultConstraints(), log)

	snap := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", Weight: 0.12},
		},
		Returns: map[string][]float64{},
	}

	// 0.12*(1-0.08) + 0.08 = 0.1904 > 0.15 cap
	plan := domain.TradingPlan{
		Symbol:       "BTC",
		Direction:    domain.DirectionLong,
		PositionSize: 0.08,
	}

	assessment, err := engine.Evaluate(plan, snap)
	require.NoError(t, err)

	assert.True(t, assessment.HardVeto)
	assert.NotEmpty(t, assessment.Reasons)
}

func TestEvaluate_NewNameImprovesDiversification(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(DefaultConstraints(), log)

	snap := domain.PortfolioSnapshot{
		Positions: []domain.Position{
			{Symbol: "BTC", Weight: 0.10},
			{Symbol: "ETH", Weight: 0.10},
		},
		Returns: map[string][]float64{},
	}

	newName := domain.TradingPlan{Symbol: "SOL", Direction: domain.DirectionLong, PositionSize: 0.05}
	addOn := domain.TradingPlan{Symbol: "BTC", Direction: domain.DirectionLong, PositionSize: 0.02}

	a1, err := engine.Evaluate(newName, snap)
	require.NoError(t, err)
	a2, err := engine.Evaluate(addOn, snap)
	require.NoError(t, err)

	assert.Greater(t, a1.Diversification, a2.Diversification)
	assert.False(t, a1.HardVeto)
}

func TestMeanCorrelation(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(DefaultConstraints(), log)

	up := []float64{0.01, 0.02, -0.01, 0.03, -0.02, 0.01}
	down := make([]float64, len(up))
	for i, r := range up {
		down[i] = -r
	}

	snap := domain.PortfolioSnapshot{
		Positions: []domain.Position{{Symbol: "BTC", Weight: 0.1}},
		Returns: map[string][]float64{
			"BTC": up,
			"SOL": up,
			"INV": down,
		},
	}

	// Perfectly correlated candidate.
	corr := engine.meanCorrelation(snap, domain.TradingPlan{Symbol: "SOL", PositionSize: 0.05})
	assert.InDelta(t, 1.0, corr, 1e-9)

	// Perfectly anti-correlated candidate.
	corr = engine.meanCorrelation(snap, domain.TradingPlan{Symbol: "INV", PositionSize: 0.05})
	assert.InDelta(t, -1.0, corr, 1e-9)
}

func TestEvaluate_CostSettingChangesScore(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})

	cheap := DefaultConstraints()
	cheap.CostPerTurnover = 0.002
	expensive := DefaultConstraints()
	expensive.CostPerTurnover = 0.05

	plan := domain.TradingPlan{
		Symbol:       "BTC",
		Direction:    domain.DirectionLong,
		PositionSize: 0.05,
		RiskReward:   2.0,
	}
	snap := domain.PortfolioSnapshot{Returns: map[string][]float64{}}

	cheapAssessment, err := NewEngine(cheap, log).Evaluate(plan, snap)
	require.NoError(t, err)
	expensiveAssessment, err := NewEngine(expensive, log).Evaluate(plan, snap)
	require.NoError(t, err)

	// Higher per-turnover cost must show up in the score.
	assert.Greater(t, cheapAssessment.Score, expensiveAssessment.Score)
	assert.Greater(t, expensiveAssessment.TurnoverCost, cheapAssessment.TurnoverCost)
}

func TestEvaluate_ZeroSize(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(DefaultConstraints(), log)

	_, err := engine.Evaluate(domain.TradingPlan{Symbol: "BTC"}, domain.PortfolioSnapshot{})
	assert.Error(t, err)
}
