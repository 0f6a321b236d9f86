package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/pkg/logger"
)

func testLimits() Limits {
	return Limits{
		VaRConfidence:      0.95,
		VaRLimit:           0.05,
		CVaRLimit:          0.08,
		DrawdownLimit:      0.25,
		ConcentrationLimit: 0.50,
	}
}

func flatReturns(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func snapshotWith(returns map[string][]float64, positions ...domain.Position) domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		TakenAt:    time.Now(),
		TotalValue: 100000,
		Positions:  positions,
		Returns:    returns,
	}
}

func TestEvaluate_QuietCandidatePasses(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(testLimits(), log)

	snap := snapshotWith(
		map[string][]float64{
			"BTC": flatReturns(100, 0.001),
			"ETH": flatReturns(100, 0.001),
		},
		domain.Position{Symbol: "BTC", Weight: 0.5},
	)

	plan := domain.TradingPlan{
		Symbol:       "ETH",
		Direction:    domain.DirectionLong,
		PositionSize: 0.05,
	}

	assessment, err := engine.Evaluate(plan, snap)
	require.NoError(t, err)

	assert.False(t, assessment.HardVeto)
	assert.Empty(t, assessment.Reasons)
	assert.Greater(t, assessment.Score, 0.7, "steady gains should score well")
}

func TestEvaluate_TailRiskVeto(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(testLimits(), log)

	// One crash day deep enough that even a 10% allocation breaches VaR.
	crashy := flatReturns(100, 0.001)
	for i := 0; i < 10; i++ {
		crashy[i*10] = -0.60
	}

	snap := snapshotWith(map[string][]float64{"MEME": crashy})

	plan := domain.TradingPlan{
		Symbol:       "MEME",
		Direction:    domain.DirectionLong,
		PositionSize: 0.10,
	}

	assessment, err := engine.Evaluate(plan, snap)
	require.NoError(t, err)

	assert.True(t, assessment.HardVeto)
	assert.NotEmpty(t, assessment.Reasons)
}

func TestEvaluate_MissingHistoryFails(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(testLimits(), log)

	snap := snapshotWith(map[string][]float64{})
	plan := domain.TradingPlan{Symbol: "UNKNOWN", PositionSize: 0.05}

	_, err := engine.Evaluate(plan, snap)
	assert.Error(t, err)
}

func TestConcentration_SingleHugePosition(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	limits := testLimits()
	limits.ConcentrationLimit = 0.30
	engine := NewEngine(limits, log)

	snap := snapshotWith(
		map[string][]float64{
			"SOL": flatReturns(60, 0.0005),
		},
		domain.Position{Symbol: "SOL", Weight: 0.9},
	)

	// Adding to an already dominant position breaches the HHI cap.
	plan := domain.TradingPlan{
		Symbol:       "SOL",
		Direction:    domain.DirectionLong,
		PositionSize: 0.05,
	}

	assessment, err := engine.Evaluate(plan, snap)
	require.NoError(t, err)

	assert.True(t, assessment.HardVeto)
	assert.Greater(t, assessment.Concentration, 0.30)
}
