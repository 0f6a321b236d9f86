package asymmetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/curator/pkg/logger"
)

// history with mean 0 and sample stddev exactly 1 so z-scores equal the
// raw readings: two points at ±sqrt(0.5) give variance 2*0.5/(2-1) = 1
func unitHistory() []float64 {
	x := math.Sqrt(0.5)
	return []float64{-x, x}
}

func TestEvaluate_ScalingCappedAtMax(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(2.0, log)

	// All four metrics exactly 2 sigma out -> combined = 2.0
	// scaling = 1 + min(2.0*0.5, 2.0-1) = 1 + min(1.0, 1.0) = 2.0
	res, err := engine.Evaluate(MarketMetrics{
		OpenInterestChange: 2.0, OpenInterestHist: unitHistory(),
		FundingRate: 2.0, FundingHist: unitHistory(),
		Basis: 2.0, BasisHist: unitHistory(),
		DepthImbalance: 2.0, DepthHist: unitHistory(),
	})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.CombinedScore, 1e-9)
	assert.InDelta(t, 2.0, res.ScalingFactor, 1e-9)
}

func TestEvaluate_QuietMarket(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(2.0, log)

	res, err := engine.Evaluate(MarketMetrics{
		OpenInterestChange: 0, OpenInterestHist: unitHistory(),
		FundingRate: 0, FundingHist: unitHistory(),
		Basis: 0, BasisHist: unitHistory(),
		DepthImbalance: 0, DepthHist: unitHistory(),
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, res.CombinedScore, 1e-9)
	assert.InDelta(t, 1.0, res.ScalingFactor, 1e-9, "quiet market gets no budget boost")
}

func TestEvaluate_NoHistory(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	engine := NewEngine(2.0, log)

	_, err := engine.Evaluate(MarketMetrics{OpenInterestChange: 1.5})
	assert.Error(t, err, "missing reference data must surface as a failed sub-engine")
}
