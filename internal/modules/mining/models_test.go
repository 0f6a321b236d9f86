package mining

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixtrade/curator/internal/domain"
)

func TestBraidVarianceMatchesRunningMomentIdentity(t *testing.T) {
	// Samples 1, 2, 3: mean 2, population variance 2/3.
	b := Braid{N: 3, SumRR: 6, SumRR2: 14}

	assert.InDelta(t, 2.0, b.AvgRR(), 1e-12)
	assert.InDelta(t, 2.0/3.0, b.Variance(), 1e-12)
}

func TestBraidVarianceNeverNegative(t *testing.T) {
	// Running moments that would compute to a tiny negative value.
	b := Braid{N: 2, SumRR: 2, SumRR2: 1.9999999999999998}
	assert.GreaterOrEqual(t, b.Variance(), 0.0)

	empty := Braid{}
	assert.Equal(t, 0.0, empty.Variance())
	assert.Equal(t, 0.0, empty.AvgRR())
}

func TestComputeEdgeRawBounds(t *testing.T) {
	params := DefaultEdgeParams()
	now := time.Now()

	b := Braid{
		N:        50,
		SumRR:    150, // avg 3.0
		SumRR2:   460,
		LastSeen: now,
	}

	edge := b.ComputeEdgeRaw(params, now)
	assert.Greater(t, edge, 0.0)
	assert.LessOrEqual(t, edge, 1.0)

	// An empty braid carries no edge.
	assert.Equal(t, 0.0, Braid{}.ComputeEdgeRaw(params, now))
}

func TestComputeEdgeRawRegimeWeighting(t *testing.T) {
	params := DefaultEdgeParams()
	now := time.Now()

	base := Braid{N: 30, SumRR: 60, SumRR2: 130, LastSeen: now}

	bull := base
	bull.Scope = domain.NewScope(map[domain.Dimension]string{domain.DimRegime: "bull"})
	crisis := base
	crisis.Scope = domain.NewScope(map[domain.Dimension]string{domain.DimRegime: "crisis"})

	bullEdge := bull.ComputeEdgeRaw(params, now)
	crisisEdge := crisis.ComputeEdgeRaw(params, now)

	assert.Greater(t, bullEdge, crisisEdge)
	assert.InDelta(t, bullEdge*0.6, crisisEdge, 1e-9)
}

func TestComputeEdgeRawDecaysWithStaleness(t *testing.T) {
	params := DefaultEdgeParams()
	now := time.Now()

	fresh := Braid{N: 30, SumRR: 60, SumRR2: 130, LastSeen: now}
	stale := fresh
	stale.LastSeen = now.Add(-90 * 24 * time.Hour)

	assert.Greater(t, fresh.ComputeEdgeRaw(params, now), stale.ComputeEdgeRaw(params, now))
}

func TestComputeEdgeRawRecurrenceGrowsWithSamples(t *testing.T) {
	params := DefaultEdgeParams()
	now := time.Now()

	// Same mean and variance, different sample counts.
	small := Braid{N: 5, SumRR: 10, SumRR2: 20, LastSeen: now}
	large := Braid{N: 50, SumRR: 100, SumRR2: 200, LastSeen: now}

	assert.Greater(t, large.ComputeEdgeRaw(params, now), small.ComputeEdgeRaw(params, now))
}
