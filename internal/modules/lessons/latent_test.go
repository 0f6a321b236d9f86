package lessons

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterPatternsGroupsCorrelatedOutcomes(t *testing.T) {
	base := []float64{1.2, -0.5, 2.1, 0.3, -1.0, 1.8, 0.9, -0.2, 1.1, 0.6}
	shifted := make([]float64, len(base))
	for i, v := range base {
		shifted[i] = v + 0.1 // perfectly correlated, different mean
	}
	unrelated := []float64{-1.2, 0.5, -2.1, -0.3, 1.0, -1.8, -0.9, 0.2, -1.1, -0.6}

	outcomes := map[string][]float64{
		"breakout|momentum":     base,
		"breakout|volume_spike": shifted,
		"reversal|mean_revert":  unrelated,
	}

	factors := ClusterPatterns(outcomes, 0.95, 10)
	require.Len(t, factors, 1)

	factor := factors[0]
	assert.Len(t, factor.Members, 2)
	assert.Contains(t, factor.Members, "breakout|momentum")
	assert.Contains(t, factor.Members, "breakout|volume_spike")
}

func TestClusterPatternsRepresentativeHasMostOutcomes(t *testing.T) {
	long := []float64{1, -1, 2, -0.5, 1.5, -0.2, 0.8, 1.1, -0.9, 2.2, 0.4, 1.7}
	short := long[2:] // correlated tail, fewer outcomes

	outcomes := map[string][]float64{
		"a": short,
		"b": long,
	}

	factors := ClusterPatterns(outcomes, 0.95, 5)
	require.Len(t, factors, 1)
	assert.Equal(t, "b", factors[0].Representative)
}

func TestClusterPatternsRequiresOverlap(t *testing.T) {
	outcomes := map[string][]float64{
		"a": {1, 2, 3},
		"b": {1, 2, 3},
	}

	// Identical but too short to trust.
	factors := ClusterPatterns(outcomes, 0.95, 10)
	assert.Empty(t, factors)
}

func TestClusterPatternsSingletonsAreNotFactors(t *testing.T) {
	outcomes := map[string][]float64{
		"a": {1.2, -0.5, 2.1, 0.3, -1.0, 1.8, 0.9, -0.2, 1.1, 0.6},
	}

	factors := ClusterPatterns(outcomes, 0.95, 10)
	assert.Empty(t, factors)
}
