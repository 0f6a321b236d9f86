package formulas

import (
	"sort"
)

// TailRisk holds the result of a historical-simulation tail analysis.
type TailRisk struct {
	VaR  float64 `json:"var"`  // Value at Risk (positive = loss)
	CVaR float64 `json:"cvar"` // Conditional VaR: mean loss beyond VaR
}

// HistoricalVaR computes Value at Risk by historical simulation.
//
// Returns are sorted ascending; the VaR index is floor((1-confidence)*N)
// and VaR is the negated return at that index. CVaR is the mean of all
// returns at or below -VaR, negated.
func HistoricalVaR(returns []float64, confidence float64) TailRisk {
	if len(returns) == 0 {
		return TailRisk{}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// Epsilon guards the floor against float artifacts like 0.05*20 = 0.999…
	idx := int((1.0-confidence)*float64(len(sorted)) + 1e-9)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}

	varValue := -sorted[idx]

	// Tail mean over all returns at or below the VaR cutoff.
	var tailSum float64
	var tailN int
	for _, r := range sorted {
		if r <= -varValue {
			tailSum += r
			tailN++
		}
	}

	cvar := varValue
	if tailN > 0 {
		cvar = -(tailSum / float64(tailN))
	}

	return TailRisk{VaR: varValue, CVaR: cvar}
}

// MaxDrawdown calculates the maximum peak-to-trough loss of a value series.
// Returns a positive fraction (0.25 = 25% loss from peak), or 0 for short series.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDD := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// HerfindahlIndex measures concentration of a set of portfolio weights.
// 1.0 = everything in one position, 1/n = perfectly even.
func HerfindahlIndex(weights []float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0
	}

	var hhi float64
	for _, w := range weights {
		share := w / total
		hhi += share * share
	}
	return hhi
}
