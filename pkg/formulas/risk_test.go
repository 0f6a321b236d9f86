package formulas

import (
	"math"
	"testing"
)

func TestHistoricalVaR(t *testing.T) {
	// 20 returns, 95% confidence -> index floor(0.05*20)=1 -> second worst
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = float64(i-10) / 100.0 // -0.10 .. 0.09
	}

	tail := HistoricalVaR(returns, 0.95)

	if math.Abs(tail.VaR-0.09) > 1e-9 {
		t.Errorf("Expected VaR 0.09, got %.4f", tail.VaR)
	}

	// Tail is returns <= -0.09: {-0.10, -0.09} -> CVaR = 0.095
	if math.Abs(tail.CVaR-0.095) > 1e-9 {
		t.Errorf("Expected CVaR 0.095, got %.4f", tail.CVaR)
	}
}

func TestHistoricalVaR_Empty(t *testing.T) {
	tail := HistoricalVaR(nil, 0.95)
	if tail.VaR != 0 || tail.CVaR != 0 {
		t.Errorf("Expected zero tail risk for empty returns, got %+v", tail)
	}
}

func TestMaxDrawdown(t *testing.T) {
	values := []float64{100, 110, 99, 105, 121, 90.75}

	dd := MaxDrawdown(values)

	// Peak 121 -> trough 90.75 = 25% drawdown
	if math.Abs(dd-0.25) > 1e-9 {
		t.Errorf("Expected 0.25 drawdown, got %.4f", dd)
	}
}

func TestHerfindahlIndex(t *testing.T) {
	tests := []struct {
		name     string
		weights  []float64
		expected float64
	}{
		{"single position", []float64{1.0}, 1.0},
		{"even split", []float64{0.25, 0.25, 0.25, 0.25}, 0.25},
		{"empty", nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HerfindahlIndex(tt.weights)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Expected %.4f, got %.4f", tt.expected, got)
			}
		})
	}
}
