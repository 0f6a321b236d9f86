package formulas

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientDecayData indicates the series is too sparse to fit a curve.
var ErrInsufficientDecayData = errors.New("not enough positive samples for decay fit")

// DecaySample is one observation of a quantity that decays over time.
type DecaySample struct {
	At    time.Time
	Value float64
}

// FitExponentialDecay fits samples to v(t) = v0 * exp(-lambda*t) and
// returns the half-life. The fit is a least-squares line through
// (t, ln v) for positive samples, so at least 3 are required.
//
// A non-positive lambda (the series is flat or growing) means no
// measurable decay, reported as (0, nil).
func FitExponentialDecay(samples []DecaySample) (halfLife time.Duration, err error) {
	var ts, logs []float64
	var t0 time.Time
	for _, s := range samples {
		if s.Value <= 0 {
			continue
		}
		if t0.IsZero() {
			t0 = s.At
		}
		ts = append(ts, s.At.Sub(t0).Hours())
		logs = append(logs, math.Log(s.Value))
	}

	if len(ts) < 3 {
		return 0, ErrInsufficientDecayData
	}

	_, slope := stat.LinearRegression(ts, logs, nil, false)
	if math.IsNaN(slope) {
		return 0, ErrInsufficientDecayData
	}

	lambda := -slope // per hour
	if lambda <= 0 {
		return 0, nil
	}

	halfLifeHours := math.Ln2 / lambda
	return time.Duration(halfLifeHours * float64(time.Hour)), nil
}

// DecayedStrength returns value * 0.5^(age/halfLife).
// A zero half-life means "no measurable decay" and leaves the value intact.
func DecayedStrength(value float64, age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return value
	}
	return value * math.Pow(0.5, age.Hours()/halfLife.Hours())
}
