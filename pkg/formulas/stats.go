// Package formulas holds the performance and risk calculations used by the
// metrics engine. All functions are pure; undefined results are nil.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, 0 for an empty series
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// PopulationStdDev returns the population (N denominator) standard deviation
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(values, nil)
	return math.Sqrt(variance)
}

// SimpleReturn is the change from prev to cur. ok is false when prev is not
// positive, since the return is then undefined.
func SimpleReturn(prev, cur float64) (r float64, ok bool) {
	if prev <= 0 {
		return 0, false
	}
	return (cur - prev) / prev, true
}

// SimpleReturns converts a value series into period-over-period simple returns.
// A period whose starting value is not positive has no defined return and is skipped.
func SimpleReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if r, ok := SimpleReturn(values[i-1], values[i]); ok {
			returns = append(returns, r)
		}
	}
	return returns
}

// IsFinite reports whether x is neither NaN nor infinite
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Sanitize returns nil for nil, NaN or infinite values
func Sanitize(x *float64) *float64 {
	if x == nil || !IsFinite(*x) {
		return nil
	}
	v := *x
	return &v
}

// SanitizeValue maps NaN and infinities to 0
func SanitizeValue(x float64) float64 {
	if !IsFinite(x) {
		return 0
	}
	return x
}

// Ptr returns a pointer to a finite value, nil otherwise
func Ptr(x float64) *float64 {
	return Sanitize(&x)
}
