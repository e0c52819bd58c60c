package formulas

import "math"

// MonthsPerYear is the annualization factor for monthly series
const MonthsPerYear = 12

// TotalReturn computes (currentValue + withdrawn - invested) / invested.
// Withdrawals are added back so taking money out does not move the figure.
// Returns nil when nothing was invested.
func TotalReturn(currentValue, withdrawn, invested float64) *float64 {
	if invested <= 0 {
		return nil
	}
	return Ptr((currentValue + withdrawn - invested) / invested)
}

// AnnualizedReturn compounds a total return over the given number of months:
// (1+total)^(12/months) - 1. Histories shorter than a year return nil.
func AnnualizedReturn(totalReturn *float64, months int) *float64 {
	if totalReturn == nil || months < MonthsPerYear {
		return nil
	}
	base := 1 + *totalReturn
	if base < 0 {
		return nil
	}
	return Ptr(math.Pow(base, float64(MonthsPerYear)/float64(months)) - 1)
}

// AnnualizedVolatility is the population standard deviation of periodic
// returns scaled by sqrt(periodsPerYear). Needs at least two returns.
func AnnualizedVolatility(returns []float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}
	return Ptr(PopulationStdDev(returns) * math.Sqrt(float64(periodsPerYear)))
}
