package formulas

// CalculateSharpeRatio computes (annualizedReturn - riskFreeRate) / volatility.
//
// Args:
//
//	annualizedReturn: annualized return as decimal, nil when undefined
//	riskFreeRate: annual risk-free rate as decimal (0.1 = 10%)
//	volatility: annualized volatility as decimal, nil when undefined
//
// Returns:
//
//	Sharpe ratio or nil if either input is missing or volatility is zero
func CalculateSharpeRatio(annualizedReturn *float64, riskFreeRate float64, volatility *float64) *float64 {
	if annualizedReturn == nil || volatility == nil || *volatility == 0 {
		return nil
	}
	return Ptr((*annualizedReturn - riskFreeRate) / *volatility)
}
