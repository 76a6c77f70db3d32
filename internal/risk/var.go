package risk

// VaREstimator estimates one-day value at risk of a positions value.
type VaREstimator interface {
	VaR(positionsValue float64) float64
}

// ConstantVolatilityVaR is parametric VaR with a fixed daily volatility.
type ConstantVolatilityVaR struct {
	DailyVolatility float64
	Z               float64
}

// Z95 is the one-sided 95% normal quantile.
const Z95 = 1.645

// VaR implements VaREstimator.
func (v ConstantVolatilityVaR) VaR(positionsValue float64) float64 {
	return positionsValue * v.DailyVolatility * v.Z
}
