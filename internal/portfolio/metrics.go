package portfolio

import (
	"math"

	"trading-desk-go/internal/models"
)

const periodsPerYear = 252

// ComputeMetrics derives performance from a value series (oldest first) and the ledger.
func ComputeMetrics(initial float64, values []float64, trades []models.Trade) models.PortfolioMetrics {
	var m models.PortfolioMetrics
	if len(values) == 0 || initial <= 0 {
		return m
	}
	m.ReturnPct = (values[len(values)-1] - initial) / initial * 100

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns = append(returns, values[i]/values[i-1]-1)
		}
	}
	if len(returns) > 1 {
		mean, sd := meanStd(returns)
		m.Volatility = sd * math.Sqrt(periodsPerYear)
		if sd > 0 {
			m.Sharpe = mean / sd * math.Sqrt(periodsPerYear)
		}
	}
	m.MaxDrawdown = MaxDrawdown(values)

	var closed, wins int
	for _, t := range trades {
		if t.Side != models.Sell || t.RealizedPnL == nil {
			continue
		}
		closed++
		if *t.RealizedPnL > 0 {
			wins++
		}
	}
	if closed > 0 {
		m.WinRate = float64(wins) / float64(closed)
	}
	return m
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
func MaxDrawdown(values []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-v)/peak)
		}
	}
	return worst
}

func meanStd(xs []float64) (float64, float64) {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
