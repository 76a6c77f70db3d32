package features

import "math"

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SMA is the simple average of the last period values.
func SMA(xs []float64, period int) float64 {
	if period > len(xs) {
		period = len(xs)
	}
	return mean(xs[len(xs)-period:])
}

// EMASeries returns the exponential moving average at every index, seeded with
// the first value.
func EMASeries(xs []float64, period int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI uses simple averages of the last period gains and losses.
func RSI(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}
	start := len(closes) - period
	if start < 1 {
		start = 1
	}
	var gains, losses float64
	for i := start; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	n := float64(len(closes) - start)
	avgGain, avgLoss := gains/n, losses/n
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// StdDev is the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// ATR averages the true range over the last period bars.
func ATR(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if n < 2 {
		if n == 1 {
			return highs[0] - lows[0]
		}
		return 0
	}
	start := n - period
	if start < 1 {
		start = 1
	}
	sum := 0.0
	for i := start; i < n; i++ {
		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		sum += tr
	}
	return sum / float64(n-start)
}

// LogReturns computes log(close[i]/close[i-1]); non-positive prices yield zero.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample deviation of the trailing window
// of log returns. Returns 0 when the window is not filled.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	m := sum / n
	variance := (sum2 - n*m*m) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
