package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"trading-desk-go/internal/models"
)

// MinBars is the fewest valid bars a feature set can be computed from.
const MinBars = 20

const tradingDaysPerYear = 252

// ErrInsufficientHistory is returned when fewer than MinBars valid bars are supplied.
var ErrInsufficientHistory = errors.New("insufficient price history")

// Indicator names.
const (
	SMA5               = "sma_5"
	SMA10              = "sma_10"
	SMA20              = "sma_20"
	EMA12              = "ema_12"
	EMA26              = "ema_26"
	MACD               = "macd"
	MACDSignal         = "macd_signal"
	MACDHistogram      = "macd_histogram"
	RSI14              = "rsi_14"
	BBUpper            = "bb_upper"
	BBMiddle           = "bb_middle"
	BBLower            = "bb_lower"
	BBPosition         = "bb_position"
	ATR14              = "atr_14"
	VolumeRatio        = "volume_ratio"
	Momentum5          = "momentum_5"
	High20             = "high_20"
	Low20              = "low_20"
	Close              = "close"
	Volatility         = "volatility"
	VolatilityForecast = "volatility_forecast"
	DirectionProb      = "direction_prob"
)

// Boolean indicator names beyond the candlestick patterns.
const (
	FlagSMACrossUp   = "sma_cross_up"
	FlagAboveSMA20   = "above_sma_20"
	FlagMACDBullish  = "macd_bullish"
	FlagVolumeSpike  = "volume_spike"
	FlagOverbought   = "overbought"
	FlagOversold     = "oversold"
	FlagBreakoutUp   = "breakout_up"
	FlagBreakoutDown = "breakout_down"
)

// Provider derives indicators from a symbol's recent bars.
type Provider interface {
	Compute(symbol string, bars []models.PriceBar) (*models.FeatureSet, error)
}

// Calculator is the technical-indicator Provider.
type Calculator struct{}

// NewCalculator returns the default feature provider.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute implements Provider. Bars must be ordered oldest first; invalid bars
// are skipped and lower the data-quality score.
func (c *Calculator) Compute(symbol string, bars []models.PriceBar) (*models.FeatureSet, error) {
	started := time.Now()

	valid := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b.Valid() {
			valid = append(valid, b)
		}
	}
	if len(valid) < MinBars {
		return nil, fmt.Errorf("%w: %s has %d valid bars, need %d", ErrInsufficientHistory, symbol, len(valid), MinBars)
	}

	n := len(valid)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range valid {
		closes[i], highs[i], lows[i], volumes[i] = b.Close, b.High, b.Low, b.Volume
	}
	last := closes[n-1]

	v := make(map[string]float64, 24)
	v[Close] = last
	v[SMA5] = SMA(closes, 5)
	v[SMA10] = SMA(closes, 10)
	v[SMA20] = SMA(closes, 20)

	ema12 := EMASeries(closes, 12)
	ema26 := EMASeries(closes, 26)
	macd := make([]float64, n)
	for i := range closes {
		macd[i] = ema12[i] - ema26[i]
	}
	signal := EMASeries(macd, 9)
	v[EMA12] = ema12[n-1]
	v[EMA26] = ema26[n-1]
	v[MACD] = macd[n-1]
	v[MACDSignal] = signal[n-1]
	v[MACDHistogram] = macd[n-1] - signal[n-1]

	v[RSI14] = RSI(closes, 14)

	window := closes[n-20:]
	mid := mean(window)
	sd := StdDev(window)
	v[BBMiddle] = mid
	v[BBUpper] = mid + 2*sd
	v[BBLower] = mid - 2*sd
	if width := v[BBUpper] - v[BBLower]; width > 0 {
		v[BBPosition] = (last - v[BBLower]) / width
	} else {
		v[BBPosition] = 0.5
	}

	v[ATR14] = ATR(highs, lows, closes, 14)

	prevVolumes := volumes[max(0, n-21) : n-1]
	if avg := mean(prevVolumes); avg > 0 {
		v[VolumeRatio] = volumes[n-1] / avg
	} else {
		v[VolumeRatio] = 1
	}

	if base := closes[max(0, n-6)]; base > 0 {
		v[Momentum5] = last/base - 1
	}

	prevHighs := highs[max(0, n-21) : n-1]
	prevLows := lows[max(0, n-21) : n-1]
	v[High20], v[Low20] = prevHighs[0], prevLows[0]
	for i := range prevHighs {
		v[High20] = math.Max(v[High20], prevHighs[i])
		v[Low20] = math.Min(v[Low20], prevLows[i])
	}

	returns := LogReturns(closes)
	v[Volatility] = RealizedVolatility(returns, min(20, len(returns)), tradingDaysPerYear)
	v[VolatilityForecast] = forecastVolatility(returns)
	v[DirectionProb] = directionProbability(last, v[SMA5], v[SMA20], v[RSI14], v[Momentum5])

	flags := map[string]bool{
		FlagSMACrossUp:   v[SMA10] > v[SMA20],
		FlagAboveSMA20:   last > v[SMA20],
		FlagMACDBullish:  v[MACDHistogram] > 0,
		FlagVolumeSpike:  v[VolumeRatio] > 1.5,
		FlagOverbought:   v[RSI14] > 70,
		FlagOversold:     v[RSI14] < 30,
		FlagBreakoutUp:   last > v[High20],
		FlagBreakoutDown: last < v[Low20],
	}
	detectPatterns(valid, flags)

	return &models.FeatureSet{
		Symbol:      symbol,
		Timestamp:   valid[n-1].Timestamp,
		Values:      v,
		Flags:       flags,
		SampleCount: n,
		LatencyMs:   time.Since(started).Milliseconds(),
		DataQuality: float64(n) / float64(len(bars)),
	}, nil
}

// forecastVolatility blends the latest 20-bar volatility with the mean of all
// rolling windows, clamped to [0.05, 1].
func forecastVolatility(returns []float64) float64 {
	const window = 20
	if len(returns) < window {
		return 0.2
	}
	latest := RealizedVolatility(returns, window, tradingDaysPerYear)
	var sum float64
	var count int
	for end := window; end <= len(returns); end++ {
		sum += RealizedVolatility(returns[:end], window, tradingDaysPerYear)
		count++
	}
	longTerm := sum / float64(count)
	return clamp(0.7*latest+0.3*longTerm, 0.05, 1.0)
}

// directionProbability scores the chance of an up move from moving-average
// alignment, RSI extremes and short momentum, clamped to [0.1, 0.9].
func directionProbability(price, sma5, sma20, rsi, momentum float64) float64 {
	score := 0.5
	switch {
	case price > sma5 && sma5 > sma20:
		score += 0.2
	case price < sma5 && sma5 < sma20:
		score -= 0.2
	}
	switch {
	case rsi < 30:
		score += 0.15
	case rsi > 70:
		score -= 0.15
	}
	score += clamp(momentum*2, -0.2, 0.2)
	return clamp(score, 0.1, 0.9)
}
