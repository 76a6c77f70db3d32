package strategy

import (
	"fmt"
	"math"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
)

// TrendFollowingStrategy trades in the direction of the SMA10/SMA20 crossover
// when price confirms it.
type TrendFollowingStrategy struct{}

func (TrendFollowingStrategy) Name() string {
	return TrendFollowing
}

func (s TrendFollowingStrategy) Evaluate(fs *models.FeatureSet) *models.Signal {
	price := fs.Get(features.Close)
	sma10 := fs.Get(features.SMA10)
	sma20 := fs.Get(features.SMA20)
	if price <= 0 || sma20 <= 0 {
		return nil
	}

	var sig *models.Signal
	switch {
	case sma10 > sma20 && price > sma10:
		sig = newSignal(fs, s.Name(), models.Buy)
		sig.Reasoning = append(sig.Reasoning,
			fmt.Sprintf("Bullish moving average crossover: SMA10 %.2f above SMA20 %.2f", sma10, sma20),
			fmt.Sprintf("Price %.2f above SMA10", price))
	case sma10 < sma20 && price < sma10:
		sig = newSignal(fs, s.Name(), models.Sell)
		sig.Reasoning = append(sig.Reasoning,
			fmt.Sprintf("Bearish moving average crossover: SMA10 %.2f below SMA20 %.2f", sma10, sma20),
			fmt.Sprintf("Price %.2f below SMA10", price))
	default:
		return nil
	}

	spread := math.Abs(sma10-sma20) / sma20
	sig.Strength = clamp01(spread * 20)

	confidence := 0.5
	if ratio := fs.Get(features.VolumeRatio); ratio > 1.5 {
		confidence += 0.15
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("Volume confirmation: %.2fx average", ratio))
	}
	hist := fs.Get(features.MACDHistogram)
	if (sig.Direction == models.Buy && hist > 0) || (sig.Direction == models.Sell && hist < 0) {
		confidence += 0.1
		sig.Reasoning = append(sig.Reasoning, "MACD histogram agrees")
	}
	sig.Confidence = clamp01(confidence)

	atr := fs.Get(features.ATR14)
	sig.RiskScore = clamp01(0.2 + atr/price*10)
	bracket(sig, price, atr, 2, 3)
	return sig
}
