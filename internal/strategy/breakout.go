package strategy

import (
	"fmt"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
)

// BreakoutStrategy follows a close beyond the prior 20-bar range on heavy volume.
type BreakoutStrategy struct{}

func (BreakoutStrategy) Name() string {
	return Breakout
}

func (s BreakoutStrategy) Evaluate(fs *models.FeatureSet) *models.Signal {
	price := fs.Get(features.Close)
	high := fs.Get(features.High20)
	low := fs.Get(features.Low20)
	ratio := fs.Get(features.VolumeRatio)
	if price <= 0 || ratio <= 1.5 {
		return nil
	}

	var sig *models.Signal
	var distance float64
	switch {
	case high > 0 && price > high:
		sig = newSignal(fs, s.Name(), models.Buy)
		distance = (price - high) / high
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("Breakout above 20-bar high %.2f", high))
	case low > 0 && price < low:
		sig = newSignal(fs, s.Name(), models.Sell)
		distance = (low - price) / low
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("Breakdown below 20-bar low %.2f", low))
	default:
		return nil
	}
	sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("Volume %.2fx average", ratio))

	sig.Strength = clamp01(0.3 + distance*20)
	confidence := 0.6
	if ratio > 2 {
		confidence += 0.1
	}
	hist := fs.Get(features.MACDHistogram)
	if (sig.Direction == models.Buy && hist > 0) || (sig.Direction == models.Sell && hist < 0) {
		confidence += 0.1
	}
	sig.Confidence = clamp01(confidence)

	atr := fs.Get(features.ATR14)
	sig.RiskScore = clamp01(0.3 + atr/price*10)
	bracket(sig, price, atr, 1.5, 3)
	return sig
}
