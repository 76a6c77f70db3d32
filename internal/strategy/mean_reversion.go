package strategy

import (
	"fmt"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
)

// MeanReversionStrategy fades RSI extremes that coincide with a Bollinger band touch.
type MeanReversionStrategy struct{}

func (MeanReversionStrategy) Name() string {
	return MeanReversion
}

func (s MeanReversionStrategy) Evaluate(fs *models.FeatureSet) *models.Signal {
	price := fs.Get(features.Close)
	rsi := fs.Get(features.RSI14)
	lower := fs.Get(features.BBLower)
	upper := fs.Get(features.BBUpper)
	if price <= 0 {
		return nil
	}

	var sig *models.Signal
	var extremity float64
	switch {
	case rsi < 30 && price <= lower:
		sig = newSignal(fs, s.Name(), models.Buy)
		extremity = (30 - rsi) / 30
		sig.Reasoning = append(sig.Reasoning,
			fmt.Sprintf("Oversold: RSI %.1f below 30", rsi),
			fmt.Sprintf("Price %.2f at or below lower band %.2f", price, lower))
	case rsi > 70 && price >= upper:
		sig = newSignal(fs, s.Name(), models.Sell)
		extremity = (rsi - 70) / 30
		sig.Reasoning = append(sig.Reasoning,
			fmt.Sprintf("Overbought: RSI %.1f above 70", rsi),
			fmt.Sprintf("Price %.2f at or above upper band %.2f", price, upper))
	default:
		return nil
	}

	sig.Strength = clamp01(0.3 + extremity)
	confidence := 0.55
	if extremity > 1.0/3 {
		confidence += 0.1
	}
	if fs.Get(features.VolumeRatio) > 1.2 {
		confidence += 0.1
	}
	sig.Confidence = clamp01(confidence)
	sig.RiskScore = clamp01(0.3 + fs.Get(features.Volatility)*0.5)

	atr := fs.Get(features.ATR14)
	bracket(sig, price, atr, 1.5, 0)
	sig.TakeProfit = fs.Get(features.BBMiddle)
	return sig
}
