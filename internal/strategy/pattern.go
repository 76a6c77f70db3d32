package strategy

import (
	"fmt"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
)

var (
	bullishPatterns = []string{features.FlagBullishEngulfing, features.FlagHammer, features.FlagThreeWhiteSoldiers}
	bearishPatterns = []string{features.FlagBearishEngulfing, features.FlagShootingStar, features.FlagThreeBlackCrows}
)

// PatternStrategy votes on candlestick patterns. A doji on the last bar
// lowers confidence.
type PatternStrategy struct{}

func (PatternStrategy) Name() string {
	return PatternRecognition
}

func (s PatternStrategy) Evaluate(fs *models.FeatureSet) *models.Signal {
	var bulls, bears []string
	for _, name := range bullishPatterns {
		if fs.Flag(name) {
			bulls = append(bulls, name)
		}
	}
	for _, name := range bearishPatterns {
		if fs.Flag(name) {
			bears = append(bears, name)
		}
	}

	var sig *models.Signal
	var matched []string
	switch {
	case len(bulls) > len(bears):
		sig = newSignal(fs, s.Name(), models.Buy)
		matched = bulls
	case len(bears) > len(bulls):
		sig = newSignal(fs, s.Name(), models.Sell)
		matched = bears
	default:
		return nil
	}
	for _, name := range matched {
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("Pattern detected: %s", name))
	}

	price := fs.Get(features.Close)
	sig.Strength = clamp01(0.4 + 0.2*float64(len(matched)-1))
	confidence := 0.6
	if (sig.Direction == models.Buy) == fs.Flag(features.FlagAboveSMA20) {
		confidence += 0.05
		sig.Reasoning = append(sig.Reasoning, "Pattern agrees with trend context")
	}
	if fs.Flag(features.FlagDoji) {
		confidence -= 0.05
	}
	sig.Confidence = clamp01(confidence)
	sig.RiskScore = 0.4
	bracket(sig, price, fs.Get(features.ATR14), 1.5, 2)
	return sig
}
