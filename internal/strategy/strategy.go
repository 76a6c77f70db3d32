package strategy

import (
	"math"

	"trading-desk-go/internal/models"
)

// Strategy names. They double as signal sources and prior keys.
const (
	TrendFollowing     = "trend_following"
	MeanReversion      = "mean_reversion"
	Breakout           = "breakout"
	PatternRecognition = "pattern_recognition"
)

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate returns a signal for the feature set, or nil for HOLD.
	// Implementations are pure: no I/O and no retained state.
	Evaluate(fs *models.FeatureSet) *models.Signal
}

// Defaults returns the built-in strategies in evaluation order.
func Defaults() []Strategy {
	return []Strategy{
		TrendFollowingStrategy{},
		MeanReversionStrategy{},
		BreakoutStrategy{},
		PatternStrategy{},
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func newSignal(fs *models.FeatureSet, source string, dir models.Direction) *models.Signal {
	return &models.Signal{
		Symbol:    fs.Symbol,
		Timestamp: fs.Timestamp,
		Source:    source,
		Direction: dir,
	}
}

// bracket sets entry, stop and take-profit around the close using ATR multiples.
func bracket(sig *models.Signal, price, atr, stopMult, takeMult float64) {
	sig.TargetPrice = price
	if sig.Direction == models.Buy {
		sig.StopLoss = math.Max(price-stopMult*atr, 0)
		sig.TakeProfit = price + takeMult*atr
		return
	}
	sig.StopLoss = price + stopMult*atr
	sig.TakeProfit = math.Max(price-takeMult*atr, 0)
}
