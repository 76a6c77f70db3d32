package strategy

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
)

const consensusFraction = 0.15

// Weights maps strategy names to their vote weight. The total is always
// computed from the table, so it need not sum to one.
type Weights map[string]float64

// DefaultWeights is the built-in weight table.
func DefaultWeights() Weights {
	return Weights{
		TrendFollowing:     0.25,
		MeanReversion:      0.25,
		Breakout:           0.20,
		PatternRecognition: 0.15,
	}
}

// Total sums the weights.
func (w Weights) Total() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Threshold is the score a side must strictly exceed to produce a consensus.
func (w Weights) Threshold() float64 {
	return w.Total() * consensusFraction
}

// Result holds every individual signal and the consensus, if any.
type Result struct {
	Signals  []*models.Signal
	Ensemble *models.Signal
}

// Ensemble runs every strategy over a feature set and reconciles the outputs.
type Ensemble struct {
	strategies []Strategy
	weights    Weights
	logger     *zap.Logger
}

// NewEnsemble creates an ensemble. A nil weight table uses DefaultWeights.
func NewEnsemble(strategies []Strategy, weights Weights, logger *zap.Logger) *Ensemble {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Ensemble{strategies: strategies, weights: weights, logger: logger.Named("ensemble")}
}

// Weights returns the ensemble's weight table.
func (e *Ensemble) Weights() Weights {
	return e.weights
}

// Generate evaluates all strategies. Feature sets below the minimum sample
// count produce nothing and no strategy is invoked. A panicking strategy is
// reported in the error while the others still vote.
func (e *Ensemble) Generate(fs *models.FeatureSet) (Result, error) {
	var res Result
	if fs == nil || fs.SampleCount < features.MinBars {
		return res, nil
	}

	var errs []error
	for _, s := range e.strategies {
		sig, err := evaluate(s, fs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sig != nil {
			res.Signals = append(res.Signals, sig)
		}
	}

	res.Ensemble = Reconcile(res.Signals, e.weights)
	if res.Ensemble != nil {
		res.Ensemble.Metadata["rsi"] = fs.Get(features.RSI14)
		res.Ensemble.Metadata["direction_prob"] = fs.Get(features.DirectionProb)
		res.Ensemble.Metadata["volatility"] = fs.Get(features.Volatility)
		res.Ensemble.Metadata["data_quality"] = fs.DataQuality
		e.logger.Debug("Consensus reached",
			zap.String("symbol", fs.Symbol),
			zap.String("direction", string(res.Ensemble.Direction)),
			zap.Float64("strength", res.Ensemble.Strength),
		)
	}
	return res, errors.Join(errs...)
}

func evaluate(s Strategy, fs *models.FeatureSet) (sig *models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked on %s: %v", s.Name(), fs.Symbol, r)
		}
	}()
	return s.Evaluate(fs), nil
}

// Reconcile combines individual signals into at most one consensus signal.
func Reconcile(signals []*models.Signal, weights Weights) *models.Signal {
	total := weights.Total()
	if len(signals) == 0 || total <= 0 {
		return nil
	}

	var buys, sells []*models.Signal
	var buyScore, sellScore float64
	for _, sig := range signals {
		score := sig.Strength * sig.Confidence * weights[sig.Source]
		switch sig.Direction {
		case models.Buy:
			buys = append(buys, sig)
			buyScore += score
		case models.Sell:
			sells = append(sells, sig)
			sellScore += score
		}
	}

	threshold := weights.Threshold()
	var winners []*models.Signal
	var dir models.Direction
	var score float64
	switch {
	case buyScore > sellScore && buyScore > threshold:
		winners, dir, score = buys, models.Buy, buyScore
	case sellScore > buyScore && sellScore > threshold:
		winners, dir, score = sells, models.Sell, sellScore
	default:
		return nil
	}

	first := winners[0]
	out := &models.Signal{
		Symbol:    first.Symbol,
		Timestamp: first.Timestamp,
		Source:    models.SourceEnsemble,
		Direction: dir,
		Strength:  math.Min(1, score/(total*0.5)),
		Reasoning: []string{fmt.Sprintf("Ensemble %s: %d of %d strategies agree (score %.4f, threshold %.4f)",
			dir, len(winners), len(signals), score, threshold)},
	}

	contributors := make([]string, 0, len(winners))
	var confidence, target, stop, take float64
	for _, w := range winners {
		contributors = append(contributors, w.Source)
		confidence += w.Confidence
		target += w.TargetPrice
		stop += w.StopLoss
		take += w.TakeProfit
		out.RiskScore = math.Max(out.RiskScore, w.RiskScore)
		out.Reasoning = append(out.Reasoning, w.Reasoning...)
	}
	n := float64(len(winners))
	out.Confidence = confidence / n
	out.TargetPrice = target / n
	out.StopLoss = stop / n
	out.TakeProfit = take / n
	out.Metadata = map[string]any{
		"contributors": contributors,
		"buy_score":    buyScore,
		"sell_score":   sellScore,
		"threshold":    threshold,
	}
	return out
}
