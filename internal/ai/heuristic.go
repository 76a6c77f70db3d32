package ai

import (
	"context"
	"fmt"

	"trading-desk-go/internal/models"
)

// HeuristicAnalyzer recommends from the rule-based direction probability and
// grades confidence by data quality.
type HeuristicAnalyzer struct{}

var _ Analyzer = (*HeuristicAnalyzer)(nil)

// NewHeuristicAnalyzer returns the offline analyzer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

// Analyze implements Analyzer.
func (h *HeuristicAnalyzer) Analyze(ctx context.Context, symbol string, sig *models.Signal) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prob := metaFloat(sig, "direction_prob", 0.5)
	quality := metaFloat(sig, "data_quality", 1)

	rec := RecommendHold
	switch {
	case prob > 0.55:
		rec = RecommendBuy
	case prob < 0.45:
		rec = RecommendSell
	}

	risk := "MEDIUM"
	switch vol := metaFloat(sig, "volatility", 0); {
	case vol > 0.6:
		risk = "HIGH"
	case vol < 0.2:
		risk = "LOW"
	}

	return &Analysis{
		Symbol:         symbol,
		Recommendation: rec,
		Confidence:     ConfidenceForQuality(quality),
		Reasoning:      fmt.Sprintf("Direction probability %.2f with data quality %.2f", prob, quality),
		RiskAssessment: risk,
	}, nil
}

// ConfidenceForQuality maps a data-quality score to prediction confidence.
func ConfidenceForQuality(q float64) float64 {
	switch {
	case q > 0.8:
		return 0.75
	case q > 0.6:
		return 0.65
	case q > 0.4:
		return 0.55
	default:
		return 0.45
	}
}

func metaFloat(sig *models.Signal, key string, fallback float64) float64 {
	if sig == nil || sig.Metadata == nil {
		return fallback
	}
	switch v := sig.Metadata[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return fallback
}
