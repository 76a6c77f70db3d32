package ai

import (
	"context"

	"trading-desk-go/internal/models"
)

// Recommendations returned by analyzers.
const (
	RecommendBuy  = "BUY"
	RecommendSell = "SELL"
	RecommendHold = "HOLD"
)

// Analysis is the advisory opinion on a signal. It never changes the signal.
type Analysis struct {
	Symbol         string  `json:"symbol"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	RiskAssessment string  `json:"risk_assessment,omitempty"`
}

// Agrees reports whether the recommendation matches the signal direction.
func (a Analysis) Agrees(sig *models.Signal) bool {
	return a.Recommendation == string(sig.Direction)
}

// Analyzer is the sentiment/AI collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string, sig *models.Signal) (*Analysis, error)
}
