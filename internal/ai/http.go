package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trading-desk-go/internal/models"
	"trading-desk-go/internal/restclient"
)

// HTTPAnalyzer delegates analysis to an external service.
type HTTPAnalyzer struct {
	client *restclient.Client
	logger *zap.Logger
}

var _ Analyzer = (*HTTPAnalyzer)(nil)

type analyzeRequest struct {
	Symbol     string         `json:"symbol"`
	Direction  string         `json:"direction"`
	Strength   float64        `json:"strength"`
	Confidence float64        `json:"confidence"`
	RiskScore  float64        `json:"risk_score"`
	Reasoning  []string       `json:"reasoning"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewHTTPAnalyzer creates an analyzer backed by client.
func NewHTTPAnalyzer(client *restclient.Client, logger *zap.Logger) *HTTPAnalyzer {
	return &HTTPAnalyzer{client: client, logger: logger.Named("ai-http")}
}

// Analyze implements Analyzer.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, symbol string, sig *models.Signal) (*Analysis, error) {
	req := analyzeRequest{
		Symbol:     symbol,
		Direction:  string(sig.Direction),
		Strength:   sig.Strength,
		Confidence: sig.Confidence,
		RiskScore:  sig.RiskScore,
		Reasoning:  sig.Reasoning,
		Metadata:   sig.Metadata,
	}
	var out Analysis
	if err := a.client.Post(ctx, "/analyze", req, &out); err != nil {
		return nil, fmt.Errorf("could not analyze %s: %w", symbol, err)
	}
	switch out.Recommendation {
	case RecommendBuy, RecommendSell, RecommendHold:
	default:
		return nil, fmt.Errorf("analyzer returned unknown recommendation %q for %s", out.Recommendation, symbol)
	}
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	a.logger.Debug("Analysis received", zap.String("symbol", symbol), zap.String("recommendation", out.Recommendation))
	return &out, nil
}
