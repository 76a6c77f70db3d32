package market

import (
	"context"
	"errors"
	"time"

	"trading-desk-go/internal/models"
)

// ErrNoPrice is returned when no price is known for a symbol.
var ErrNoPrice = errors.New("no price available")

// Provider is the market data feed consumed by the orchestrator.
type Provider interface {
	// Fetch returns bars for symbols produced since the previous fetch.
	Fetch(ctx context.Context, symbols []string, segment string) ([]models.PriceBar, error)
	// IsOpen reports whether the segment's market is trading at now.
	IsOpen(segment string, now time.Time) bool
	HealthCheck(ctx context.Context) error
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}
