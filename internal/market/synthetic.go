package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"trading-desk-go/internal/models"
)

const (
	syntheticDrift      = 0.0005
	syntheticVolatility = 0.02
	syntheticSource     = "synthetic"
)

// SyntheticProvider generates a seeded random walk per symbol. The first fetch
// of a symbol backfills the lookback window; later fetches produce the bars
// elapsed since the previous one.
type SyntheticProvider struct {
	mu         sync.Mutex
	rng        *rand.Rand
	interval   time.Duration
	lookback   int
	basePrices map[string]float64
	state      map[string]*walk
	calendar   *Calendar
	now        func() time.Time
	logger     *zap.Logger
}

type walk struct {
	last  time.Time
	close float64
}

// NewSyntheticProvider creates a random-walk provider.
func NewSyntheticProvider(seed int64, interval time.Duration, lookback int, basePrices map[string]float64,
	calendar *Calendar, logger *zap.Logger) *SyntheticProvider {
	return &SyntheticProvider{
		rng:        rand.New(rand.NewSource(seed)),
		interval:   interval,
		lookback:   lookback,
		basePrices: basePrices,
		state:      make(map[string]*walk),
		calendar:   calendar,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Named("synthetic-market"),
	}
}

// SetClock overrides the wall clock.
func (p *SyntheticProvider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Fetch implements Provider.
func (p *SyntheticProvider) Fetch(ctx context.Context, symbols []string, segment string) ([]models.PriceBar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	end := p.now().UTC().Truncate(p.interval)
	var bars []models.PriceBar
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, ok := p.state[symbol]
		if !ok {
			w = &walk{
				last:  end.Add(-time.Duration(p.lookback) * p.interval),
				close: p.basePrice(symbol),
			}
			p.state[symbol] = w
		}
		for ts := w.last.Add(p.interval); !ts.After(end); ts = ts.Add(p.interval) {
			bars = append(bars, p.step(symbol, ts, w))
		}
	}
	p.logger.Debug("Generated bars", zap.String("segment", segment), zap.Int("bars", len(bars)))
	return bars, nil
}

func (p *SyntheticProvider) basePrice(symbol string) float64 {
	if price, ok := p.basePrices[symbol]; ok && price > 0 {
		return price
	}
	return 50 + p.rng.Float64()*250
}

func (p *SyntheticProvider) step(symbol string, ts time.Time, w *walk) models.PriceBar {
	open := w.close * (1 + p.rng.NormFloat64()*0.005)
	closePrice := math.Max(w.close*(1+syntheticDrift+syntheticVolatility*p.rng.NormFloat64()), 1.0)
	high := math.Max(open, closePrice) * (1 + math.Abs(p.rng.NormFloat64()*0.01))
	low := math.Min(open, closePrice) * (1 - math.Abs(p.rng.NormFloat64()*0.01))
	volume := math.Round(math.Exp(15 + p.rng.NormFloat64()))

	w.last = ts
	w.close = closePrice
	return models.PriceBar{
		Symbol: symbol, Timestamp: ts,
		Open: open, High: high, Low: low, Close: closePrice, Volume: volume,
		Source: syntheticSource,
	}
}

// IsOpen implements Provider.
func (p *SyntheticProvider) IsOpen(segment string, now time.Time) bool {
	return p.calendar.IsOpen(segment, now)
}

// HealthCheck implements Provider.
func (p *SyntheticProvider) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// LatestPrice implements Provider.
func (p *SyntheticProvider) LatestPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.state[symbol]
	if !ok {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
	}
	return w.close, nil
}
