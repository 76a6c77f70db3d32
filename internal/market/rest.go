package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"trading-desk-go/internal/models"
	"trading-desk-go/internal/restclient"
)

// RestProvider reads klines from an exchange-style REST API.
type RestProvider struct {
	client   *restclient.Client
	interval time.Duration
	lookback int
	calendar *Calendar
	logger   *zap.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRestProvider creates a provider backed by client.
func NewRestProvider(client *restclient.Client, interval time.Duration, lookback int, calendar *Calendar, logger *zap.Logger) *RestProvider {
	return &RestProvider{
		client:   client,
		interval: interval,
		lookback: lookback,
		calendar: calendar,
		logger:   logger.Named("rest-market"),
		last:     make(map[string]time.Time),
	}
}

// Fetch implements Provider.
func (p *RestProvider) Fetch(ctx context.Context, symbols []string, segment string) ([]models.PriceBar, error) {
	var bars []models.PriceBar
	for _, symbol := range symbols {
		symbolBars, err := p.fetchSymbol(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("could not fetch bars for %s: %w", symbol, err)
		}
		bars = append(bars, symbolBars...)
	}
	p.logger.Debug("Fetched bars", zap.String("segment", segment), zap.Int("bars", len(bars)))
	return bars, nil
}

func (p *RestProvider) fetchSymbol(ctx context.Context, symbol string) ([]models.PriceBar, error) {
	p.mu.Lock()
	since, seen := p.last[symbol]
	p.mu.Unlock()

	query := map[string]string{
		"symbol":   symbol,
		"interval": klineInterval(p.interval),
		"limit":    strconv.Itoa(p.lookback),
	}
	if seen {
		query["startTime"] = strconv.FormatInt(since.Add(time.Millisecond).UnixMilli(), 10)
	}

	var rows [][]json.RawMessage
	if err := p.client.Get(ctx, "/klines", query, &rows); err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseKline(symbol, row)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if len(bars) > 0 {
		p.mu.Lock()
		p.last[symbol] = bars[len(bars)-1].Timestamp
		p.mu.Unlock()
	}
	return bars, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, ...].
func parseKline(symbol string, row []json.RawMessage) (models.PriceBar, error) {
	if len(row) < 6 {
		return models.PriceBar{}, fmt.Errorf("kline for %s has %d fields", symbol, len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return models.PriceBar{}, fmt.Errorf("could not parse kline time: %w", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		v, err := decimalField(row[i+1])
		if err != nil {
			return models.PriceBar{}, fmt.Errorf("could not parse kline field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return models.PriceBar{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(openTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Source:    "rest",
	}, nil
}

// decimalField accepts both quoted and bare numbers.
func decimalField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

func klineInterval(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dm", max(1, int(d/time.Minute)))
	}
}

// IsOpen implements Provider.
func (p *RestProvider) IsOpen(segment string, now time.Time) bool {
	return p.calendar.IsOpen(segment, now)
}

// HealthCheck pings the server time endpoint.
func (p *RestProvider) HealthCheck(ctx context.Context) error {
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := p.client.Get(ctx, "/time", nil, &out); err != nil {
		return fmt.Errorf("failed to get server time: %w", err)
	}
	return nil
}

// LatestPrice implements Provider.
func (p *RestProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := p.client.Get(ctx, "/ticker/price", map[string]string{"symbol": symbol}, &out); err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
	}
	return price, nil
}
