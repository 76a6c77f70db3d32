package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
	"trading-desk-go/internal/portfolio"
)

// accountingTolerance is the largest drift allowed between a stored position
// and its replayed ledger.
const accountingTolerance = 1e-6

// Diagnostics is the outcome of the emergency health checks.
type Diagnostics struct {
	Checks  map[string]string `json:"checks"`
	Healthy int               `json:"healthy"`
	Total   int               `json:"total"`
}

// Score is the fraction of passing checks.
func (d Diagnostics) Score() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Healthy) / float64(d.Total)
}

func (d Diagnostics) asMap() map[string]any {
	checks := make(map[string]any, len(d.Checks))
	for k, v := range d.Checks {
		checks[k] = v
	}
	return map[string]any{"checks": checks, "healthy": d.Healthy, "total": d.Total}
}

// diagnose checks the datastore, market data, ensemble and accounting.
func (o *Orchestrator) diagnose(ctx context.Context) Diagnostics {
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"datastore", o.deps.Store.Ping},
		{"market_data", o.deps.Market.HealthCheck},
		{"ensemble", o.checkEnsemble},
		{"portfolio", o.checkAccounting},
	}

	d := Diagnostics{Checks: make(map[string]string, len(checks)), Total: len(checks)}
	for _, c := range checks {
		if err := c.fn(ctx); err != nil {
			d.Checks[c.name] = err.Error()
			continue
		}
		d.Checks[c.name] = "ok"
		d.Healthy++
	}
	return d
}

func (o *Orchestrator) checkEnsemble(context.Context) error {
	fs := &models.FeatureSet{
		Symbol:      "DIAGNOSTIC",
		Timestamp:   time.Unix(0, 0).UTC(),
		SampleCount: features.MinBars,
		DataQuality: 1,
		Values: map[string]float64{
			features.Close:       100,
			features.SMA5:        100,
			features.SMA10:       100,
			features.SMA20:       100,
			features.RSI14:       50,
			features.BBUpper:     102,
			features.BBMiddle:    100,
			features.BBLower:     98,
			features.ATR14:       1,
			features.VolumeRatio: 1,
		},
		Flags: map[string]bool{},
	}
	if _, err := o.deps.Ensemble.Generate(fs); err != nil {
		return fmt.Errorf("ensemble probe failed: %w", err)
	}
	return nil
}

// checkAccounting verifies that stored positions match a replay of the ledger
// and that derived cash is finite.
func (o *Orchestrator) checkAccounting(ctx context.Context) error {
	trades, err := o.deps.Store.Trades(ctx)
	if err != nil {
		return err
	}
	positions, err := o.deps.Store.Positions(ctx)
	if err != nil {
		return err
	}
	replayed, err := models.ReplayPositions(trades)
	if err != nil {
		return fmt.Errorf("could not replay ledger: %w", err)
	}
	if len(replayed) != len(positions) {
		return fmt.Errorf("ledger replays %d positions, store holds %d", len(replayed), len(positions))
	}
	for _, p := range positions {
		r, ok := replayed[p.Symbol]
		if !ok || math.Abs(r.Quantity-p.Quantity) > accountingTolerance || math.Abs(r.AvgPrice-p.AvgPrice) > accountingTolerance {
			return fmt.Errorf("position %s does not match its ledger", p.Symbol)
		}
	}
	cash := portfolio.CashFromLedger(o.deps.Portfolio.InitialCapital(), trades)
	if math.IsNaN(cash) || math.IsInf(cash, 0) {
		return errors.New("derived cash is not finite")
	}
	return nil
}
