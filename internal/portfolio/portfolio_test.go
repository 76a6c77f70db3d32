package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trading-desk-go/internal/config"
	"trading-desk-go/internal/database"
	"trading-desk-go/internal/models"
	"trading-desk-go/internal/risk"
)

func setupManager(t *testing.T) (*Manager, *database.Store) {
	t.Helper()
	db, err := database.NewDatabase(config.Database{DSN: "file::memory:"})
	require.NoError(t, err)
	store := database.NewStore(db)
	return NewManager(store, 100000, zap.NewNop()), store
}

func pnl(v float64) *float64 { return &v }

func TestCashFromLedger(t *testing.T) {
	trades := []models.Trade{
		{Side: models.Buy, Quantity: 10, Price: 100, Commission: 1},
		{Side: models.Sell, Quantity: 5, Price: 110, Commission: 0.55},
	}

	assert.InDelta(t, 100000-1001+549.45, CashFromLedger(100000, trades), 1e-9)
}

func TestManager_ExecuteAndUpdate(t *testing.T) {
	// Arrange
	m, store := setupManager(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	dayStart := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	sig := &models.Signal{ID: 7, Source: models.SourceEnsemble}
	d := risk.Decision{Approved: true, Symbol: "AAPL", Side: models.Buy, Quantity: 10, TargetPrice: 99.9, FillPrice: 100, Commission: 1, Slippage: 0.001}

	// Act
	trade, err := m.Execute(ctx, d, sig, "cycle-1", "equities", now)
	require.NoError(t, err)
	snap, err := m.Update(ctx, "cycle-1", map[string]float64{"AAPL": 110}, now, dayStart)
	require.NoError(t, err)

	// Assert
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, uint(7), trade.SignalID)
	assert.True(t, trade.IsSimulation)

	assert.InDelta(t, 98999.0, snap.Cash, 1e-9)
	assert.InDelta(t, 1100.0, snap.PositionsValue, 1e-9)
	assert.InDelta(t, 100099.0, snap.TotalValue, 1e-9)
	assert.InDelta(t, 99.0, snap.TotalPnL, 1e-9)
	assert.InDelta(t, 99.0, snap.DailyPnL, 1e-9)
	assert.InDelta(t, 1100.0/100099.0*100, snap.Allocations["AAPL"], 1e-9)
	assert.InDelta(t, 0.099, snap.Metrics.ReturnPct, 1e-9)

	positions, err := store.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 100.0, positions[0].UnrealizedPnL, 1e-9)

	book, err := m.Book(ctx, dayStart)
	require.NoError(t, err)
	assert.Equal(t, 1, book.TradesToday)
	assert.InDelta(t, 100099.0, book.TotalValue, 1e-9)

	nextDay, err := m.Book(ctx, dayStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, nextDay.TradesToday)
}

func TestManager_WithBookSerializesBatches(t *testing.T) {
	// Arrange
	m, _ := setupManager(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	dayStart := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	sig := &models.Signal{ID: 7, Source: models.SourceEnsemble}
	d := risk.Decision{Approved: true, Symbol: "AAPL", Side: models.Buy, Quantity: 10, TargetPrice: 99.9, FillPrice: 100, Commission: 1, Slippage: 0.001}

	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- m.WithBook(ctx, dayStart, func(book *risk.Book) error {
			close(entered)
			<-release
			_, err := m.Execute(ctx, d, sig, "cycle-1", "equities", now)
			return err
		})
	}()
	<-entered

	// Act
	var second *risk.Book
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- m.WithBook(ctx, dayStart, func(book *risk.Book) error {
			second = book
			return nil
		})
	}()

	// Assert
	assert.Never(t, func() bool { return len(secondDone) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)
	require.NotNil(t, second)
	assert.InDelta(t, 100000-1001.0, second.Cash, 1e-9)
	assert.Equal(t, 1, second.TradesToday)
}

func TestManager_DailyPnLUsesPreviousDayClose(t *testing.T) {
	m, store := setupManager(t)
	ctx := context.Background()
	dayStart := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSnapshot(ctx, &models.PortfolioSnapshot{Timestamp: dayStart.Add(-time.Hour), TotalValue: 99000}))

	snap, err := m.Update(ctx, "c", nil, dayStart.Add(time.Hour), dayStart)

	require.NoError(t, err)
	assert.InDelta(t, 1000.0, snap.DailyPnL, 1e-9)
	assert.InDelta(t, 0.0, snap.TotalPnL, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 0.25, MaxDrawdown([]float64{100, 120, 90, 130}), 1e-12)
	assert.Zero(t, MaxDrawdown([]float64{100, 101, 102}))
}

func TestComputeMetrics(t *testing.T) {
	trades := []models.Trade{
		{Side: models.Sell, RealizedPnL: pnl(5)},
		{Side: models.Sell, RealizedPnL: pnl(-2)},
		{Side: models.Buy},
	}

	m := ComputeMetrics(100, []float64{100, 110, 99, 120}, trades)

	assert.InDelta(t, 20.0, m.ReturnPct, 1e-12)
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 0.5, m.WinRate)
	assert.Greater(t, m.Volatility, 0.0)
	assert.Greater(t, m.Sharpe, 0.0)
}

func TestAttribute(t *testing.T) {
	// Arrange
	t0 := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	signals := map[uint]models.Signal{
		1: {ID: 1, Source: models.SourceEnsemble, Metadata: map[string]any{"contributors": []any{"trend_following", "breakout"}}},
		2: {ID: 2, Source: models.SourceEnsemble, Metadata: map[string]any{"contributors": []any{"mean_reversion"}}},
	}
	trades := []models.Trade{
		{Symbol: "AAPL", Side: models.Buy, Quantity: 10, Price: 100, SignalID: 1, Timestamp: t0},
		{Symbol: "AAPL", Side: models.Sell, Quantity: 5, Price: 110, SignalID: 2, Timestamp: t0.Add(time.Minute)},
		{Symbol: "AAPL", Side: models.Sell, Quantity: 5, Price: 95, SignalID: 2, Timestamp: t0.Add(2 * time.Minute)},
		{Symbol: "MSFT", Side: models.Buy, Quantity: 1, Price: 50, SignalID: 2, Timestamp: t0.Add(3 * time.Minute)},
		{Symbol: "MSFT", Side: models.Sell, Quantity: 1, Price: 60, SignalID: 1, Timestamp: t0.Add(4 * time.Minute)},
	}

	// Act
	stats := Attribute(trades, signals)

	// Assert
	trend := stats["trend_following"]
	assert.Equal(t, 2, trend.Samples)
	assert.Equal(t, 0.5, trend.WinRate)
	assert.InDelta(t, 0.10, trend.AvgWin, 1e-12)
	assert.InDelta(t, 0.05, trend.AvgLoss, 1e-12)
	assert.Equal(t, trend, stats["breakout"])

	mr := stats["mean_reversion"]
	assert.Equal(t, 1, mr.Samples)
	assert.Equal(t, 1.0, mr.WinRate)
	assert.InDelta(t, 0.2, mr.AvgWin, 1e-12)

	assert.Equal(t, 3, stats[models.SourceEnsemble].Samples)
	assert.ElementsMatch(t, []uint{1, 2}, SignalIDs(trades))
}

func TestComputeStatistics(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		{Side: models.Buy, Timestamp: now.Add(-48 * time.Hour), Commission: 1},
		{Side: models.Sell, Timestamp: now.Add(-30 * time.Hour), RealizedPnL: pnl(-4), Commission: 1},
		{Side: models.Buy, Timestamp: now.Add(-2 * time.Hour), Commission: 1},
		{Side: models.Sell, Timestamp: now.Add(-time.Hour), RealizedPnL: pnl(10), Commission: 1},
	}

	stats := ComputeStatistics(trades, now)

	assert.Equal(t, int64(4), stats.AllTime.TotalTrades)
	assert.Equal(t, int64(2), stats.AllTime.ClosedTrades)
	assert.Equal(t, 0.5, stats.AllTime.WinRate)
	assert.Equal(t, 6.0, stats.AllTime.TotalProfit)
	assert.Equal(t, 4.0, stats.AllTime.Commission)
	assert.Equal(t, int64(2), stats.Since24h.TotalTrades)
	assert.Equal(t, 1.0, stats.Since24h.WinRate)
	assert.Equal(t, 10.0, stats.Since24h.TotalProfit)
}
