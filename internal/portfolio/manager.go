package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trading-desk-go/internal/database"
	"trading-desk-go/internal/models"
	"trading-desk-go/internal/risk"
)

// historyWindow bounds the snapshots used for performance metrics.
const historyWindow = 500

// Manager owns simulated accounting: it books fills, builds the sizing view and
// writes portfolio snapshots.
type Manager struct {
	mu             sync.Mutex
	store          *database.Store
	initialCapital float64
	logger         *zap.Logger
}

// NewManager creates a portfolio manager.
func NewManager(store *database.Store, initialCapital float64, logger *zap.Logger) *Manager {
	return &Manager{store: store, initialCapital: initialCapital, logger: logger.Named("portfolio")}
}

// InitialCapital returns the starting cash.
func (m *Manager) InitialCapital() float64 {
	return m.initialCapital
}

// Cash is initial capital plus the signed sum of every trade's cash flow.
func (m *Manager) Cash(ctx context.Context) (float64, error) {
	trades, err := m.store.Trades(ctx)
	if err != nil {
		return 0, err
	}
	return CashFromLedger(m.initialCapital, trades), nil
}

// CashFromLedger folds trade cash flows onto the initial capital.
func CashFromLedger(initial float64, trades []models.Trade) float64 {
	cash := initial
	for _, t := range trades {
		cash += t.CashFlow()
	}
	return cash
}

// Book builds the risk view used to size a batch of decisions.
func (m *Manager) Book(ctx context.Context, dayStart time.Time) (*risk.Book, error) {
	cash, err := m.Cash(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not compute cash: %w", err)
	}
	positions, err := m.store.Positions(ctx)
	if err != nil {
		return nil, err
	}
	tradesToday, err := m.store.CountTradesSince(ctx, dayStart)
	if err != nil {
		return nil, err
	}
	book := risk.NewBook(cash, 0, tradesToday, positions)
	book.TotalValue = cash + book.PositionsValue()
	return book, nil
}

// WithBook runs fn against a fresh book while holding the portfolio lock, so
// batches from different segments never size against the same cash.
func (m *Manager) WithBook(ctx context.Context, dayStart time.Time, fn func(*risk.Book) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, err := m.Book(ctx, dayStart)
	if err != nil {
		return err
	}
	return fn(book)
}

// Execute books an approved decision as a simulated trade. The trade and its
// position change commit together.
func (m *Manager) Execute(ctx context.Context, d risk.Decision, sig *models.Signal, cycleID, segment string, at time.Time) (*models.Trade, error) {
	trade := &models.Trade{
		ID:             uuid.NewString(),
		CycleID:        cycleID,
		Segment:        segment,
		Symbol:         d.Symbol,
		Side:           d.Side,
		Quantity:       d.Quantity,
		RequestedPrice: d.TargetPrice,
		Price:          d.FillPrice,
		Timestamp:      at.UTC(),
		Commission:     d.Commission,
		Slippage:       d.Slippage,
		SignalID:       sig.ID,
		SignalSource:   sig.Source,
		IsSimulation:   true,
	}
	if _, err := m.store.RecordTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("could not record trade for %s: %w", d.Symbol, err)
	}
	m.logger.Info("Trade executed",
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.Float64("quantity", trade.Quantity),
		zap.Float64("price", trade.Price),
	)
	return trade, nil
}

// Update marks positions to the given prices and writes a snapshot.
func (m *Manager) Update(ctx context.Context, cycleID string, prices map[string]float64, now time.Time, dayStart time.Time) (*models.PortfolioSnapshot, error) {
	if err := m.store.MarkPositions(ctx, prices); err != nil {
		return nil, err
	}
	trades, err := m.store.Trades(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := m.store.Positions(ctx)
	if err != nil {
		return nil, err
	}

	cash := CashFromLedger(m.initialCapital, trades)
	positionsValue := 0.0
	for _, p := range positions {
		positionsValue += p.MarketValue()
	}
	total := cash + positionsValue

	allocations := make(map[string]float64, len(positions))
	for _, p := range positions {
		if total > 0 {
			allocations[p.Symbol] = p.MarketValue() / total * 100
		}
	}

	dayOpen := m.initialCapital
	prev, err := m.store.SnapshotBefore(ctx, dayStart)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		dayOpen = prev.TotalValue
	}

	history, err := m.store.RecentSnapshots(ctx, historyWindow)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(history)+2)
	values = append(values, m.initialCapital)
	for _, s := range history {
		values = append(values, s.TotalValue)
	}
	values = append(values, total)

	snap := &models.PortfolioSnapshot{
		CycleID:        cycleID,
		Timestamp:      now.UTC(),
		TotalValue:     total,
		Cash:           cash,
		PositionsValue: positionsValue,
		DailyPnL:       total - dayOpen,
		TotalPnL:       total - m.initialCapital,
		Allocations:    allocations,
		Metrics:        ComputeMetrics(m.initialCapital, values, trades),
	}
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
