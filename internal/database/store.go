package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trading-desk-go/internal/models"
)

// Store is the persistence boundary for every desk entity.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping verifies the datastore is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("could not access database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("could not ping database: %w", err)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Cycle{}).Count(&n).Error; err != nil {
		return fmt.Errorf("could not query cycles: %w", err)
	}
	return nil
}

// SaveBars appends bars, ignoring rows already stored for (symbol, timestamp).
func (s *Store) SaveBars(ctx context.Context, bars []models.PriceBar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
		DoNothing: true,
	}).CreateInBatches(&bars, 200)
	if res.Error != nil {
		return 0, fmt.Errorf("could not save bars: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RecentBars returns up to n most recent bars for symbol, oldest first.
func (s *Store) RecentBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error) {
	var bars []models.PriceBar
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc").
		Limit(n).
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("could not load bars for %s: %w", symbol, err)
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// LatestBarTime returns the newest stored bar timestamp for symbol.
func (s *Store) LatestBarTime(ctx context.Context, symbol string) (time.Time, bool, error) {
	var bar models.PriceBar
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc").
		First(&bar).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("could not load latest bar for %s: %w", symbol, err)
	}
	return bar.Timestamp, true, nil
}

// SaveFeatureSet upserts the feature set for (symbol, timestamp).
func (s *Store) SaveFeatureSet(ctx context.Context, fs *models.FeatureSet) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{"indicator_values", "indicator_flags", "sample_count", "latency_ms", "data_quality"}),
	}).Create(fs).Error
	if err != nil {
		return fmt.Errorf("could not save features for %s: %w", fs.Symbol, err)
	}
	return nil
}

// LatestFeatureSet returns the most recent feature set for symbol.
func (s *Store) LatestFeatureSet(ctx context.Context, symbol string) (*models.FeatureSet, error) {
	var fs models.FeatureSet
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc").
		First(&fs).Error
	if err != nil {
		return nil, fmt.Errorf("could not load features for %s: %w", symbol, err)
	}
	return &fs, nil
}

// SaveSignals upserts signals on (symbol, timestamp, source) and fills their IDs.
func (s *Store) SaveSignals(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sig := range signals {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "symbol"}, {Name: "timestamp"}, {Name: "source"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"cycle_id", "direction", "strength", "confidence", "reasoning",
					"target_price", "stop_loss", "take_profit", "risk_score", "metadata",
				}),
			}).Create(sig).Error
			if err != nil {
				return fmt.Errorf("could not save %s signal for %s: %w", sig.Source, sig.Symbol, err)
			}
			var stored models.Signal
			err = tx.Select("id").
				Where("symbol = ? AND timestamp = ? AND source = ?", sig.Symbol, sig.Timestamp.UTC(), sig.Source).
				First(&stored).Error
			if err != nil {
				return fmt.Errorf("could not resolve signal id for %s: %w", sig.Symbol, err)
			}
			sig.ID = stored.ID
		}
		return nil
	})
}

// RecentSignals returns up to n newest signals, newest first.
func (s *Store) RecentSignals(ctx context.Context, n int) ([]models.Signal, error) {
	var signals []models.Signal
	if err := s.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(n).Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("could not load signals: %w", err)
	}
	return signals, nil
}

// SignalsByID loads signals keyed by ID.
func (s *Store) SignalsByID(ctx context.Context, ids []uint) (map[uint]models.Signal, error) {
	out := make(map[uint]models.Signal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var signals []models.Signal
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("could not load signals: %w", err)
	}
	for _, sig := range signals {
		out[sig.ID] = sig
	}
	return out, nil
}

// RecordTrade appends the trade and applies it to the symbol's position in one
// transaction. Realized P&L is set on sells. The resulting position is returned;
// its quantity is zero when the position was closed and deleted.
func (s *Store) RecordTrade(ctx context.Context, trade *models.Trade) (*models.Position, error) {
	var result models.Position
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pos models.Position
		err := tx.Where("symbol = ?", trade.Symbol).First(&pos).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			pos = models.Position{Symbol: trade.Symbol}
		case err != nil:
			return fmt.Errorf("could not load position %s: %w", trade.Symbol, err)
		}

		realized, err := pos.Apply(*trade)
		if err != nil {
			return err
		}
		if trade.Side == models.Sell {
			trade.RealizedPnL = &realized
		}
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("could not append trade: %w", err)
		}

		pos.UpdatedAt = trade.Timestamp
		if pos.Quantity == 0 {
			if pos.ID != 0 {
				if err := tx.Delete(&pos).Error; err != nil {
					return fmt.Errorf("could not close position %s: %w", pos.Symbol, err)
				}
			}
		} else if err := tx.Save(&pos).Error; err != nil {
			return fmt.Errorf("could not save position %s: %w", pos.Symbol, err)
		}
		result = pos
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Trades returns the ledger ordered by time.
func (s *Store) Trades(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	if err := s.db.WithContext(ctx).Order("timestamp asc, rowid asc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("could not load trades: %w", err)
	}
	return trades, nil
}

// TradesForSymbol returns the ledger of one symbol ordered by time.
func (s *Store) TradesForSymbol(ctx context.Context, symbol string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp asc, rowid asc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("could not load trades for %s: %w", symbol, err)
	}
	return trades, nil
}

// TradesSince returns trades at or after since, ordered by time.
func (s *Store) TradesSince(ctx context.Context, since time.Time) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("timestamp >= ?", since.UTC()).
		Order("timestamp asc, rowid asc").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("could not load trades: %w", err)
	}
	return trades, nil
}

// CountTradesSince counts trades at or after since.
func (s *Store) CountTradesSince(ctx context.Context, since time.Time) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("timestamp >= ?", since.UTC()).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("could not count trades: %w", err)
	}
	return int(n), nil
}

// Positions returns every open position.
func (s *Store) Positions(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	if err := s.db.WithContext(ctx).Order("symbol asc").Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("could not load positions: %w", err)
	}
	return positions, nil
}

// MarkPositions updates last prices and unrealized P&L for the given symbols.
func (s *Store) MarkPositions(ctx context.Context, prices map[string]float64) error {
	if len(prices) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var positions []models.Position
		if err := tx.Find(&positions).Error; err != nil {
			return fmt.Errorf("could not load positions: %w", err)
		}
		for i := range positions {
			price, ok := prices[positions[i].Symbol]
			if !ok {
				continue
			}
			positions[i].Mark(price)
			if err := tx.Save(&positions[i]).Error; err != nil {
				return fmt.Errorf("could not mark position %s: %w", positions[i].Symbol, err)
			}
		}
		return nil
	})
}

// SaveSnapshot appends a portfolio snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error {
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("could not save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil when none exist.
func (s *Store) LatestSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	var snap models.PortfolioSnapshot
	err := s.db.WithContext(ctx).Order("timestamp desc, id desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load latest snapshot: %w", err)
	}
	return &snap, nil
}

// RecentSnapshots returns up to n newest snapshots, oldest first.
func (s *Store) RecentSnapshots(ctx context.Context, n int) ([]models.PortfolioSnapshot, error) {
	var snaps []models.PortfolioSnapshot
	if err := s.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(n).Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("could not load snapshots: %w", err)
	}
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}

// SnapshotBefore returns the newest snapshot strictly before t, or nil.
func (s *Store) SnapshotBefore(ctx context.Context, t time.Time) (*models.PortfolioSnapshot, error) {
	var snap models.PortfolioSnapshot
	err := s.db.WithContext(ctx).Where("timestamp < ?", t.UTC()).Order("timestamp desc, id desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load snapshot: %w", err)
	}
	return &snap, nil
}

// SaveCycle inserts or updates a cycle record.
func (s *Store) SaveCycle(ctx context.Context, cycle *models.Cycle) error {
	if err := s.db.WithContext(ctx).Save(cycle).Error; err != nil {
		return fmt.Errorf("could not save cycle %s: %w", cycle.ID, err)
	}
	return nil
}

// RecentCycles returns up to n newest cycles of a segment; an empty segment means all.
func (s *Store) RecentCycles(ctx context.Context, segment string, n int) ([]models.Cycle, error) {
	q := s.db.WithContext(ctx).Order("started_at desc").Limit(n)
	if segment != "" {
		q = q.Where("segment = ?", segment)
	}
	var cycles []models.Cycle
	if err := q.Find(&cycles).Error; err != nil {
		return nil, fmt.Errorf("could not load cycles: %w", err)
	}
	return cycles, nil
}
