package portfolio

import (
	"time"

	"trading-desk-go/internal/models"
)

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64   `json:"total_trades"`
	ClosedTrades     int64   `json:"closed_trades"`
	ProfitableTrades int64   `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
	Commission       float64 `json:"commission"`
}

// Statistics compares the last 24 hours with the whole ledger.
type Statistics struct {
	Since24h StatsDetail               `json:"since_24h"`
	AllTime  StatsDetail               `json:"all_time"`
	Latest   *models.PortfolioSnapshot `json:"latest_snapshot,omitempty"`
}

// ComputeStatistics calculates trading statistics relative to now.
func ComputeStatistics(trades []models.Trade, now time.Time) Statistics {
	since24h := now.Add(-24 * time.Hour)
	var stats Statistics

	for _, trade := range trades {
		stats.AllTime.add(trade)
		if trade.Timestamp.After(since24h) {
			stats.Since24h.add(trade)
		}
	}
	stats.AllTime.finish()
	stats.Since24h.finish()
	return stats
}

func (s *StatsDetail) add(t models.Trade) {
	s.TotalTrades++
	s.Commission += t.Commission
	if t.RealizedPnL == nil {
		return
	}
	s.ClosedTrades++
	if *t.RealizedPnL > 0 {
		s.ProfitableTrades++
	}
	s.TotalProfit += *t.RealizedPnL
}

func (s *StatsDetail) finish() {
	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.ClosedTrades)
	}
}
