package models

import "time"

// PortfolioMetrics is the performance bundle attached to a snapshot.
type PortfolioMetrics struct {
	ReturnPct   float64 `json:"return_pct"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	Volatility  float64 `json:"volatility"`
}

// PortfolioSnapshot is written once per PORTFOLIO_UPDATE phase.
type PortfolioSnapshot struct {
	ID             uint               `gorm:"primaryKey" json:"-"`
	CycleID        string             `gorm:"index" json:"cycle_id"`
	Timestamp      time.Time          `gorm:"index" json:"timestamp"`
	TotalValue     float64            `json:"total_value"`
	Cash           float64            `json:"cash"`
	PositionsValue float64            `json:"positions_value"`
	DailyPnL       float64            `json:"daily_pnl"`
	TotalPnL       float64            `json:"total_pnl"`
	Allocations    map[string]float64 `gorm:"serializer:json" json:"allocations"`
	Metrics        PortfolioMetrics   `gorm:"serializer:json" json:"metrics"`
}
