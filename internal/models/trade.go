package models

import "time"

// Trade represents a simulated fill. The ledger is append-only.
type Trade struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	CycleID        string    `gorm:"index" json:"cycle_id"`
	Segment        string    `json:"segment"`
	Symbol         string    `gorm:"index;not null" json:"symbol"`
	Side           Direction `gorm:"not null" json:"side"`
	Quantity       float64   `json:"quantity"`
	RequestedPrice float64   `json:"requested_price"`
	Price          float64   `json:"price"` // executed
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	Commission     float64   `json:"commission"`
	Slippage       float64   `json:"slippage"`
	RealizedPnL    *float64  `json:"realized_pnl,omitempty"`
	SignalID       uint      `json:"signal_id"`
	SignalSource   string    `json:"signal_source"`
	IsSimulation   bool      `json:"is_simulation"`
}

// Notional is the filled value of the trade before commission.
func (t Trade) Notional() float64 {
	return t.Quantity * t.Price
}

// CashFlow is the signed effect of the trade on cash.
func (t Trade) CashFlow() float64 {
	if t.Side == Buy {
		return -(t.Notional() + t.Commission)
	}
	return t.Notional() - t.Commission
}
