package models

import (
	"fmt"
	"time"
)

// Position is the long-only holding of one symbol.
type Position struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	Symbol        string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgPrice      float64   `json:"avg_price"`
	LastPrice     float64   `json:"last_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MarketValue is the position marked at its last price, falling back to cost.
func (p Position) MarketValue() float64 {
	price := p.LastPrice
	if price <= 0 {
		price = p.AvgPrice
	}
	return p.Quantity * price
}

// Mark updates the last price and unrealized P&L.
func (p *Position) Mark(price float64) {
	if price <= 0 {
		return
	}
	p.LastPrice = price
	p.UnrealizedPnL = (price - p.AvgPrice) * p.Quantity
}

// Apply folds a trade into the position and returns the realized P&L for sells.
func (p *Position) Apply(t Trade) (float64, error) {
	if t.Symbol != p.Symbol {
		return 0, fmt.Errorf("trade symbol %s does not match position %s", t.Symbol, p.Symbol)
	}
	if t.Quantity <= 0 {
		return 0, fmt.Errorf("trade quantity must be positive, got %.8f", t.Quantity)
	}
	switch t.Side {
	case Buy:
		total := p.Quantity + t.Quantity
		p.AvgPrice = (p.Quantity*p.AvgPrice + t.Quantity*t.Price) / total
		p.Quantity = total
		p.Mark(t.Price)
		return 0, nil
	case Sell:
		if t.Quantity > p.Quantity {
			return 0, fmt.Errorf("cannot sell %.8f %s, holding %.8f", t.Quantity, p.Symbol, p.Quantity)
		}
		realized := (t.Price - p.AvgPrice) * t.Quantity
		p.Quantity -= t.Quantity
		if p.Quantity == 0 {
			p.AvgPrice = 0
			p.UnrealizedPnL = 0
			p.LastPrice = t.Price
			return realized, nil
		}
		p.Mark(t.Price)
		return realized, nil
	}
	return 0, fmt.Errorf("unknown trade side %q", t.Side)
}

// ReplayPositions rebuilds positions from a ledger ordered by time.
// Symbols whose quantity returns to zero are omitted.
func ReplayPositions(trades []Trade) (map[string]Position, error) {
	positions := make(map[string]Position)
	for _, t := range trades {
		pos, ok := positions[t.Symbol]
		if !ok {
			pos = Position{Symbol: t.Symbol}
		}
		if _, err := pos.Apply(t); err != nil {
			return nil, fmt.Errorf("could not replay trade %s: %w", t.ID, err)
		}
		if pos.Quantity == 0 {
			delete(positions, t.Symbol)
			continue
		}
		positions[t.Symbol] = pos
	}
	return positions, nil
}
