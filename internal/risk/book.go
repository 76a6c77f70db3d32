package risk

import "trading-desk-go/internal/models"

// Book is the portfolio view a batch of decisions is sized against. Approved
// decisions reserve their capital on the book so later candidates in the same
// batch see it as spent.
type Book struct {
	Cash        float64
	TotalValue  float64
	TradesToday int
	Positions   map[string]models.Position
}

// NewBook copies positions so reservations do not leak into the caller's map.
func NewBook(cash, totalValue float64, tradesToday int, positions []models.Position) *Book {
	b := &Book{Cash: cash, TotalValue: totalValue, TradesToday: tradesToday, Positions: make(map[string]models.Position, len(positions))}
	for _, p := range positions {
		b.Positions[p.Symbol] = p
	}
	return b
}

// PositionsValue is the marked value of all holdings.
func (b *Book) PositionsValue() float64 {
	total := 0.0
	for _, p := range b.Positions {
		total += p.MarketValue()
	}
	return total
}

func (b *Book) reserve(d Decision) {
	b.TradesToday++
	pos := b.Positions[d.Symbol]
	pos.Symbol = d.Symbol
	switch d.Side {
	case models.Buy:
		b.Cash -= d.Notional() + d.Commission
		pos.AvgPrice = (pos.Quantity*pos.AvgPrice + d.Quantity*d.FillPrice) / (pos.Quantity + d.Quantity)
		pos.Quantity += d.Quantity
		pos.LastPrice = d.FillPrice
	case models.Sell:
		b.Cash += d.Notional() - d.Commission
		pos.Quantity -= d.Quantity
		pos.LastPrice = d.FillPrice
	}
	if pos.Quantity <= 0 {
		delete(b.Positions, d.Symbol)
		return
	}
	b.Positions[d.Symbol] = pos
}
