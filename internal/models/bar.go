package models

import "time"

// PriceBar is one OHLCV bar. Bars are append-only per (symbol, timestamp).
type PriceBar struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Symbol    string    `gorm:"uniqueIndex:idx_bar_symbol_ts;not null" json:"symbol"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_bar_symbol_ts;not null" json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Source    string    `json:"source"`
}

// Valid reports whether the bar is internally consistent.
func (b PriceBar) Valid() bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 || b.Volume < 0 {
		return false
	}
	if b.High < b.Low {
		return false
	}
	return b.High >= b.Open && b.High >= b.Close && b.Low <= b.Open && b.Low <= b.Close
}
