package models

import "time"

// FeatureSet holds the indicators derived from the most recent bars of a symbol.
// It is recomputed every cycle and upserted on (symbol, timestamp).
type FeatureSet struct {
	ID          uint               `gorm:"primaryKey" json:"-"`
	Symbol      string             `gorm:"uniqueIndex:idx_feature_symbol_ts;not null" json:"symbol"`
	Timestamp   time.Time          `gorm:"uniqueIndex:idx_feature_symbol_ts;not null" json:"timestamp"`
	Values      map[string]float64 `gorm:"column:indicator_values;serializer:json" json:"values"`
	Flags       map[string]bool    `gorm:"column:indicator_flags;serializer:json" json:"flags"`
	SampleCount int                `json:"sample_count"`
	LatencyMs   int64              `json:"latency_ms"`
	DataQuality float64            `json:"data_quality"`
}

// Value returns the named numeric indicator.
func (f FeatureSet) Value(name string) (float64, bool) {
	v, ok := f.Values[name]
	return v, ok
}

// Get returns the named numeric indicator or zero.
func (f FeatureSet) Get(name string) float64 {
	return f.Values[name]
}

// Flag returns the named boolean indicator; missing flags are false.
func (f FeatureSet) Flag(name string) bool {
	return f.Flags[name]
}
