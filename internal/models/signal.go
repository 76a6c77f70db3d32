package models

import "time"

// Direction is the side of a signal or trade. HOLD is never materialized.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// SourceEnsemble is the source name of reconciled signals.
const SourceEnsemble = "ensemble"

// Signal is a directional opinion produced by a strategy or by the ensemble.
type Signal struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CycleID     string         `gorm:"index" json:"cycle_id"`
	Symbol      string         `gorm:"uniqueIndex:idx_signal_natural;not null" json:"symbol"`
	Timestamp   time.Time      `gorm:"uniqueIndex:idx_signal_natural;not null" json:"timestamp"`
	Source      string         `gorm:"uniqueIndex:idx_signal_natural;not null" json:"source"`
	Direction   Direction      `json:"direction"`
	Strength    float64        `json:"strength"`
	Confidence  float64        `json:"confidence"`
	Reasoning   []string       `gorm:"serializer:json" json:"reasoning"`
	TargetPrice float64        `json:"target_price"`
	StopLoss    float64        `json:"stop_loss"`
	TakeProfit  float64        `json:"take_profit"`
	RiskScore   float64        `json:"risk_score"`
	Metadata    map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
}

// IsEnsemble reports whether the signal is a reconciled view.
func (s Signal) IsEnsemble() bool {
	return s.Source == SourceEnsemble
}

// Contributors lists the strategies that made up an ensemble signal.
func (s Signal) Contributors() []string {
	raw, ok := s.Metadata["contributors"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if name, ok := item.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}
