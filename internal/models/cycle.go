package models

import "time"

// Phase identifies a step of a trading cycle.
type Phase string

const (
	PhaseStarting           Phase = "STARTING"
	PhaseDataIngestion      Phase = "DATA_INGESTION"
	PhaseFeatureComputation Phase = "FEATURE_COMPUTATION"
	PhaseSignalGeneration   Phase = "SIGNAL_GENERATION"
	PhaseAIAnalysis         Phase = "AI_ANALYSIS"
	PhaseTradeExecution     Phase = "TRADE_EXECUTION"
	PhasePortfolioUpdate    Phase = "PORTFOLIO_UPDATE"
	PhaseReflection         Phase = "REFLECTION"
	PhaseReporting          Phase = "REPORTING"
	PhaseCompleted          Phase = "COMPLETED"
	PhaseError              Phase = "ERROR"
)

// CycleStatus is the lifecycle status of a cycle record.
type CycleStatus string

const (
	CycleRunning CycleStatus = "RUNNING"
	CycleSuccess CycleStatus = "SUCCESS"
	CycleFailed  CycleStatus = "FAILED"
)

// CycleKind distinguishes scheduled cycles from recovery probes and terminal records.
type CycleKind string

const (
	CycleRegular  CycleKind = "regular"
	CycleRecovery CycleKind = "recovery"
	CycleShutdown CycleKind = "shutdown"
)

// Cycle is the persisted record of one pass through the pipeline.
type Cycle struct {
	ID          string             `gorm:"primaryKey" json:"id"`
	Segment     string             `gorm:"index" json:"segment"`
	Kind        CycleKind          `json:"kind"`
	StartedAt   time.Time          `gorm:"index" json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Phase       Phase              `json:"phase"`
	Status      CycleStatus        `json:"status"`
	Symbols     []string           `gorm:"serializer:json" json:"symbols"`
	SignalCount int                `json:"signal_count"`
	TradeCount  int                `json:"trade_count"`
	Timings     map[string]int64   `gorm:"serializer:json" json:"timings_ms"`
	Errors      []string           `gorm:"serializer:json" json:"errors"`
	Results     map[string]float64 `gorm:"serializer:json" json:"results"`
	Diagnostics map[string]any     `gorm:"serializer:json" json:"diagnostics,omitempty"`
}

// AddError appends a non-fatal error message.
func (c *Cycle) AddError(msg string) {
	c.Errors = append(c.Errors, msg)
}
