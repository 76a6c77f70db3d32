package trader

import (
	"fmt"
	"math"
	"time"

	"trading-desk-go/internal/config"
	"trading-desk-go/internal/models"
)

// canarySize bounds the symbol set while in emergency mode.
const canarySize = 2

// segmentState is the runtime view of one segment. The configured values stay
// in cfg; the effective values are degraded and restored by the recovery
// protocol. Guarded by Orchestrator.mu.
type segmentState struct {
	cfg      config.Segment
	location *time.Location

	interval       time.Duration
	symbols        []string
	tradingEnabled bool
	aiEnabled      bool
	degraded       bool

	running   bool
	runs      int
	runsToday int
	day       string
	lastCycle *models.Cycle
}

func newSegmentState(cfg config.Segment, fallback *time.Location) (*segmentState, error) {
	loc := fallback
	if cfg.Session.Timezone != "" {
		l, err := time.LoadLocation(cfg.Session.Timezone)
		if err != nil {
			return nil, fmt.Errorf("could not load timezone for segment %s: %w", cfg.Name, err)
		}
		loc = l
	}
	s := &segmentState{cfg: cfg, location: loc}
	s.restore()
	return s, nil
}

// restore resets the effective configuration to the configured one.
func (s *segmentState) restore() {
	s.interval = s.cfg.Interval
	s.symbols = append([]string(nil), s.cfg.Symbols...)
	s.tradingEnabled = s.cfg.TradingEnabled
	s.aiEnabled = s.cfg.AIEnabled
	s.degraded = false
}

// degrade switches to emergency settings: a shorter interval bounded by
// minSafe, the canary symbol set, and no AI or trading.
func (s *segmentState) degrade(minSafe time.Duration) {
	s.interval = max(s.interval/2, minSafe)
	s.symbols = canary(s.cfg.Symbols)
	s.tradingEnabled = false
	s.aiEnabled = false
	s.degraded = true
}

// scale restores the configuration in proportion to health. Full health
// restores everything.
func (s *segmentState) scale(health float64, o config.Orchestrator) {
	if health >= maxHealth {
		s.restore()
		return
	}
	n := int(math.Ceil(float64(len(s.cfg.Symbols)) * health))
	n = max(1, min(n, len(s.cfg.Symbols)))
	s.symbols = append([]string(nil), s.cfg.Symbols[:n]...)
	s.interval = time.Duration(float64(s.cfg.Interval) / health)
	s.tradingEnabled = s.cfg.TradingEnabled && health >= o.TradeMinHealth
	s.aiEnabled = s.cfg.AIEnabled && health >= o.AIMinHealth
	s.degraded = true
}

// rollDay resets the per-day counter when the local day changes.
func (s *segmentState) rollDay(now time.Time) {
	day := now.In(s.location).Format(time.DateOnly)
	if day != s.day {
		s.day = day
		s.runsToday = 0
	}
}

// dayStart is local midnight of now's day, in UTC.
func (s *segmentState) dayStart(now time.Time) time.Time {
	local := now.In(s.location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.location).UTC()
}

func canary(symbols []string) []string {
	n := min(len(symbols), canarySize)
	return append([]string(nil), symbols[:n]...)
}

// SegmentStatus is the reported state of a segment.
type SegmentStatus struct {
	Name           string        `json:"name"`
	Kind           string        `json:"kind"`
	Interval       time.Duration `json:"interval"`
	Symbols        []string      `json:"symbols"`
	TradingEnabled bool          `json:"trading_enabled"`
	AIEnabled      bool          `json:"ai_enabled"`
	Degraded       bool          `json:"degraded"`
	Running        bool          `json:"running"`
	Runs           int           `json:"runs"`
	RunsToday      int           `json:"runs_today"`
	LastCycle      *models.Cycle `json:"last_cycle,omitempty"`
}

// status returns a snapshot; LastCycle is a copy of the stored record.
func (s *segmentState) status() SegmentStatus {
	var last *models.Cycle
	if s.lastCycle != nil {
		c := *s.lastCycle
		last = &c
	}
	return SegmentStatus{
		Name:           s.cfg.Name,
		Kind:           s.cfg.Kind,
		Interval:       s.interval,
		Symbols:        append([]string(nil), s.symbols...),
		TradingEnabled: s.tradingEnabled,
		AIEnabled:      s.aiEnabled,
		Degraded:       s.degraded,
		Running:        s.running,
		Runs:           s.runs,
		RunsToday:      s.runsToday,
		LastCycle:      last,
	}
}
