package trader

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trading-desk-go/internal/models"
)

// onFailure runs the error/recovery protocol after a fatal cycle failure.
func (o *Orchestrator) onFailure(ctx context.Context, seg *segmentState, cycle *models.Cycle, err error) {
	snap := o.health.recordFailure(o.cfg.HealthStep)
	l := o.logger.With(
		zap.String("segment", seg.cfg.Name),
		zap.Int("total_errors", snap.TotalErrors),
		zap.Int("consecutive_errors", snap.ConsecutiveErrors),
		zap.Float64("health", snap.Health),
	)
	l.Error("Fatal cycle failure", zap.String("phase", string(phaseOf(err))), zap.Error(err))
	o.publishHealth(seg.cfg.Name)

	switch {
	case snap.TotalErrors >= seg.cfg.MaxTotalErrors:
		o.shutdown(ctx, seg, fmt.Sprintf("total errors %d reached limit %d: %v", snap.TotalErrors, seg.cfg.MaxTotalErrors, err))
	case snap.ConsecutiveErrors >= seg.cfg.MaxConsecutiveErrors && !snap.Emergency:
		o.emergency(ctx, seg, cycle)
	}
}

// emergency degrades every segment, diagnoses the system, waits out the
// cool-down and probes with one minimal cycle.
func (o *Orchestrator) emergency(ctx context.Context, seg *segmentState, failed *models.Cycle) {
	if !o.health.enterEmergency() {
		return
	}
	l := o.logger.With(zap.String("segment", seg.cfg.Name))

	o.mu.Lock()
	for _, s := range o.segments {
		s.degrade(o.cfg.MinSafeInterval)
	}
	probe := plan{kind: models.CycleRecovery, symbols: canary(seg.cfg.Symbols)[:1]}
	o.mu.Unlock()
	l.Error("Entering emergency mode")

	diag := o.diagnose(ctx)
	o.health.setHealth(diag.Score())
	l.Warn("Diagnostics complete",
		zap.Int("healthy", diag.Healthy),
		zap.Int("total", diag.Total),
		zap.Any("checks", diag.Checks),
	)
	if failed != nil {
		o.mu.Lock()
		failed.Diagnostics = diag.asMap()
		o.mu.Unlock()
		if err := o.deps.Store.SaveCycle(ctx, failed); err != nil {
			l.Warn("Failed to attach diagnostics to cycle", zap.Error(err))
		}
	}
	o.publishHealth(seg.cfg.Name)

	sleepCtx, stopSleep := o.cooldownContext(ctx)
	err := o.sleep(sleepCtx, seg.cfg.EmergencyCooldown)
	stopSleep()
	if err != nil {
		l.Warn("Emergency cool-down interrupted, staying in emergency mode", zap.Error(err))
		return
	}

	l.Info("Attempting gradual recovery", zap.Strings("symbols", probe.symbols))
	if _, err := o.runPipeline(ctx, seg, probe); err != nil {
		o.shutdown(ctx, seg, fmt.Sprintf("recovery cycle failed: %v", err))
		return
	}

	o.health.clearEmergency()
	health := o.health.Snapshot().Health
	o.mu.Lock()
	for _, s := range o.segments {
		s.scale(health, o.cfg)
	}
	o.mu.Unlock()
	l.Info("Recovered from emergency mode", zap.Float64("health", health))
	o.publishHealth(seg.cfg.Name)
}

// shutdown persists a terminal record and stops scheduling until Reset.
func (o *Orchestrator) shutdown(ctx context.Context, seg *segmentState, reason string) {
	if !o.health.markShutdown() {
		return
	}
	snap := o.health.Snapshot()

	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.schedCtx = nil
	segments := make([]any, 0, len(o.order))
	for _, name := range o.order {
		s := o.segments[name]
		segments = append(segments, map[string]any{
			"name":            name,
			"interval":        s.interval.String(),
			"symbols":         s.symbols,
			"trading_enabled": s.tradingEnabled,
			"ai_enabled":      s.aiEnabled,
			"runs":            s.runs,
		})
	}
	lastCycle := ""
	if seg.lastCycle != nil {
		lastCycle = seg.lastCycle.ID
	}
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	now := o.now().UTC()
	record := &models.Cycle{
		ID:         uuid.NewString(),
		Segment:    seg.cfg.Name,
		Kind:       models.CycleShutdown,
		StartedAt:  now,
		FinishedAt: &now,
		Phase:      models.PhaseError,
		Status:     models.CycleFailed,
		Symbols:    []string{},
		Timings:    map[string]int64{},
		Results:    map[string]float64{},
		Errors:     []string{reason},
		Diagnostics: map[string]any{
			"total_errors":       snap.TotalErrors,
			"consecutive_errors": snap.ConsecutiveErrors,
			"health":             snap.Health,
			"last_cycle_id":      lastCycle,
			"segments":           segments,
		},
	}
	if err := o.deps.Store.SaveCycle(ctx, record); err != nil {
		o.logger.Error("Failed to persist shutdown record", zap.Error(err))
	}
	o.logger.Error("Emergency shutdown", zap.String("segment", seg.cfg.Name), zap.String("reason", reason))
	o.publishHealth(seg.cfg.Name)
}
