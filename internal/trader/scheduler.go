package trader

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"trading-desk-go/internal/models"
)

// phaseWeights scale the retry delay by the phase that failed.
var phaseWeights = map[models.Phase]float64{
	models.PhaseDataIngestion:      1.0,
	models.PhaseFeatureComputation: 0.8,
	models.PhaseSignalGeneration:   0.8,
	models.PhaseAIAnalysis:         1.5,
	models.PhaseTradeExecution:     0.5,
	models.PhasePortfolioUpdate:    1.0,
}

// retryDelay is base × phase weight × min(consecutive, cap), clamped to the
// maximum delay.
func (o *Orchestrator) retryDelay(phase models.Phase, consecutive int) time.Duration {
	w, ok := phaseWeights[phase]
	if !ok {
		w = 1.0
	}
	n := min(max(consecutive, 1), o.cfg.BackoffCap)
	d := time.Duration(float64(o.cfg.BaseRetryDelay) * w * float64(n))
	return min(d, o.cfg.MaxRetryDelay)
}

func (o *Orchestrator) interval(name string) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.segments[name].interval
}

// schedule runs the segment's cycles until ctx is cancelled or the
// orchestrator shuts down. In-flight cycles are never cancelled.
func (o *Orchestrator) schedule(ctx context.Context, name string) {
	defer o.wg.Done()
	l := o.logger.With(zap.String("segment", name))
	l.Info("Starting segment loop", zap.Duration("interval", o.interval(name)))

	var delay time.Duration
	for {
		if err := sleepContext(ctx, delay); err != nil {
			l.Info("Stopping segment loop")
			return
		}

		_, err := o.RunOnce(context.WithoutCancel(ctx), name)
		switch {
		case err == nil:
			delay = o.interval(name)
		case errors.Is(err, ErrCycleInProgress):
			l.Info("Cycle still running, skipping trigger")
			delay = o.interval(name)
		case errors.Is(err, ErrDailyQuotaExceeded):
			l.Debug("Daily run quota reached, waiting")
			delay = o.interval(name)
		case errors.Is(err, ErrShutdown):
			l.Error("Orchestrator shut down, stopping segment loop")
			return
		default:
			snap := o.health.Snapshot()
			if snap.Shutdown {
				l.Error("Orchestrator shut down, stopping segment loop")
				return
			}
			delay = o.retryDelay(phaseOf(err), snap.ConsecutiveErrors)
			l.Warn("Cycle failed, retrying", zap.Duration("delay", delay), zap.Error(err))
		}
	}
}
