package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trading-desk-go/internal/events"
	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
	"trading-desk-go/internal/portfolio"
	"trading-desk-go/internal/risk"
)

// featureWorkers bounds concurrent feature computation.
const featureWorkers = 4

// plan selects the symbols and optional phases of one cycle.
type plan struct {
	kind    models.CycleKind
	symbols []string
	ai      bool
	trading bool
	reflect bool
	report  bool
}

// Report is published after the REPORTING phase.
type Report struct {
	Segment    string               `json:"segment"`
	Statistics portfolio.Statistics `json:"statistics"`
}

// cycleRun carries the intermediate products of one cycle between phases.
type cycleRun struct {
	o        *Orchestrator
	seg      *segmentState
	plan     plan
	cycle    *models.Cycle
	now      time.Time
	dayStart time.Time
	logger   *zap.Logger

	featureSets map[string]*models.FeatureSet
	ensembles   []*models.Signal
}

func (o *Orchestrator) runPipeline(ctx context.Context, seg *segmentState, p plan) (*models.Cycle, error) {
	now := o.now()
	cycle := &models.Cycle{
		ID:        uuid.NewString(),
		Segment:   seg.cfg.Name,
		Kind:      p.kind,
		StartedAt: now.UTC(),
		Phase:     models.PhaseStarting,
		Status:    models.CycleRunning,
		Symbols:   p.symbols,
		Timings:   make(map[string]int64),
		Results:   make(map[string]float64),
	}
	r := &cycleRun{
		o:           o,
		seg:         seg,
		plan:        p,
		cycle:       cycle,
		now:         now,
		dayStart:    seg.dayStart(now),
		featureSets: make(map[string]*models.FeatureSet),
		logger: o.logger.With(
			zap.String("segment", seg.cfg.Name),
			zap.String("cycle_id", cycle.ID),
			zap.String("kind", string(p.kind)),
		),
	}

	r.logger.Info("Starting cycle", zap.Strings("symbols", p.symbols))
	o.publish(cycle, events.CycleStarted, nil)

	err := r.run(ctx, models.PhaseStarting, true, func(ctx context.Context) error {
		return o.deps.Store.SaveCycle(ctx, cycle)
	})
	if err == nil {
		err = r.pipeline(ctx)
	}
	if err != nil {
		return cycle, r.fail(ctx, err)
	}
	r.complete(ctx)
	return cycle, nil
}

func (r *cycleRun) pipeline(ctx context.Context) error {
	steps := []struct {
		phase   models.Phase
		enabled bool
		fatal   bool
		fn      func(context.Context) error
	}{
		{models.PhaseDataIngestion, true, true, r.ingest},
		{models.PhaseFeatureComputation, true, true, r.computeFeatures},
		{models.PhaseSignalGeneration, true, true, r.generateSignals},
		{models.PhaseAIAnalysis, r.plan.ai, false, r.analyze},
		{models.PhaseTradeExecution, r.plan.trading, false, r.execute},
		{models.PhasePortfolioUpdate, true, true, r.updatePortfolio},
		{models.PhaseReflection, r.plan.reflect, false, r.reflect},
		{models.PhaseReporting, r.plan.report, false, r.reportStats},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := r.run(ctx, step.phase, step.fatal, step.fn); err != nil {
			return err
		}
	}
	return nil
}

// run executes one phase, records its duration and classifies its error.
// Non-fatal errors are appended to the cycle and swallowed.
func (r *cycleRun) run(ctx context.Context, phase models.Phase, fatal bool, fn func(context.Context) error) error {
	r.cycle.Phase = phase
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	r.cycle.Timings[string(phase)] = elapsed.Milliseconds()

	payload := events.PhasePayload{Phase: string(phase), Duration: elapsed}
	if err != nil {
		payload.Error = err.Error()
	}
	r.o.publish(r.cycle, events.PhaseFinished, payload)

	if err == nil {
		r.logger.Debug("Phase completed", zap.String("phase", string(phase)), zap.Duration("duration", elapsed))
		return nil
	}
	if !fatal {
		r.cycle.AddError(fmt.Sprintf("%s: %v", phase, err))
		r.logger.Warn("Phase failed, continuing", zap.String("phase", string(phase)), zap.Error(err))
		return nil
	}
	return &PhaseError{Phase: phase, Err: err, Fatal: true}
}

func (r *cycleRun) fail(ctx context.Context, err error) error {
	r.cycle.AddError(err.Error())
	r.cycle.Phase = models.PhaseError
	r.cycle.Status = models.CycleFailed
	finished := r.o.now().UTC()
	r.cycle.FinishedAt = &finished
	if saveErr := r.o.deps.Store.SaveCycle(ctx, r.cycle); saveErr != nil {
		r.logger.Error("Failed to save failed cycle", zap.Error(saveErr))
	}
	r.logger.Error("Cycle failed", zap.String("phase", string(phaseOf(err))), zap.Error(err))
	r.o.publish(r.cycle, events.CycleFinished, r.cyclePayload())
	return err
}

func (r *cycleRun) complete(ctx context.Context) {
	r.cycle.Phase = models.PhaseCompleted
	r.cycle.Status = models.CycleSuccess
	finished := r.o.now().UTC()
	r.cycle.FinishedAt = &finished
	if err := r.o.deps.Store.SaveCycle(ctx, r.cycle); err != nil {
		r.logger.Error("Failed to save completed cycle", zap.Error(err))
	}
	r.logger.Info("Cycle completed",
		zap.Int("signals", r.cycle.SignalCount),
		zap.Int("trades", r.cycle.TradeCount),
		zap.Int("errors", len(r.cycle.Errors)),
	)
	r.o.publish(r.cycle, events.CycleFinished, r.cyclePayload())
}

func (r *cycleRun) cyclePayload() events.CyclePayload {
	return events.CyclePayload{
		Kind:        string(r.cycle.Kind),
		Status:      string(r.cycle.Status),
		SignalCount: r.cycle.SignalCount,
		TradeCount:  r.cycle.TradeCount,
		Errors:      r.cycle.Errors,
	}
}

func (r *cycleRun) ingest(ctx context.Context) error {
	bars, err := r.o.deps.Market.Fetch(ctx, r.plan.symbols, r.seg.cfg.Name)
	if err != nil {
		return fmt.Errorf("could not fetch bars: %w", err)
	}
	saved, err := r.o.deps.Store.SaveBars(ctx, bars)
	if err != nil {
		return err
	}
	r.cycle.Results["bars_fetched"] = float64(len(bars))
	r.cycle.Results["bars_stored"] = float64(saved)
	return nil
}

func (r *cycleRun) computeFeatures(ctx context.Context) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(featureWorkers)
	for _, symbol := range r.plan.symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := r.o.deps.Store.RecentBars(gctx, symbol, r.o.lookbackBars)
			if err != nil {
				return err
			}
			fs, err := r.o.deps.Features.Compute(symbol, bars)
			if errors.Is(err, features.ErrInsufficientHistory) {
				r.logger.Debug("Skipping symbol", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			if err != nil {
				return fmt.Errorf("could not compute features for %s: %w", symbol, err)
			}
			if err := r.o.deps.Store.SaveFeatureSet(gctx, fs); err != nil {
				return err
			}
			mu.Lock()
			r.featureSets[symbol] = fs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.cycle.Results["feature_sets"] = float64(len(r.featureSets))
	return nil
}

func (r *cycleRun) generateSignals(ctx context.Context) error {
	var all []*models.Signal
	var errs []error
	for _, symbol := range r.plan.symbols {
		fs, ok := r.featureSets[symbol]
		if !ok {
			continue
		}
		res, err := r.o.deps.Ensemble.Generate(fs)
		if err != nil {
			errs = append(errs, err)
		}
		all = append(all, res.Signals...)
		if res.Ensemble != nil {
			all = append(all, res.Ensemble)
			r.ensembles = append(r.ensembles, res.Ensemble)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	for _, sig := range all {
		sig.CycleID = r.cycle.ID
	}
	if err := r.o.deps.Store.SaveSignals(ctx, all); err != nil {
		return err
	}
	for _, sig := range all {
		r.o.publish(r.cycle, events.SignalGenerated, events.SignalPayload{
			SignalID:   sig.ID,
			Symbol:     sig.Symbol,
			Direction:  string(sig.Direction),
			Source:     sig.Source,
			Strength:   sig.Strength,
			Confidence: sig.Confidence,
		})
	}
	r.cycle.SignalCount = len(all)
	r.cycle.Results["ensemble_signals"] = float64(len(r.ensembles))
	return nil
}

func (r *cycleRun) analyze(ctx context.Context) error {
	var errs []error
	var analyzed []*models.Signal
	for _, sig := range r.ensembles {
		a, err := r.o.deps.Analyzer.Analyze(ctx, sig.Symbol, sig)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sig.Metadata["ai_recommendation"] = a.Recommendation
		sig.Metadata["ai_confidence"] = a.Confidence
		sig.Metadata["ai_reasoning"] = a.Reasoning
		analyzed = append(analyzed, sig)
		r.o.publish(r.cycle, events.AnalysisReceived, events.AnalysisPayload{
			Symbol:         sig.Symbol,
			Recommendation: a.Recommendation,
			Confidence:     a.Confidence,
			Agrees:         a.Agrees(sig),
		})
	}
	if err := r.o.deps.Store.SaveSignals(ctx, analyzed); err != nil {
		errs = append(errs, err)
	}
	r.cycle.Results["analyses"] = float64(len(analyzed))
	return errors.Join(errs...)
}

// execute sizes every ensemble signal against one book. Sells go first so
// their proceeds count toward later buys.
func (r *cycleRun) execute(ctx context.Context) error {
	if len(r.ensembles) == 0 {
		return nil
	}
	if !r.o.deps.Market.IsOpen(r.seg.cfg.Name, r.now) {
		r.logger.Info("Session closed, skipping trade execution")
		r.cycle.Results["session_closed"] = 1
		return nil
	}

	ordered := append([]*models.Signal(nil), r.ensembles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Direction != ordered[j].Direction {
			return ordered[i].Direction == models.Sell
		}
		return ordered[i].Strength > ordered[j].Strength
	})

	var errs []error
	rejected := 0
	err := r.o.deps.Portfolio.WithBook(ctx, r.dayStart, func(book *risk.Book) error {
		for _, sig := range ordered {
			fs := r.featureSets[sig.Symbol]
			d := r.o.deps.Risk.Evaluate(sig, fs.Get(features.Volatility), fs.Get(features.Close), book)
			if !d.Approved {
				rejected++
				r.logger.Info("Signal not traded",
					zap.String("symbol", sig.Symbol),
					zap.String("side", string(sig.Direction)),
					zap.String("gate", d.Gate),
					zap.String("reason", d.Reason),
				)
				r.o.publish(r.cycle, events.TradeRejected, events.RejectionPayload{
					Symbol: sig.Symbol,
					Side:   string(sig.Direction),
					Gate:   d.Gate,
					Reason: d.Reason,
				})
				continue
			}

			trade, err := r.o.deps.Portfolio.Execute(ctx, d, sig, r.cycle.ID, r.seg.cfg.Name, r.o.now())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			r.cycle.TradeCount++
			r.o.publish(r.cycle, events.TradeExecuted, events.TradePayload{
				TradeID:    trade.ID,
				Symbol:     trade.Symbol,
				Side:       string(trade.Side),
				Quantity:   trade.Quantity,
				Price:      trade.Price,
				Commission: trade.Commission,
				Slippage:   trade.Slippage,
			})
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	r.cycle.Results["rejections"] = float64(rejected)
	return errors.Join(errs...)
}

func (r *cycleRun) updatePortfolio(ctx context.Context) error {
	prices := make(map[string]float64, len(r.featureSets))
	for symbol, fs := range r.featureSets {
		prices[symbol] = fs.Get(features.Close)
	}
	positions, err := r.o.deps.Store.Positions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if _, ok := prices[p.Symbol]; ok {
			continue
		}
		price, err := r.o.deps.Market.LatestPrice(ctx, p.Symbol)
		if err != nil {
			r.logger.Debug("No fresh price for position", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		prices[p.Symbol] = price
	}

	snap, err := r.o.deps.Portfolio.Update(ctx, r.cycle.ID, prices, r.o.now(), r.dayStart)
	if err != nil {
		return fmt.Errorf("could not update portfolio: %w", err)
	}
	r.cycle.Results["total_value"] = snap.TotalValue
	r.cycle.Results["cash"] = snap.Cash
	r.cycle.Results["daily_pnl"] = snap.DailyPnL
	r.o.publish(r.cycle, events.PortfolioUpdated, events.PortfolioPayload{
		TotalValue:     snap.TotalValue,
		Cash:           snap.Cash,
		PositionsValue: snap.PositionsValue,
		DailyPnL:       snap.DailyPnL,
		TotalPnL:       snap.TotalPnL,
	})
	return nil
}

func (r *cycleRun) reflect(ctx context.Context) error {
	trades, err := r.o.deps.Store.Trades(ctx)
	if err != nil {
		return err
	}
	signals, err := r.o.deps.Store.SignalsByID(ctx, portfolio.SignalIDs(trades))
	if err != nil {
		return err
	}
	stats := portfolio.Attribute(trades, signals)
	replaced := r.o.deps.Risk.Priors().Update(stats)
	sort.Strings(replaced)
	r.logger.Info("Reflection complete", zap.Int("sources", len(stats)), zap.Strings("live_priors", replaced))
	r.cycle.Results["priors_updated"] = float64(len(replaced))
	return nil
}

func (r *cycleRun) reportStats(ctx context.Context) error {
	trades, err := r.o.deps.Store.Trades(ctx)
	if err != nil {
		return err
	}
	stats := portfolio.ComputeStatistics(trades, r.o.now())
	if stats.Latest, err = r.o.deps.Store.LatestSnapshot(ctx); err != nil {
		return err
	}
	r.logger.Info("Performance report",
		zap.Int64("trades_24h", stats.Since24h.TotalTrades),
		zap.Float64("win_rate_24h", stats.Since24h.WinRate),
		zap.Float64("profit_24h", stats.Since24h.TotalProfit),
		zap.Int64("trades_all_time", stats.AllTime.TotalTrades),
		zap.Float64("profit_all_time", stats.AllTime.TotalProfit),
	)
	r.o.publish(r.cycle, events.ReportPublished, Report{Segment: r.seg.cfg.Name, Statistics: stats})
	return nil
}

func (o *Orchestrator) publish(cycle *models.Cycle, kind events.Kind, payload any) {
	o.deps.Bus.Publish(events.Event{
		Kind:    kind,
		Segment: cycle.Segment,
		CycleID: cycle.ID,
		Time:    o.now().UTC(),
		Payload: payload,
	})
}
