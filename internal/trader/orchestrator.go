package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trading-desk-go/internal/ai"
	"trading-desk-go/internal/config"
	"trading-desk-go/internal/database"
	"trading-desk-go/internal/events"
	"trading-desk-go/internal/features"
	"trading-desk-go/internal/market"
	"trading-desk-go/internal/models"
	"trading-desk-go/internal/portfolio"
	"trading-desk-go/internal/risk"
	"trading-desk-go/internal/strategy"
)

// Deps are the collaborators driven by the orchestrator.
type Deps struct {
	Store     *database.Store
	Market    market.Provider
	Features  features.Provider
	Ensemble  *strategy.Ensemble
	Risk      *risk.Engine
	Portfolio *portfolio.Manager
	Analyzer  ai.Analyzer
	Bus       *events.Bus
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleeper overrides how the orchestrator waits out cool-downs.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithLocation sets the timezone used for daily counters of continuous segments.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) { o.location = loc }
}

// Orchestrator runs trading cycles per segment and owns the recovery protocol.
type Orchestrator struct {
	cfg          config.Orchestrator
	lookbackBars int
	deps         Deps
	health       *HealthState
	logger       *zap.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	location *time.Location

	mu        sync.Mutex
	segments  map[string]*segmentState
	order     []string
	startedAt time.Time
	schedCtx  context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewOrchestrator builds an orchestrator for every configured segment.
func NewOrchestrator(cfg *config.Config, deps Deps, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:          cfg.Orchestrator,
		lookbackBars: cfg.Market.LookbackBars,
		deps:         deps,
		health:       NewHealthState(),
		logger:       logger.Named("orchestrator"),
		now:          time.Now,
		sleep:        sleepContext,
		location:     time.Local,
		segments:     make(map[string]*segmentState, len(cfg.Segments)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Bus == nil {
		o.deps.Bus = events.NewBus(logger)
	}
	for _, seg := range cfg.Segments {
		state, err := newSegmentState(seg, o.location)
		if err != nil {
			return nil, err
		}
		o.segments[seg.Name] = state
		o.order = append(o.order, seg.Name)
	}
	return o, nil
}

// cooldownContext derives a context from ctx that is also cancelled when the
// scheduler stops.
func (o *Orchestrator) cooldownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	o.mu.Lock()
	sched := o.schedCtx
	o.mu.Unlock()

	cctx, cancel := context.WithCancel(ctx)
	if sched == nil {
		return cctx, cancel
	}
	stop := context.AfterFunc(sched, cancel)
	return cctx, func() {
		stop()
		cancel()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Health returns a snapshot of the health state.
func (o *Orchestrator) Health() HealthSnapshot {
	return o.health.Snapshot()
}

// Bus returns the outbound event bus.
func (o *Orchestrator) Bus() *events.Bus {
	return o.deps.Bus
}

// Start schedules the named segments, or all of them when none are given.
func (o *Orchestrator) Start(ctx context.Context, names ...string) error {
	if o.health.Snapshot().Shutdown {
		return ErrShutdown
	}
	if len(names) == 0 {
		names = o.order
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return ErrAlreadyRunning
	}
	for _, name := range names {
		if _, ok := o.segments[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSegment, name)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.schedCtx = runCtx
	o.cancel = cancel
	o.startedAt = o.now()
	for _, name := range names {
		o.wg.Add(1)
		go o.schedule(runCtx, name)
	}
	o.logger.Info("Scheduler started", zap.Strings("segments", names))
	return nil
}

// Stop stops scheduling and waits up to the stop timeout for in-flight cycles.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.schedCtx = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.logger.Info("Stopping scheduler...")
	deadline := time.Now().Add(o.cfg.StopTimeout)
	for {
		if !o.anyRunning() {
			o.wg.Wait()
			o.logger.Info("Scheduler stopped")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for in-flight cycles", o.cfg.StopTimeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (o *Orchestrator) anyRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.segments {
		if s.running {
			return true
		}
	}
	return false
}

// Reset clears a shutdown and restores every segment's configuration.
func (o *Orchestrator) Reset() {
	o.health.reset()
	o.mu.Lock()
	for _, s := range o.segments {
		s.restore()
	}
	o.mu.Unlock()
	o.publishHealth("")
	o.logger.Info("Orchestrator reset")
}

// Status is the reported state of the orchestrator.
type Status struct {
	Scheduling bool                  `json:"scheduling"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	Health     HealthSnapshot        `json:"health"`
	Segments   []SegmentStatus       `json:"segments"`
	Priors     map[string]risk.Prior `json:"priors,omitempty"`
}

// Status always reports health and emergency mode.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{Scheduling: o.cancel != nil}
	if st.Scheduling {
		started := o.startedAt
		st.StartedAt = &started
	}
	for _, name := range o.order {
		st.Segments = append(st.Segments, o.segments[name].status())
	}
	o.mu.Unlock()

	st.Health = o.health.Snapshot()
	if o.deps.Risk != nil {
		st.Priors = o.deps.Risk.Priors().Snapshot()
	}
	return st
}

// RunOnce runs a single cycle of segment and returns its record.
func (o *Orchestrator) RunOnce(ctx context.Context, segment string) (*models.Cycle, error) {
	if o.health.Snapshot().Shutdown {
		return nil, ErrShutdown
	}

	o.mu.Lock()
	seg, ok := o.segments[segment]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSegment, segment)
	}
	if seg.running {
		o.mu.Unlock()
		return nil, ErrCycleInProgress
	}
	now := o.now()
	seg.rollDay(now)
	if seg.cfg.DailyRunQuota > 0 && seg.runsToday >= seg.cfg.DailyRunQuota {
		o.mu.Unlock()
		return nil, ErrDailyQuotaExceeded
	}
	seg.running = true
	p := o.regularPlan(seg)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		seg.running = false
		o.mu.Unlock()
	}()

	cycle, err := o.runPipeline(ctx, seg, p)

	o.mu.Lock()
	seg.lastCycle = cycle
	if err == nil {
		seg.runs++
		seg.runsToday++
	}
	o.mu.Unlock()

	if err == nil {
		o.onSuccess(seg)
		return cycle, nil
	}
	o.onFailure(ctx, seg, cycle, err)
	return cycle, err
}

// regularPlan derives the phases of the next scheduled cycle. Optional phases
// also need the current health score. Called with mu held.
func (o *Orchestrator) regularPlan(seg *segmentState) plan {
	ordinal := seg.runs + 1
	health := o.health.Snapshot().Health
	return plan{
		kind:    models.CycleRegular,
		symbols: append([]string(nil), seg.symbols...),
		ai:      seg.aiEnabled && o.deps.Analyzer != nil && health >= o.cfg.AIMinHealth,
		trading: seg.tradingEnabled && health >= o.cfg.TradeMinHealth,
		reflect: seg.cfg.ReflectionEvery > 0 && ordinal%seg.cfg.ReflectionEvery == 0,
		report:  seg.cfg.ReportEvery > 0 && ordinal%seg.cfg.ReportEvery == 0,
	}
}

func (o *Orchestrator) onSuccess(seg *segmentState) {
	snap := o.health.recordSuccess(o.cfg.RecoveryStep)
	o.mu.Lock()
	if seg.degraded && !snap.Emergency {
		seg.scale(snap.Health, o.cfg)
	}
	o.mu.Unlock()
	o.publishHealth(seg.cfg.Name)
}

func (o *Orchestrator) publishHealth(segment string) {
	snap := o.health.Snapshot()
	o.deps.Bus.Publish(events.Event{
		Kind:    events.HealthChanged,
		Segment: segment,
		Time:    o.now().UTC(),
		Payload: events.HealthPayload{
			Health:            snap.Health,
			Emergency:         snap.Emergency,
			Shutdown:          snap.Shutdown,
			ConsecutiveErrors: snap.ConsecutiveErrors,
			TotalErrors:       snap.TotalErrors,
		},
	})
}
