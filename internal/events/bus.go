package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Kind identifies an outbound notification.
type Kind string

const (
	CycleStarted     Kind = "cycle_started"
	CycleFinished    Kind = "cycle_finished"
	PhaseFinished    Kind = "phase_finished"
	SignalGenerated  Kind = "signal_generated"
	AnalysisReceived Kind = "analysis_received"
	TradeExecuted    Kind = "trade_executed"
	TradeRejected    Kind = "trade_rejected"
	PortfolioUpdated Kind = "portfolio_updated"
	HealthChanged    Kind = "health_changed"
	ReportPublished  Kind = "report_published"
)

// Event is a single notification. Payload holds one of the *Payload types
// below, or a report value for ReportPublished.
type Event struct {
	Kind    Kind      `json:"kind"`
	Segment string    `json:"segment,omitempty"`
	CycleID string    `json:"cycle_id,omitempty"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

type CyclePayload struct {
	Kind        string   `json:"kind"`
	Status      string   `json:"status"`
	SignalCount int      `json:"signal_count"`
	TradeCount  int      `json:"trade_count"`
	Errors      []string `json:"errors,omitempty"`
}

type PhasePayload struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type SignalPayload struct {
	SignalID   uint    `json:"signal_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Source     string  `json:"source"`
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
}

type AnalysisPayload struct {
	Symbol         string  `json:"symbol"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Agrees         bool    `json:"agrees"`
}

type TradePayload struct {
	TradeID    string  `json:"trade_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
	Slippage   float64 `json:"slippage"`
}

type RejectionPayload struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Gate   string `json:"gate"`
	Reason string `json:"reason"`
}

type PortfolioPayload struct {
	TotalValue     float64 `json:"total_value"`
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positions_value"`
	DailyPnL       float64 `json:"daily_pnl"`
	TotalPnL       float64 `json:"total_pnl"`
}

type HealthPayload struct {
	Health            float64 `json:"health"`
	Emergency         bool    `json:"emergency"`
	Shutdown          bool    `json:"shutdown"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
	TotalErrors       int     `json:"total_errors"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	closed  bool
	dropped atomic.Int64
	logger  *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger.Named("events"),
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber that has room.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug("Subscriber buffer full, dropping event", zap.Int("subscriber", id), zap.String("kind", string(e.Kind)))
		}
	}
}

// Dropped returns the number of events lost to full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
