package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-desk-go/internal/events"
)

// Recorder exposes desk activity as Prometheus metrics on its own registry.
type Recorder struct {
	registry       *prometheus.Registry
	cycles         *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	signals        *prometheus.CounterVec
	trades         *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	health         prometheus.Gauge
	emergency      prometheus.Gauge
	shutdown       prometheus.Gauge
	portfolioValue prometheus.Gauge
	cash           prometheus.Gauge
}

// New creates a recorder with process and Go collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desk_cycles_total",
				Help: "Completed cycles by segment, kind and status",
			},
			[]string{"segment", "kind", "status"},
		),
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "desk_phase_duration_seconds",
				Help:    "Duration of cycle phases in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"segment", "phase"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desk_signals_total",
				Help: "Signals generated by source and direction",
			},
			[]string{"source", "direction"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desk_trades_total",
				Help: "Executed trades by side",
			},
			[]string{"side"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "desk_rejections_total",
				Help: "Risk rejections by gate",
			},
			[]string{"gate"},
		),
		health: f.NewGauge(prometheus.GaugeOpts{
			Name: "desk_health_score",
			Help: "Current orchestrator health score",
		}),
		emergency: f.NewGauge(prometheus.GaugeOpts{
			Name: "desk_emergency_mode",
			Help: "1 while emergency mode is active",
		}),
		shutdown: f.NewGauge(prometheus.GaugeOpts{
			Name: "desk_shutdown",
			Help: "1 after an emergency shutdown until reset",
		}),
		portfolioValue: f.NewGauge(prometheus.GaugeOpts{
			Name: "desk_portfolio_value",
			Help: "Total portfolio value at the last update",
		}),
		cash: f.NewGauge(prometheus.GaugeOpts{
			Name: "desk_portfolio_cash",
			Help: "Cash at the last portfolio update",
		}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Observe updates metrics from a single event.
func (r *Recorder) Observe(e events.Event) {
	switch p := e.Payload.(type) {
	case events.CyclePayload:
		r.cycles.WithLabelValues(e.Segment, p.Kind, p.Status).Inc()
	case events.PhasePayload:
		r.phaseDuration.WithLabelValues(e.Segment, p.Phase).Observe(p.Duration.Seconds())
	case events.SignalPayload:
		r.signals.WithLabelValues(p.Source, p.Direction).Inc()
	case events.TradePayload:
		r.trades.WithLabelValues(p.Side).Inc()
	case events.RejectionPayload:
		r.rejections.WithLabelValues(p.Gate).Inc()
	case events.PortfolioPayload:
		r.portfolioValue.Set(p.TotalValue)
		r.cash.Set(p.Cash)
	case events.HealthPayload:
		r.health.Set(p.Health)
		r.emergency.Set(boolGauge(p.Emergency))
		r.shutdown.Set(boolGauge(p.Shutdown))
	}
}

// Run consumes events until the channel closes or ctx is done.
func (r *Recorder) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			r.Observe(e)
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
