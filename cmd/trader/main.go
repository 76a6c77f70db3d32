package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trading-desk-go/internal/ai"
	"trading-desk-go/internal/config"
	"trading-desk-go/internal/database"
	"trading-desk-go/internal/events"
	"trading-desk-go/internal/features"
	"trading-desk-go/internal/logger"
	"trading-desk-go/internal/market"
	"trading-desk-go/internal/metrics"
	"trading-desk-go/internal/portfolio"
	"trading-desk-go/internal/restclient"
	"trading-desk-go/internal/risk"
	"trading-desk-go/internal/strategy"
	"trading-desk-go/internal/telemetry"
	"trading-desk-go/internal/trader"
)

const subscriberBuffer = 256

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.Int("segments", len(cfg.Segments)))

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	store := database.NewStore(db)
	if err := store.Ping(context.Background()); err != nil {
		log.Fatal("Datastore is unhealthy", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	calendar, err := market.NewCalendar(cfg.Segments)
	if err != nil {
		log.Fatal("Invalid session configuration", zap.Error(err))
	}
	provider, err := newMarketProvider(cfg, calendar, log)
	if err != nil {
		log.Fatal("Failed to initialize market data provider", zap.Error(err))
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(log)
	recorder := metrics.New()
	metricsEvents, unsubMetrics := bus.Subscribe(subscriberBuffer)
	defer unsubMetrics()
	go recorder.Run(ctx, metricsEvents)

	hub := telemetry.NewHub(log)
	hubEvents, unsubHub := bus.Subscribe(subscriberBuffer)
	defer unsubHub()
	go hub.Run(ctx, hubEvents)

	priors := risk.NewPriorTable(risk.SeedPriors(), cfg.Risk.PriorMinSamples)
	deps := trader.Deps{
		Store:     store,
		Market:    provider,
		Features:  features.NewCalculator(),
		Ensemble:  strategy.NewEnsemble(strategy.Defaults(), strategy.DefaultWeights(), log),
		Risk:      risk.NewEngine(cfg.Risk, cfg.Portfolio.CommissionRate, priors, nil, log),
		Portfolio: portfolio.NewManager(store, cfg.Portfolio.InitialCapital, log),
		Analyzer:  newAnalyzer(cfg, log),
		Bus:       bus,
	}
	orch, err := trader.NewOrchestrator(cfg, deps, log)
	if err != nil {
		log.Fatal("Failed to initialize orchestrator", zap.Error(err))
	}

	var api *trader.APIServer
	if cfg.Server.Enabled {
		api = trader.NewAPIServer(cfg.Server.Port, orch, store, recorder.Handler(), hub, log)
		api.Start(ctx)
	}

	if err := orch.Start(ctx); err != nil {
		log.Fatal("Failed to start orchestrator", zap.Error(err))
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	if err := orch.Stop(); err != nil {
		log.Warn("In-flight cycles did not finish", zap.Error(err))
	}
	if api != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := api.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server", zap.Error(err))
		}
		shutdownCancel()
	}
	cancel()
	bus.Close()

	log.Info("Trading desk has been shut down.")
}

func newMarketProvider(cfg *config.Config, calendar *market.Calendar, log *zap.Logger) (market.Provider, error) {
	m := cfg.Market
	if m.Provider == "rest" {
		client := restclient.New(m.BaseURL, m.RateLimit, m.RateLimitBurst, log)
		p := market.NewRestProvider(client, m.BarInterval, m.LookbackBars, calendar, log)
		if err := p.HealthCheck(context.Background()); err != nil {
			return nil, fmt.Errorf("could not reach market data API: %w", err)
		}
		log.Info("Successfully connected to market data API.", zap.String("base_url", m.BaseURL))
		return p, nil
	}
	return market.NewSyntheticProvider(m.Seed, m.BarInterval, m.LookbackBars, m.BasePrices, calendar, log), nil
}

func newAnalyzer(cfg *config.Config, log *zap.Logger) ai.Analyzer {
	if cfg.AI.Provider == "http" {
		client := restclient.New(cfg.AI.BaseURL, cfg.Market.RateLimit, cfg.Market.RateLimitBurst, log,
			restclient.WithTimeout(cfg.AI.Timeout))
		return ai.NewHTTPAnalyzer(client, log)
	}
	return ai.NewHeuristicAnalyzer()
}
