package trader

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trading-desk-go/internal/ai"
	"trading-desk-go/internal/config"
	"trading-desk-go/internal/database"
	"trading-desk-go/internal/events"
	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
	"trading-desk-go/internal/portfolio"
	"trading-desk-go/internal/risk"
	"trading-desk-go/internal/strategy"
)

// MockProvider is a mock implementation of market.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Fetch(ctx context.Context, symbols []string, segment string) ([]models.PriceBar, error) {
	args := m.Called(ctx, symbols, segment)
	bars, _ := args.Get(0).([]models.PriceBar)
	return bars, args.Error(1)
}

func (m *MockProvider) IsOpen(segment string, now time.Time) bool {
	args := m.Called(segment, now)
	return args.Bool(0)
}

func (m *MockProvider) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

// testClock is a settable wall clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testStart = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func testSegment(symbols ...string) config.Segment {
	return config.Segment{
		Name:                 "equities",
		Kind:                 "continuous",
		Symbols:              symbols,
		Interval:             time.Minute,
		TradingEnabled:       true,
		MaxConsecutiveErrors: 3,
		MaxTotalErrors:       5,
	}
}

// testConfig uses the registered defaults with the given segments.
func testConfig(t *testing.T, segments ...config.Segment) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	cfg.Orchestrator.EmergencyCooldown = 0
	cfg.Orchestrator.StopTimeout = 2 * time.Second
	cfg.Segments = segments
	return &cfg
}

type harness struct {
	orch     *Orchestrator
	store    *database.Store
	provider *MockProvider
	clock    *testClock
	bus      *events.Bus
}

func newHarness(t *testing.T, cfg *config.Config, analyzer ai.Analyzer, opts ...Option) *harness {
	t.Helper()
	db, err := database.NewDatabase(config.Database{DSN: "file::memory:"})
	require.NoError(t, err)
	store := database.NewStore(db)

	clock := &testClock{now: testStart}
	provider := new(MockProvider)
	bus := events.NewBus(zap.NewNop())
	priors := risk.NewPriorTable(nil, cfg.Risk.PriorMinSamples)

	deps := Deps{
		Store:     store,
		Market:    provider,
		Features:  features.NewCalculator(),
		Ensemble:  strategy.NewEnsemble(strategy.Defaults(), nil, zap.NewNop()),
		Risk:      risk.NewEngine(cfg.Risk, cfg.Portfolio.CommissionRate, priors, nil, zap.NewNop()),
		Portfolio: portfolio.NewManager(store, cfg.Portfolio.InitialCapital, zap.NewNop()),
		Analyzer:  analyzer,
		Bus:       bus,
	}
	opts = append([]Option{WithClock(clock.Now), WithLocation(time.UTC)}, opts...)
	orch, err := NewOrchestrator(cfg, deps, zap.NewNop(), opts...)
	require.NoError(t, err)

	return &harness{orch: orch, store: store, provider: provider, clock: clock, bus: bus}
}

// risingBars is a strictly rising series ending one minute before testStart
// whose last bar trades twice the usual volume.
func risingBars(symbol string, n int) []models.PriceBar {
	t0 := testStart.Add(-time.Duration(n) * time.Minute)
	bars := make([]models.PriceBar, n)
	prevClose := 100.0 / 1.01
	for i := 0; i < n; i++ {
		closePrice := 100 * math.Pow(1.01, float64(i))
		volume := 1000.0
		if i == n-1 {
			volume = 2000
		}
		bars[i] = models.PriceBar{
			Symbol: symbol, Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open: prevClose, High: closePrice * 1.002, Low: prevClose * 0.998, Close: closePrice,
			Volume: volume, Source: "test",
		}
		prevClose = closePrice
	}
	return bars
}

// failingAnalyzer always errors.
type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, string, *models.Signal) (*ai.Analysis, error) {
	return nil, errors.New("analysis service unavailable")
}
