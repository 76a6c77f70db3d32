package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
)

// MockStrategy is a mock implementation of the Strategy interface.
type MockStrategy struct {
	mock.Mock
	name string
}

func (m *MockStrategy) Name() string {
	return m.name
}

func (m *MockStrategy) Evaluate(fs *models.FeatureSet) *models.Signal {
	args := m.Called(fs)
	sig, _ := args.Get(0).(*models.Signal)
	return sig
}

type panickingStrategy struct{}

func (panickingStrategy) Name() string { return "panicky" }

func (panickingStrategy) Evaluate(*models.FeatureSet) *models.Signal {
	panic("boom")
}

func sig(source string, dir models.Direction, strength, confidence, risk float64) *models.Signal {
	return &models.Signal{
		Symbol: "AAPL", Timestamp: time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC),
		Source: source, Direction: dir, Strength: strength, Confidence: confidence, RiskScore: risk,
		Reasoning: []string{source + " reason"},
	}
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()

	assert.InDelta(t, 0.85, w.Total(), 1e-12)
	assert.InDelta(t, 0.1275, w.Threshold(), 1e-12)
}

func TestReconcile(t *testing.T) {
	half := Weights{"a": 0.5, "b": 0.5}

	testCases := []struct {
		name    string
		signals []*models.Signal
		weights Weights
		wantDir models.Direction
		wantNil bool
	}{
		{
			name:    "no signals",
			weights: half,
			wantNil: true,
		},
		{
			name: "buy beats sell but not threshold",
			signals: []*models.Signal{
				sig("a", models.Buy, 0.4, 0.5, 0.2),  // 0.10
				sig("b", models.Sell, 0.2, 0.5, 0.2), // 0.05
			},
			weights: half,
			wantNil: true,
		},
		{
			name:    "score equal to threshold is rejected",
			signals: []*models.Signal{sig("a", models.Buy, 1, 0.15, 0.2)},
			weights: Weights{"a": 1.0},
			wantNil: true,
		},
		{
			name: "tie is rejected",
			signals: []*models.Signal{
				sig("a", models.Buy, 1, 1, 0.2),
				sig("b", models.Sell, 1, 1, 0.2),
			},
			weights: half,
			wantNil: true,
		},
		{
			name: "sell consensus",
			signals: []*models.Signal{
				sig("a", models.Sell, 0.8, 0.7, 0.2),
				sig("b", models.Sell, 0.6, 0.9, 0.2),
			},
			weights: half,
			wantDir: models.Sell,
		},
		{
			name:    "unweighted source cannot carry consensus",
			signals: []*models.Signal{sig("zzz", models.Buy, 1, 1, 0.2)},
			weights: half,
			wantNil: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := Reconcile(tc.signals, tc.weights)
			if tc.wantNil {
				assert.Nil(t, out)
				return
			}
			require.NotNil(t, out)
			assert.Equal(t, tc.wantDir, out.Direction)
			assert.Equal(t, models.SourceEnsemble, out.Source)
		})
	}
}

func TestReconcile_Aggregates(t *testing.T) {
	// Arrange
	a := sig("a", models.Buy, 0.8, 0.7, 0.3)
	a.TargetPrice, a.StopLoss, a.TakeProfit = 100, 95, 110
	b := sig("b", models.Buy, 0.6, 0.9, 0.6)
	b.TargetPrice, b.StopLoss, b.TakeProfit = 102, 97, 114
	c := sig("c", models.Sell, 0.5, 0.5, 0.9)
	weights := Weights{"a": 0.25, "b": 0.25, "c": 0.5}

	// Act
	out := Reconcile([]*models.Signal{a, b, c}, weights)

	// Assert
	require.NotNil(t, out)
	buy := 0.8*0.7*0.25 + 0.6*0.9*0.25
	assert.InDelta(t, buy/(1.0*0.5), out.Strength, 1e-12)
	assert.InDelta(t, 0.8, out.Confidence, 1e-12)
	assert.InDelta(t, 0.6, out.RiskScore, 1e-12, "max over contributors, loser excluded")
	assert.InDelta(t, 101.0, out.TargetPrice, 1e-12)
	assert.InDelta(t, 96.0, out.StopLoss, 1e-12)
	assert.InDelta(t, 112.0, out.TakeProfit, 1e-12)
	assert.Equal(t, []string{"a", "b"}, out.Contributors())
	require.Len(t, out.Reasoning, 3)
	assert.Contains(t, out.Reasoning[0], "2 of 3 strategies agree")
	assert.Equal(t, "a reason", out.Reasoning[1])
}

func TestReconcile_StrengthCapped(t *testing.T) {
	out := Reconcile([]*models.Signal{sig("a", models.Buy, 1, 1, 0.1)}, Weights{"a": 1, "b": 0.1})

	require.NotNil(t, out)
	assert.Equal(t, 1.0, out.Strength)
}

func TestEnsemble_SkipsThinHistory(t *testing.T) {
	// Arrange
	m := &MockStrategy{name: TrendFollowing}
	e := NewEnsemble([]Strategy{m}, nil, zap.NewNop())
	fs := &models.FeatureSet{Symbol: "AAPL", SampleCount: features.MinBars - 1}

	// Act
	res, err := e.Generate(fs)

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Nil(t, res.Ensemble)
	m.AssertNotCalled(t, "Evaluate", mock.Anything)
}

func TestEnsemble_Generate(t *testing.T) {
	// Arrange
	fs := &models.FeatureSet{
		Symbol: "AAPL", SampleCount: 30,
		Values: map[string]float64{features.RSI14: 64, features.DirectionProb: 0.7, features.Volatility: 0.1},
	}
	trend := &MockStrategy{name: TrendFollowing}
	trend.On("Evaluate", fs).Return(sig(TrendFollowing, models.Buy, 0.9, 0.75, 0.3)).Once()
	hold := &MockStrategy{name: MeanReversion}
	hold.On("Evaluate", fs).Return(nil).Once()
	e := NewEnsemble([]Strategy{trend, hold, panickingStrategy{}}, nil, zap.NewNop())

	// Act
	res, err := e.Generate(fs)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicky")
	require.Len(t, res.Signals, 1)
	require.NotNil(t, res.Ensemble)
	assert.Equal(t, models.Buy, res.Ensemble.Direction)
	assert.InDelta(t, 0.9*0.75*0.25/(0.85*0.5), res.Ensemble.Strength, 1e-12)
	assert.Equal(t, 64.0, res.Ensemble.Metadata["rsi"])
	assert.Equal(t, 0.7, res.Ensemble.Metadata["direction_prob"])
	trend.AssertExpectations(t)
	hold.AssertExpectations(t)
}

func TestEnsemble_DefaultsOnRisingSeries(t *testing.T) {
	// Arrange
	bars := make([]models.PriceBar, 30)
	t0 := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	prev := 100.0 / 1.01
	for i := range bars {
		c := 100.0
		for j := 0; j < i; j++ {
			c *= 1.01
		}
		vol := 1000.0
		if i == len(bars)-1 {
			vol = 2000
		}
		bars[i] = models.PriceBar{Symbol: "AAPL", Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open: prev, High: c * 1.002, Low: prev * 0.998, Close: c, Volume: vol}
		prev = c
	}
	fs, err := features.NewCalculator().Compute("AAPL", bars)
	require.NoError(t, err)

	// Act
	res, err := NewEnsemble(Defaults(), DefaultWeights(), zap.NewNop()).Generate(fs)

	// Assert
	require.NoError(t, err)
	sources := map[string]*models.Signal{}
	for _, s := range res.Signals {
		sources[s.Source] = s
	}
	require.Contains(t, sources, TrendFollowing)
	assert.Equal(t, models.Buy, sources[TrendFollowing].Direction)
	assert.Contains(t, sources[TrendFollowing].Reasoning[0], "Bullish moving average crossover")
	assert.NotContains(t, sources, MeanReversion)
	require.NotNil(t, res.Ensemble)
	assert.Equal(t, models.Buy, res.Ensemble.Direction)
	assert.Contains(t, res.Ensemble.Contributors(), TrendFollowing)
	assert.GreaterOrEqual(t, res.Ensemble.Confidence, 0.6)
	assert.LessOrEqual(t, res.Ensemble.RiskScore, 0.8)
}
