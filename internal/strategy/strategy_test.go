package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-desk-go/internal/features"
	"trading-desk-go/internal/models"
)

func featureSet(values map[string]float64, flags map[string]bool) *models.FeatureSet {
	return &models.FeatureSet{
		Symbol:      "AAPL",
		Timestamp:   time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC),
		Values:      values,
		Flags:       flags,
		SampleCount: 30,
		DataQuality: 1,
	}
}

func TestTrendFollowingStrategy(t *testing.T) {
	testCases := []struct {
		name       string
		values     map[string]float64
		wantDir    models.Direction
		wantNil    bool
		wantConf   float64
		wantReason string
	}{
		{
			name: "bullish crossover with volume and macd",
			values: map[string]float64{
				features.Close: 110, features.SMA10: 105, features.SMA20: 100,
				features.VolumeRatio: 2, features.MACDHistogram: 0.5, features.ATR14: 1.1,
			},
			wantDir: models.Buy, wantConf: 0.75, wantReason: "Bullish moving average crossover",
		},
		{
			name: "bearish crossover without confirmation",
			values: map[string]float64{
				features.Close: 90, features.SMA10: 95, features.SMA20: 100,
				features.VolumeRatio: 1, features.MACDHistogram: 0.5, features.ATR14: 0.9,
			},
			wantDir: models.Sell, wantConf: 0.5, wantReason: "Bearish moving average crossover",
		},
		{
			name:    "price not confirming",
			values:  map[string]float64{features.Close: 104, features.SMA10: 105, features.SMA20: 100},
			wantNil: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sig := TrendFollowingStrategy{}.Evaluate(featureSet(tc.values, nil))
			if tc.wantNil {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, tc.wantDir, sig.Direction)
			assert.Equal(t, TrendFollowing, sig.Source)
			assert.InDelta(t, tc.wantConf, sig.Confidence, 1e-12)
			assert.InDelta(t, 1.0, sig.Strength, 1e-12, "spread saturates strength")
			assert.Contains(t, sig.Reasoning[0], tc.wantReason)
			assert.InDelta(t, 0.3, sig.RiskScore, 1e-12)
		})
	}
}

func TestTrendFollowingStrategy_Bracket(t *testing.T) {
	sig := TrendFollowingStrategy{}.Evaluate(featureSet(map[string]float64{
		features.Close: 100, features.SMA10: 99, features.SMA20: 98, features.ATR14: 2,
	}, nil))

	require.NotNil(t, sig)
	assert.Equal(t, 100.0, sig.TargetPrice)
	assert.Equal(t, 96.0, sig.StopLoss)
	assert.Equal(t, 106.0, sig.TakeProfit)
}

func TestMeanReversionStrategy(t *testing.T) {
	testCases := []struct {
		name    string
		values  map[string]float64
		wantDir models.Direction
		wantNil bool
	}{
		{
			name:    "oversold at lower band",
			values:  map[string]float64{features.Close: 90, features.RSI14: 20, features.BBLower: 91, features.BBUpper: 110, features.BBMiddle: 100},
			wantDir: models.Buy,
		},
		{
			name:    "overbought at upper band",
			values:  map[string]float64{features.Close: 111, features.RSI14: 80, features.BBLower: 91, features.BBUpper: 110, features.BBMiddle: 100},
			wantDir: models.Sell,
		},
		{
			name:    "oversold inside bands",
			values:  map[string]float64{features.Close: 95, features.RSI14: 20, features.BBLower: 91, features.BBUpper: 110},
			wantNil: true,
		},
		{
			name:    "overbought inside bands",
			values:  map[string]float64{features.Close: 105, features.RSI14: 100, features.BBLower: 91, features.BBUpper: 110},
			wantNil: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sig := MeanReversionStrategy{}.Evaluate(featureSet(tc.values, nil))
			if tc.wantNil {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, tc.wantDir, sig.Direction)
			assert.Equal(t, 100.0, sig.TakeProfit)
			assert.GreaterOrEqual(t, sig.Strength, 0.3)
		})
	}
}

func TestBreakoutStrategy(t *testing.T) {
	up := BreakoutStrategy{}.Evaluate(featureSet(map[string]float64{
		features.Close: 105, features.High20: 100, features.Low20: 90,
		features.VolumeRatio: 2.5, features.MACDHistogram: 1, features.ATR14: 1,
	}, nil))
	require.NotNil(t, up)
	assert.Equal(t, models.Buy, up.Direction)
	assert.InDelta(t, 0.8, up.Confidence, 1e-12)
	assert.InDelta(t, 1.0, up.Strength, 1e-12)

	down := BreakoutStrategy{}.Evaluate(featureSet(map[string]float64{
		features.Close: 89, features.High20: 100, features.Low20: 90, features.VolumeRatio: 1.6,
	}, nil))
	require.NotNil(t, down)
	assert.Equal(t, models.Sell, down.Direction)
	assert.InDelta(t, 0.6, down.Confidence, 1e-12)

	quiet := BreakoutStrategy{}.Evaluate(featureSet(map[string]float64{
		features.Close: 105, features.High20: 100, features.VolumeRatio: 1.2,
	}, nil))
	assert.Nil(t, quiet)
}

func TestPatternStrategy(t *testing.T) {
	bull := PatternStrategy{}.Evaluate(featureSet(
		map[string]float64{features.Close: 100, features.ATR14: 1},
		map[string]bool{features.FlagThreeWhiteSoldiers: true, features.FlagHammer: true, features.FlagAboveSMA20: true},
	))
	require.NotNil(t, bull)
	assert.Equal(t, models.Buy, bull.Direction)
	assert.InDelta(t, 0.6, bull.Strength, 1e-12)
	assert.InDelta(t, 0.65, bull.Confidence, 1e-12)

	tie := PatternStrategy{}.Evaluate(featureSet(
		map[string]float64{features.Close: 100},
		map[string]bool{features.FlagHammer: true, features.FlagShootingStar: true},
	))
	assert.Nil(t, tie)

	none := PatternStrategy{}.Evaluate(featureSet(map[string]float64{features.Close: 100}, map[string]bool{features.FlagDoji: true}))
	assert.Nil(t, none)
}
