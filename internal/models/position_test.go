package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_Apply(t *testing.T) {
	testCases := []struct {
		name         string
		trades       []Trade
		wantQty      float64
		wantAvg      float64
		wantRealized float64
		wantErr      bool
	}{
		{
			name:    "buys blend average price",
			trades:  []Trade{{Symbol: "A", Side: Buy, Quantity: 10, Price: 100}, {Symbol: "A", Side: Buy, Quantity: 10, Price: 110}},
			wantQty: 20, wantAvg: 105,
		},
		{
			name:         "partial sell keeps average",
			trades:       []Trade{{Symbol: "A", Side: Buy, Quantity: 10, Price: 100}, {Symbol: "A", Side: Sell, Quantity: 4, Price: 90}},
			wantQty:      6,
			wantAvg:      100,
			wantRealized: -40,
		},
		{
			name:         "full sell zeroes the position",
			trades:       []Trade{{Symbol: "A", Side: Buy, Quantity: 2, Price: 50}, {Symbol: "A", Side: Sell, Quantity: 2, Price: 60}},
			wantQty:      0,
			wantAvg:      0,
			wantRealized: 20,
		},
		{
			name:    "short sale rejected",
			trades:  []Trade{{Symbol: "A", Side: Sell, Quantity: 1, Price: 60}},
			wantErr: true,
		},
		{
			name:    "symbol mismatch rejected",
			trades:  []Trade{{Symbol: "B", Side: Buy, Quantity: 1, Price: 60}},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pos := Position{Symbol: "A"}
			var realized float64
			var err error
			for _, tr := range tc.trades {
				realized, err = pos.Apply(tr)
				if err != nil {
					break
				}
			}
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.wantQty, pos.Quantity, 1e-12)
			assert.InDelta(t, tc.wantAvg, pos.AvgPrice, 1e-12)
			assert.InDelta(t, tc.wantRealized, realized, 1e-12)
		})
	}
}

func TestReplayPositions(t *testing.T) {
	ledger := []Trade{
		{ID: "1", Symbol: "A", Side: Buy, Quantity: 3, Price: 10},
		{ID: "2", Symbol: "B", Side: Buy, Quantity: 1, Price: 5},
		{ID: "3", Symbol: "A", Side: Buy, Quantity: 1, Price: 14},
		{ID: "4", Symbol: "B", Side: Sell, Quantity: 1, Price: 6},
	}

	positions, err := ReplayPositions(ledger)

	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 4.0, positions["A"].Quantity, 1e-12)
	assert.InDelta(t, 11.0, positions["A"].AvgPrice, 1e-12)
}

func TestTrade_CashFlow(t *testing.T) {
	buy := Trade{Side: Buy, Quantity: 10, Price: 100, Commission: 1}
	sell := Trade{Side: Sell, Quantity: 10, Price: 100, Commission: 1}

	assert.Equal(t, -1001.0, buy.CashFlow())
	assert.Equal(t, 999.0, sell.CashFlow())
}

func TestPriceBar_Valid(t *testing.T) {
	assert.True(t, PriceBar{Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1}.Valid())
	assert.False(t, PriceBar{Open: 10, High: 9, Low: 9.5, Close: 10, Volume: 1}.Valid())
	assert.False(t, PriceBar{Open: 0, High: 11, Low: 9, Close: 10, Volume: 1}.Valid())
}
