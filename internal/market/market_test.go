package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trading-desk-go/internal/config"
	"trading-desk-go/internal/restclient"
)

func TestCalendar_IsOpen(t *testing.T) {
	cal, err := NewCalendar([]config.Segment{
		{Name: "equities", Kind: "session", Session: config.Session{
			Timezone: "America/New_York", Open: "09:30", Close: "16:00",
			Weekdays: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		}},
		{Name: "crypto", Kind: "continuous"},
	})
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	testCases := []struct {
		name    string
		segment string
		at      time.Time
		want    bool
	}{
		{name: "weekday midday", segment: "equities", at: time.Date(2024, 3, 5, 12, 0, 0, 0, ny), want: true},
		{name: "at open", segment: "equities", at: time.Date(2024, 3, 5, 9, 30, 0, 0, ny), want: true},
		{name: "at close", segment: "equities", at: time.Date(2024, 3, 5, 16, 0, 0, 0, ny), want: false},
		{name: "before open", segment: "equities", at: time.Date(2024, 3, 5, 8, 0, 0, 0, ny), want: false},
		{name: "saturday", segment: "equities", at: time.Date(2024, 3, 9, 12, 0, 0, 0, ny), want: false},
		{name: "continuous segment", segment: "crypto", at: time.Date(2024, 3, 9, 3, 0, 0, 0, ny), want: true},
		{name: "unknown segment", segment: "fx", at: time.Date(2024, 3, 9, 3, 0, 0, 0, ny), want: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cal.IsOpen(tc.segment, tc.at))
		})
	}
}

func TestNewCalendar_RejectsBadSession(t *testing.T) {
	_, err := NewCalendar([]config.Segment{{Name: "x", Kind: "session", Session: config.Session{Open: "16:00", Close: "09:30"}}})
	assert.Error(t, err)

	_, err = NewCalendar([]config.Segment{{Name: "x", Kind: "session", Session: config.Session{Open: "09:00", Close: "10:00", Weekdays: []string{"Funday"}}}})
	assert.Error(t, err)
}

func TestSyntheticProvider_Fetch(t *testing.T) {
	// Arrange
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	p := NewSyntheticProvider(7, time.Minute, 30, map[string]float64{"AAPL": 150}, nil, zap.NewNop())
	p.SetClock(func() time.Time { return now })
	ctx := context.Background()

	// Act
	first, err := p.Fetch(ctx, []string{"AAPL", "MSFT"}, "equities")
	require.NoError(t, err)
	again, err := p.Fetch(ctx, []string{"AAPL"}, "equities")
	require.NoError(t, err)
	now = now.Add(3 * time.Minute)
	later, err := p.Fetch(ctx, []string{"AAPL"}, "equities")
	require.NoError(t, err)

	// Assert
	assert.Len(t, first, 60)
	assert.Empty(t, again)
	assert.Len(t, later, 3)
	for _, b := range append(first, later...) {
		assert.True(t, b.Valid(), "bar %+v", b)
	}
	assert.True(t, first[29].Timestamp.Equal(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)))

	price, err := p.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, later[2].Close, price)

	_, err = p.LatestPrice(ctx, "TSLA")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestSyntheticProvider_Deterministic(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	a := NewSyntheticProvider(11, time.Minute, 25, nil, nil, zap.NewNop())
	b := NewSyntheticProvider(11, time.Minute, 25, nil, nil, zap.NewNop())
	a.SetClock(func() time.Time { return now })
	b.SetClock(func() time.Time { return now })

	barsA, err := a.Fetch(context.Background(), []string{"GOOGL"}, "s")
	require.NoError(t, err)
	barsB, err := b.Fetch(context.Background(), []string{"GOOGL"}, "s")
	require.NoError(t, err)

	assert.Equal(t, barsA, barsB)
}

func newRestProvider(t *testing.T, handler http.Handler) (*RestProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := restclient.New(server.URL, 1, 1, zap.NewNop(),
		restclient.WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		restclient.WithBackoffBase(time.Millisecond),
	)
	return NewRestProvider(client, time.Minute, 50, nil, zap.NewNop()), server
}

func TestRestProvider(t *testing.T) {
	t.Run("FetchParsesKlines", func(t *testing.T) {
		// Arrange
		var startTimes []string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/klines", r.URL.Path)
			assert.Equal(t, "1m", r.URL.Query().Get("interval"))
			startTimes = append(startTimes, r.URL.Query().Get("startTime"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[
				[1709640000000, "100.0", "101.5", "99.5", "101.0", "1200.5", 1709640059999],
				[1709640060000, 101.0, 102.0, 100.5, 101.8, 900, 1709640119999]
			]`))
		})
		p, server := newRestProvider(t, handler)
		defer server.Close()

		// Act
		bars, err := p.Fetch(context.Background(), []string{"BTCUSDT"}, "crypto")
		require.NoError(t, err)
		_, err = p.Fetch(context.Background(), []string{"BTCUSDT"}, "crypto")
		require.NoError(t, err)

		// Assert
		require.Len(t, bars, 2)
		assert.Equal(t, "BTCUSDT", bars[0].Symbol)
		assert.Equal(t, 101.0, bars[0].Close)
		assert.Equal(t, 900.0, bars[1].Volume)
		assert.True(t, bars[1].Timestamp.Equal(time.UnixMilli(1709640060000)))
		require.Len(t, startTimes, 2)
		assert.Empty(t, startTimes[0])
		assert.Equal(t, "1709640060001", startTimes[1])
	})

	t.Run("LatestPriceAndHealth", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/ticker/price":
				_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64000.50"}`))
			case "/time":
				_, _ = w.Write([]byte(`{"serverTime": 1709640000000}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})
		p, server := newRestProvider(t, handler)
		defer server.Close()

		price, err := p.LatestPrice(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, 64000.50, price)
		assert.NoError(t, p.HealthCheck(context.Background()))
	})

	t.Run("HealthCheckFails", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		p, server := newRestProvider(t, handler)
		defer server.Close()

		err := p.HealthCheck(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get server time")
	})
}
