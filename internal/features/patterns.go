package features

import (
	"math"

	"trading-desk-go/internal/models"
)

// Candlestick pattern flags.
const (
	FlagBullishEngulfing   = "bullish_engulfing"
	FlagBearishEngulfing   = "bearish_engulfing"
	FlagHammer             = "hammer"
	FlagShootingStar       = "shooting_star"
	FlagDoji               = "doji"
	FlagThreeWhiteSoldiers = "three_white_soldiers"
	FlagThreeBlackCrows    = "three_black_crows"
)

func body(b models.PriceBar) float64 { return math.Abs(b.Close - b.Open) }

func bullish(b models.PriceBar) bool { return b.Close > b.Open }

func bearish(b models.PriceBar) bool { return b.Close < b.Open }

func detectPatterns(bars []models.PriceBar, flags map[string]bool) {
	n := len(bars)
	cur := bars[n-1]
	rng := cur.High - cur.Low

	flags[FlagDoji] = rng > 0 && body(cur) <= 0.1*rng

	upper := cur.High - math.Max(cur.Open, cur.Close)
	lower := math.Min(cur.Open, cur.Close) - cur.Low
	b := body(cur)
	flags[FlagHammer] = b > 0 && lower >= 2*b && upper <= b
	flags[FlagShootingStar] = b > 0 && upper >= 2*b && lower <= b

	if n >= 2 {
		prev := bars[n-2]
		flags[FlagBullishEngulfing] = bearish(prev) && bullish(cur) &&
			cur.Open <= prev.Close && cur.Close >= prev.Open && b > body(prev)
		flags[FlagBearishEngulfing] = bullish(prev) && bearish(cur) &&
			cur.Open >= prev.Close && cur.Close <= prev.Open && b > body(prev)
	}

	if n >= 3 {
		a, m, c := bars[n-3], bars[n-2], bars[n-1]
		flags[FlagThreeWhiteSoldiers] = bullish(a) && bullish(m) && bullish(c) &&
			m.Close > a.Close && c.Close > m.Close && m.Open >= a.Open && c.Open >= m.Open
		flags[FlagThreeBlackCrows] = bearish(a) && bearish(m) && bearish(c) &&
			m.Close < a.Close && c.Close < m.Close && m.Open <= a.Open && c.Open <= m.Open
	}
}
