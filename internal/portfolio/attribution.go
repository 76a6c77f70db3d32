package portfolio

import (
	"trading-desk-go/internal/models"
	"trading-desk-go/internal/risk"
)

// Attribute computes per-source performance from closed round trips. Each sell
// is credited to the sources behind the buy that opened the position: the
// ensemble itself and every contributing strategy.
func Attribute(trades []models.Trade, signals map[uint]models.Signal) map[string]risk.Prior {
	type tally struct {
		wins, losses    int
		winSum, lossSum float64
	}
	tallies := make(map[string]*tally)
	openers := make(map[string][]string)
	held := make(map[string]models.Position)

	for _, t := range trades {
		pos := held[t.Symbol]
		pos.Symbol = t.Symbol
		if t.Side == models.Buy && pos.Quantity == 0 {
			openers[t.Symbol] = sourcesOf(t, signals)
		}
		avg := pos.AvgPrice
		if _, err := pos.Apply(t); err != nil {
			continue
		}
		held[t.Symbol] = pos

		if t.Side != models.Sell || avg <= 0 {
			continue
		}
		ret := (t.Price - avg) / avg
		for _, source := range openers[t.Symbol] {
			tl, ok := tallies[source]
			if !ok {
				tl = &tally{}
				tallies[source] = tl
			}
			if ret > 0 {
				tl.wins++
				tl.winSum += ret
			} else {
				tl.losses++
				tl.lossSum -= ret
			}
		}
	}

	out := make(map[string]risk.Prior, len(tallies))
	for source, tl := range tallies {
		n := tl.wins + tl.losses
		p := risk.Prior{Samples: n, WinRate: float64(tl.wins) / float64(n)}
		if tl.wins > 0 {
			p.AvgWin = tl.winSum / float64(tl.wins)
		}
		if tl.losses > 0 {
			p.AvgLoss = tl.lossSum / float64(tl.losses)
		}
		out[source] = p
	}
	return out
}

func sourcesOf(t models.Trade, signals map[uint]models.Signal) []string {
	sig, ok := signals[t.SignalID]
	if !ok {
		if t.SignalSource != "" {
			return []string{t.SignalSource}
		}
		return nil
	}
	sources := []string{sig.Source}
	if sig.IsEnsemble() {
		sources = append(sources, sig.Contributors()...)
	}
	return sources
}

// SignalIDs lists the distinct originating signals of a ledger.
func SignalIDs(trades []models.Trade) []uint {
	seen := make(map[uint]struct{})
	var ids []uint
	for _, t := range trades {
		if t.SignalID == 0 {
			continue
		}
		if _, ok := seen[t.SignalID]; ok {
			continue
		}
		seen[t.SignalID] = struct{}{}
		ids = append(ids, t.SignalID)
	}
	return ids
}
