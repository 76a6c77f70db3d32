package risk

import (
	"sync"

	"trading-desk-go/internal/models"
	"trading-desk-go/internal/strategy"
)

// Prior is the historical performance of a signal source.
type Prior struct {
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
	Samples int     `json:"samples"`
}

// KellyFraction returns f = (b*p - q) / b with b = AvgWin / AvgLoss.
// Degenerate priors yield zero.
func (p Prior) KellyFraction() float64 {
	if p.AvgWin <= 0 || p.AvgLoss <= 0 || p.WinRate <= 0 {
		return 0
	}
	b := p.AvgWin / p.AvgLoss
	q := 1 - p.WinRate
	return (b*p.WinRate - q) / b
}

// SeedPriors is the built-in prior table.
func SeedPriors() map[string]Prior {
	return map[string]Prior{
		strategy.TrendFollowing:     {WinRate: 0.55, AvgWin: 0.04, AvgLoss: 0.025},
		strategy.MeanReversion:      {WinRate: 0.60, AvgWin: 0.025, AvgLoss: 0.02},
		strategy.Breakout:           {WinRate: 0.45, AvgWin: 0.06, AvgLoss: 0.03},
		strategy.PatternRecognition: {WinRate: 0.52, AvgWin: 0.03, AvgLoss: 0.025},
		models.SourceEnsemble:       {WinRate: 0.58, AvgWin: 0.035, AvgLoss: 0.022},
	}
}

// PriorTable serves seed priors, superseded per source by live statistics
// once a source has enough closed trades.
type PriorTable struct {
	mu         sync.RWMutex
	seed       map[string]Prior
	live       map[string]Prior
	minSamples int
}

// NewPriorTable creates a table. A nil seed uses SeedPriors.
func NewPriorTable(seed map[string]Prior, minSamples int) *PriorTable {
	if seed == nil {
		seed = SeedPriors()
	}
	return &PriorTable{seed: seed, live: make(map[string]Prior), minSamples: minSamples}
}

// Get returns the prior for source; unknown sources get a zero prior.
func (t *PriorTable) Get(source string) Prior {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.live[source]; ok {
		return p
	}
	return t.seed[source]
}

// Update installs live statistics. Sources below the sample minimum keep
// their seed prior. It returns the sources that were replaced.
func (t *PriorTable) Update(stats map[string]Prior) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var replaced []string
	for source, p := range stats {
		if p.Samples < t.minSamples {
			delete(t.live, source)
			continue
		}
		t.live[source] = p
		replaced = append(replaced, source)
	}
	return replaced
}

// Snapshot returns the effective prior of every known source.
func (t *PriorTable) Snapshot() map[string]Prior {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Prior, len(t.seed)+len(t.live))
	for k, v := range t.seed {
		out[k] = v
	}
	for k, v := range t.live {
		out[k] = v
	}
	return out
}
