package trader

import (
	"math"
	"sync"
)

const (
	minHealth = 0.1
	maxHealth = 1.0
)

// HealthState holds the process-wide error counters. The orchestrator is its
// only writer; everyone else reads snapshots.
type HealthState struct {
	mu                sync.RWMutex
	totalErrors       int
	consecutiveErrors int
	health            float64
	emergency         bool
	shutdown          bool
}

// HealthSnapshot is a point-in-time copy of HealthState.
type HealthSnapshot struct {
	TotalErrors       int     `json:"total_errors"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
	Health            float64 `json:"health"`
	Emergency         bool    `json:"emergency"`
	Shutdown          bool    `json:"shutdown"`
}

// NewHealthState starts fully healthy.
func NewHealthState() *HealthState {
	return &HealthState{health: maxHealth}
}

func clampHealth(h float64) float64 {
	return math.Max(minHealth, math.Min(maxHealth, h))
}

// Snapshot returns a copy of the current state.
func (h *HealthState) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		TotalErrors:       h.totalErrors,
		ConsecutiveErrors: h.consecutiveErrors,
		Health:            h.health,
		Emergency:         h.emergency,
		Shutdown:          h.shutdown,
	}
}

func (h *HealthState) recordSuccess(step float64) HealthSnapshot {
	h.mu.Lock()
	h.consecutiveErrors = 0
	h.health = clampHealth(h.health + step)
	h.mu.Unlock()
	return h.Snapshot()
}

func (h *HealthState) recordFailure(step float64) HealthSnapshot {
	h.mu.Lock()
	h.totalErrors++
	h.consecutiveErrors++
	h.health = clampHealth(h.health - step)
	h.mu.Unlock()
	return h.Snapshot()
}

func (h *HealthState) setHealth(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.health = clampHealth(v)
}

// enterEmergency sets the emergency flag and reports whether it was newly set.
func (h *HealthState) enterEmergency() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.emergency || h.shutdown {
		return false
	}
	h.emergency = true
	return true
}

// clearEmergency ends emergency mode and halves the consecutive error count.
func (h *HealthState) clearEmergency() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emergency = false
	h.consecutiveErrors /= 2
}

// markShutdown sets the shutdown flag and reports whether it was newly set.
func (h *HealthState) markShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.shutdown = true
	return true
}

func (h *HealthState) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalErrors = 0
	h.consecutiveErrors = 0
	h.health = maxHealth
	h.emergency = false
	h.shutdown = false
}
