package trader

import (
	"errors"
	"fmt"

	"trading-desk-go/internal/models"
)

var (
	// ErrCycleInProgress is returned when a segment already has a running cycle.
	ErrCycleInProgress = errors.New("cycle already in progress")

	// ErrDailyQuotaExceeded is returned once a segment used up its runs for the local day.
	ErrDailyQuotaExceeded = errors.New("daily run quota exceeded")

	// ErrShutdown is returned after an emergency shutdown until Reset.
	ErrShutdown = errors.New("orchestrator is shut down")

	// ErrUnknownSegment is returned for a segment name that is not configured.
	ErrUnknownSegment = errors.New("unknown segment")

	// ErrAlreadyRunning is returned by Start while the scheduler is active.
	ErrAlreadyRunning = errors.New("scheduler already running")
)

// PhaseError records which phase of a cycle failed.
type PhaseError struct {
	Phase models.Phase
	Err   error
	Fatal bool
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// phaseOf returns the failing phase of err, or STARTING when unknown.
func phaseOf(err error) models.Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return models.PhaseStarting
}
