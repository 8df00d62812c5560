package reconcile

import (
	"errors"
	"fmt"
)

// Phase is a step of a reconciliation run.
type Phase string

const (
	PhaseFetching      Phase = "fetching"
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseDiffing       Phase = "diffing"
	PhaseApplying      Phase = "applying"
	PhasePersisting    Phase = "persisting"
	PhaseDone          Phase = "done"
)

// PhaseError is a run that failed in Phase.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// FailedPhase returns the phase a run failed in, or "" if err is not a
// PhaseError.
func FailedPhase(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}
