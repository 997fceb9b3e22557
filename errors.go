package filter

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is returned when filter inputs are invalid:
	// negative time steps, degenerate geometry or mismatched dimensions.
	ErrPrecondition = errors.New("precondition violation")
	// ErrNumerical is returned when an update produces an ill-conditioned
	// or non-finite result.
	ErrNumerical = errors.New("numerical instability")
)

// StepError reports the filter step at which a run was aborted.
type StepError struct {
	// Step is timestep index of the offending step; index 0 is the initial
	// condition, so Step matches both the trajectory index and the dataset row
	Step int
	// Err is the underlying error
	Err error
}

// Error implements error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}
