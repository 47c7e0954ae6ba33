package mcmc

import (
	"errors"
	"fmt"
)

// ErrAborted is reported by every fit which did not reach the
// Finalized phase after the first sweep started.
var ErrAborted = errors.New("fit aborted")

// NumericalError is returned when a whole block of the sampler failed
// numerically: every proposal of a sweep had a non-finite likelihood.
// errors.Is(err, ErrAborted) is true for a NumericalError.
type NumericalError struct {
	// Block is the failed block (normalization, dispersion,
	// inclusion, effect, initialization).
	Block string
	// Iteration is the sweep at which the failure happened.
	Iteration int
	// Reason describes the failure.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *NumericalError) Error() string {
	return fmt.Sprintf("%s block failed at iteration %d: %s", e.Block, e.Iteration, e.Reason)
}

// Unwrap returns the underlying error.
func (e *NumericalError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAborted) true.
func (e *NumericalError) Is(target error) bool {
	return target == ErrAborted
}
