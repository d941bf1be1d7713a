package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an unknown job id.
var ErrNotFound = errors.New("job not found")

// ErrHalted is returned by handlers when they observe, at a unit boundary,
// that their job is no longer RUNNING (paused or cancelled). The worker
// treats it as "already finalized elsewhere" and performs no transition.
var ErrHalted = errors.New("job halted")

// InvalidTransitionError indicates a requested state change that is not
// permitted from the job's current status.
type InvalidTransitionError struct {
	JobID string
	From  Status
	To    Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for job %s", e.From, e.To, e.JobID)
}

// ValidationError indicates a malformed submission, rejected before any
// job is created.
type ValidationError struct {
	Field string
	Msg   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("validation failed: %s", e.Msg)
}

// SetupError indicates a handler could not start at all (e.g. a missing
// date range). It escalates to a job-level FAILED transition before any
// unit executes.
type SetupError struct {
	Msg   string
	Cause error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("setup failed: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("setup failed: %s", e.Msg)
}

// Unwrap returns the underlying cause.
func (e *SetupError) Unwrap() error {
	return e.Cause
}

// NewSetupError creates a SetupError with an optional cause.
func NewSetupError(msg string, cause error) *SetupError {
	return &SetupError{Msg: msg, Cause: cause}
}

// UnitError indicates one unit of work failed (e.g. upstream data missing
// for one date). Unit errors are absorbed by the handler's per-unit loop:
// counted, logged, and never propagated past it.
type UnitError struct {
	Unit  string
	Cause error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s failed: %v", e.Unit, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *UnitError) Unwrap() error {
	return e.Cause
}
