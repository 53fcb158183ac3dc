package dynamo

import (
	"errors"
	"fmt"
)

// Configuration errors. They are reported when a task is validated, before
// any tick runs.
var (
	ErrDuplicateEntity     = errors.New("dynamo: duplicate entity name")
	ErrDuplicateTrajectory = errors.New("dynamo: duplicate trajectory name")
	ErrUnknownEntity       = errors.New("dynamo: entity not owned by task")
	ErrMissingTarget       = errors.New("dynamo: constraint or role has no target entity")
	ErrConflictingWriters  = errors.New("dynamo: more than one position override for entity")
	ErrInvalidTimestep     = errors.New("dynamo: timestep must be positive")
	ErrInvalidDuration     = errors.New("dynamo: duration must not be negative")
	ErrEmptyName           = errors.New("dynamo: empty name")
)

// Runtime errors. A tick that fails is fatal to the run.
var (
	ErrParticipantFault = errors.New("dynamo: participant reported a fault")
	ErrUnassignedRole   = errors.New("dynamo: role has no participant")
	ErrInvalidState     = errors.New("dynamo: invalid entity state (NaN or Inf detected)")
)

// ConfigError attaches the offending task to a configuration error.
type ConfigError struct {
	Task    string
	Subject string
	Wrapped error
}

func (e *ConfigError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("task %q: %v", e.Task, e.Wrapped)
	}
	return fmt.Sprintf("task %q: %s: %v", e.Task, e.Subject, e.Wrapped)
}

func (e *ConfigError) Unwrap() error {
	return e.Wrapped
}

// TickError wraps a failure that stopped a task mid-run.
type TickError struct {
	Task    string
	Tick    int
	Time    float64
	Wrapped error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("task %q tick %d (t=%.4f): %v", e.Task, e.Tick, e.Time, e.Wrapped)
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}
