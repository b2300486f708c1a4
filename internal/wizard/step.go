package wizard

import (
	"errors"
	"fmt"

	"safeplate/internal/field"
)

// Input is a named collector shown on a screen.
type Input struct {
	Key string
	field.Collector
}

// Screen is one step of a flow. A screen owns its local field state while
// editing; what survives the step is only what Output returns.
type Screen interface {
	ID() StepID
	Title() string
	Inputs() []Input
	// Hydrate restores local fields from a previous output of this step.
	// Keys absent from v leave the corresponding field untouched.
	Hydrate(v Values)
	// Validate runs the step's checks in order and stops at the first failure.
	Validate() error
	Output() Values
}

// Check is one validation rule of a step.
type Check struct {
	Message string
	Pass    func() bool
}

func Require(message string, pass func() bool) Check {
	return Check{Message: message, Pass: pass}
}

// ValidationError is the single user-facing message of a failed step.
type ValidationError struct {
	Step    StepID
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// RunChecks evaluates checks in order and returns the first failure.
// Later checks are not evaluated.
func RunChecks(step StepID, checks ...Check) error {
	for _, c := range checks {
		if !c.Pass() {
			return &ValidationError{Step: step, Message: c.Message}
		}
	}
	return nil
}

// Phase is where a step screen is in its lifecycle.
type Phase int

const (
	Editing Phase = iota
	Validating
	Forwarding
	Submitting
	Failed
	Done
)

func (p Phase) String() string {
	switch p {
	case Editing:
		return "editing"
	case Validating:
		return "validating"
	case Forwarding:
		return "forwarding"
	case Submitting:
		return "submitting"
	case Failed:
		return "failed"
	case Done:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}
