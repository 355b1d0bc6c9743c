package job

import "fmt"

// InputValidationError is returned by Job.Validate; it never mutates system
// state.
type InputValidationError struct {
	Message string
}

func (e *InputValidationError) Error() string {
	return e.Message
}

// NewValidationError builds an InputValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return &InputValidationError{Message: fmt.Sprintf(format, args...)}
}

// SetupError wraps a failure during dequeue-time (or immediate-path)
// initialization: workdir creation, write_input, or launch.
type SetupError struct {
	Message string
	Cause   error
}

func (e *SetupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SetupError) Unwrap() error {
	return e.Cause
}

// NewSetupError wraps cause with a human-readable message.
func NewSetupError(message string, cause error) error {
	return &SetupError{Message: message, Cause: cause}
}
