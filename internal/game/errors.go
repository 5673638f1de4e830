// internal/game/errors.go
package game

import (
	"errors"
	"fmt"
)

// ValidationError is a user-correctable failure: an illegal or out-of-turn
// action, a malformed parameter, a rule violation. Its message is safe to
// send back to the submitting client verbatim. Anything else that comes out
// of the engine is treated as internal and never surfaced.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalidf builds a ValidationError with a formatted message.
func Invalidf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
