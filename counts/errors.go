package counts

import "fmt"

// ConfigError is returned when the input of a fit is invalid. It is
// always reported before the first iteration.
type ConfigError struct {
	// Field is the input (or setting) which is invalid.
	Field string
	// Reason describes the problem.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
