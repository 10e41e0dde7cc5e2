package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// HardwareUnavailableError is returned when an actuator has no driver attached.
type HardwareUnavailableError struct {
	Actuator string
}

func (err HardwareUnavailableError) Error() string {
	if len(err.Actuator) == 0 {
		err.Actuator = "UNKNOWN"
	}

	return fmt.Sprintf("no driver attached for %s", err.Actuator)
}

type InvalidCommandError struct {
	Command string
}

func (err InvalidCommandError) Error() string {
	return fmt.Sprintf("unknown command '%s'", err.Command)
}

// ConfigError reports a field of the device configuration that cannot be used.
type ConfigError struct {
	Field  string
	Reason string
}

func (err ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", err.Field, err.Reason)
}

// IsHardwareUnavailable reports whether err is, or wraps, a HardwareUnavailableError.
func IsHardwareUnavailable(err error) bool {
	_, ok := pkgerrors.Cause(err).(HardwareUnavailableError)
	return ok
}

// IsInvalidCommand reports whether err is, or wraps, an InvalidCommandError.
func IsInvalidCommand(err error) bool {
	_, ok := pkgerrors.Cause(err).(InvalidCommandError)
	return ok
}
