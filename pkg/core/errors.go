package core

import (
	"errors"
	"fmt"

	"github.com/luxfi/log"
)

// ConfigError represents a configuration error
type ConfigError struct {
	msg string
}

func (e ConfigError) Error() string {
	return e.msg
}

// ErrInvalidConfig creates a new configuration error
func ErrInvalidConfig(msg string) error {
	return ConfigError{msg: msg}
}

// ErrInvalidConfigf creates a new formatted configuration error
func ErrInvalidConfigf(format string, args ...interface{}) error {
	return ConfigError{msg: fmt.Sprintf(format, args...)}
}

var (
	// ErrOutOfWeight is returned when a step could not make any progress within its budget.
	ErrOutOfWeight = errors.New("out of weight")
	// ErrUnknownDomain is returned when no migrator or handler is registered for a domain.
	ErrUnknownDomain = errors.New("unknown domain")
	// ErrInvalidTransition is returned for an event that the current stage does not accept.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrHalted is returned when the controller is halted by the operator.
	ErrHalted = errors.New("migration halted")
	// ErrMissingDependency marks an item whose referenced data is not on the destination yet.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrAlreadyExists marks an insert into an occupied key.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDecode marks an item or batch that could not be decoded.
	ErrDecode = errors.New("decode error")
	// ErrFiltered is returned for a call rejected by the transaction filter.
	ErrFiltered = errors.New("call filtered")
	// ErrNotFound is returned when a key is absent from a store.
	ErrNotFound = errors.New("not found")
	// ErrMessageTooLarge is returned when a single record does not fit into one envelope.
	ErrMessageTooLarge = errors.New("message too large")
)

// CheckError reports a failed consistency assertion.
type CheckError struct {
	Check string
	Phase string
	Msg   string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check %s failed during %s: %s", e.Check, e.Phase, e.Msg)
}

// ErrCheckf creates a new formatted check error
func ErrCheckf(check, phase, format string, args ...interface{}) error {
	return &CheckError{Check: check, Phase: phase, Msg: fmt.Sprintf(format, args...)}
}

// Defensive logs a violated invariant. Builds with the debugassert tag panic instead.
func Defensive(logger log.Logger, msg string, ctx ...interface{}) {
	logger.Warn("defensive: "+msg, ctx...)
	if debugAssertions {
		panic(fmt.Sprintf("defensive: %s %v", msg, ctx))
	}
}
