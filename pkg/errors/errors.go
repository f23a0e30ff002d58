package errors

import (
	"errors"
	"fmt"
)

// Error codes used across partbench.
const (
	// CodeInvalidInput marks malformed instance data (empty, non-numeric,
	// non-finite, non-positive or wrong count).
	CodeInvalidInput = "INVALID_INPUT"

	// CodeUnknownBackend marks a backend name the facade does not know.
	CodeUnknownBackend = "UNKNOWN_BACKEND"

	// CodeEngineUnavailable marks a solver binary or sub-solver that cannot be used.
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"

	// CodeEngineFailure marks an engine that ran but produced no usable answer.
	CodeEngineFailure = "ENGINE_FAILURE"

	// CodeCorrectness marks a solution that violates the partition contract.
	CodeCorrectness = "CORRECTNESS_VIOLATION"

	// CodeScheduling marks a failed task surfaced by the scheduler.
	CodeScheduling = "SCHEDULING_FAILURE"
)

var (
	// ErrUnsupported indicates that an operation is not available on this platform
	ErrUnsupported = errors.New("operation not supported on this platform")

	// ErrNotConnected indicates that the client is not connected to NATS
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrInvalidSubject indicates that the provided subject is invalid
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrPublishFailed indicates that a message could not be published
	ErrPublishFailed = errors.New("publish failed")
)

// Error represents a structured partbench error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// InvalidInput builds an INVALID_INPUT error with a formatted message.
func InvalidInput(format string, args ...any) *Error {
	return NewError(CodeInvalidInput, fmt.Sprintf(format, args...), nil)
}

// Correctness builds a CORRECTNESS_VIOLATION error with a formatted message.
func Correctness(format string, args ...any) *Error {
	return NewError(CodeCorrectness, fmt.Sprintf(format, args...), nil)
}

// Unavailable reports that an engine binary could not be resolved.
func Unavailable(engine string, err error) *Error {
	return NewError(CodeEngineUnavailable, fmt.Sprintf("%s is not available", engine), err)
}

// CodeOf returns the code of the outermost structured error in the chain,
// or the empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError returns the outermost structured error in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether any structured error in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsInput checks if an error is an input error
func IsInput(err error) bool {
	return HasCode(err, CodeInvalidInput)
}

// IsConfiguration checks if an error is a fatal configuration error
// (unknown backend or unavailable engine)
func IsConfiguration(err error) bool {
	return HasCode(err, CodeUnknownBackend) || HasCode(err, CodeEngineUnavailable)
}

// IsCorrectness checks if an error is a correctness violation
func IsCorrectness(err error) bool {
	return HasCode(err, CodeCorrectness)
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
