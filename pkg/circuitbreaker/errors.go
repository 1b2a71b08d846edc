package circuitbreaker

import (
	"errors"
	"fmt"
)

// ErrOpen matches every *OpenError with errors.Is.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is returned for calls rejected by an open circuit
type OpenError struct {
	CircuitName string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open, request rejected", e.CircuitName)
}

// Is reports whether target is ErrOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// NewOpenError creates an error for a rejected call
func NewOpenError(name string) *OpenError {
	return &OpenError{CircuitName: name}
}

// IsOpenError checks if err, or any error it wraps, is an open-circuit rejection
func IsOpenError(err error) bool {
	return errors.Is(err, ErrOpen)
}
