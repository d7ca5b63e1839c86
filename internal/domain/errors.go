package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrNumerical         = errors.New("numerical error")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// ConfigurationError reports an invalid parameter, e.g. a window not larger than the variable count.
type ConfigurationError struct {
	Field  string
	Reason string
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NumericalError reports a failed matrix operation or non-finite data.
// Index is the window or observation index, -1 when not applicable.
type NumericalError struct {
	Op    string
	Index int
	Time  time.Time
	Rows  int
	Cols  int
	Err   error
}

func (e *NumericalError) Error() string {
	msg := fmt.Sprintf("numerical error in %s", e.Op)
	if e.Index >= 0 {
		msg += fmt.Sprintf(" at index %d", e.Index)
	}
	if !e.Time.IsZero() {
		msg += fmt.Sprintf(" (%s)", e.Time.Format("2006-01-02"))
	}
	if e.Rows > 0 || e.Cols > 0 {
		msg += fmt.Sprintf(" [%dx%d]", e.Rows, e.Cols)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NumericalError) Is(target error) bool { return target == ErrNumerical }

func (e *NumericalError) Unwrap() error { return e.Err }

// DimensionMismatchError reports an observation that does not carry the expected variables.
type DimensionMismatchError struct {
	Variable string
	Index    int
	Time     time.Time
	Reason   string
}

func (e *DimensionMismatchError) Error() string {
	msg := fmt.Sprintf("dimension mismatch at index %d", e.Index)
	if !e.Time.IsZero() {
		msg += fmt.Sprintf(" (%s)", e.Time.Format("2006-01-02"))
	}
	if e.Variable != "" {
		msg += fmt.Sprintf(": missing variable %q", e.Variable)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }
