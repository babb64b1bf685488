package models

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrJobNotFound    = errors.New("job not found")
	ErrResultNotReady = errors.New("result not ready")
	ErrDuplicateJob   = errors.New("duplicate job id")
	ErrInvalidID      = errors.New("invalid ID format")
)

// ConfigurationError marks a request rejected at submission time. A job is
// never created for a configuration error.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a configuration error for a field
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// DataError marks a job that failed because the historical data could not
// support the simulation (insufficient coverage, missing indicators).
type DataError struct {
	Message string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error: %s", e.Message)
}

// NewDataError creates a data error
func NewDataError(format string, args ...interface{}) *DataError {
	return &DataError{Message: fmt.Sprintf(format, args...)}
}

// SimulationInvariantError marks an accounting invariant violation during a
// fold (negative equity, impossible fill). The partial trade log up to the
// failure point is preserved on the job record.
type SimulationInvariantError struct {
	Symbol  string
	Message string
}

func (e *SimulationInvariantError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("simulation invariant violated: %s", e.Message)
	}
	return fmt.Sprintf("simulation invariant violated: %s: %s", e.Symbol, e.Message)
}

// InsufficientDataError marks a walk-forward configuration whose first
// training window holds fewer trading days than min_training_samples.
type InsufficientDataError struct {
	Required  int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: first training window has %d trading days, need %d", e.Available, e.Required)
}
