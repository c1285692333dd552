package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrValidation indicates invalid caller input (shape or length bounds)
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration indicates required credentials or settings are missing
	ErrConfiguration = errors.New("service not configured")

	// ErrRetrieval indicates embedding or similarity search failed for the
	// primary query variant
	ErrRetrieval = errors.New("formulary retrieval failed")

	// ErrGeneration indicates the structured-output generation step failed
	ErrGeneration = errors.New("answer generation failed")

	// ErrUpstreamTimeout indicates an external call exceeded its deadline
	ErrUpstreamTimeout = errors.New("upstream call timed out")

	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrDatabaseOperation indicates a database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")
)

// WrapError wraps an error with context message and stack
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsValidation checks if error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfiguration checks if error is a missing-configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRetrieval checks if error is a retrieval error
func IsRetrieval(err error) bool {
	return errors.Is(err, ErrRetrieval)
}

// IsGeneration checks if error is a generation error
func IsGeneration(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsUpstreamTimeout checks if error is an upstream timeout
func IsUpstreamTimeout(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}
