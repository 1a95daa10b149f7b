package utils

import (
	"errors"
	"fmt"
)

// NewError creates a new error with a message
func NewError(msg string) error {
	return errors.New(msg)
}

// WrapError wraps an error with additional context
func WrapError(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// RecoveredError converts a recovered panic value into an error.
func RecoveredError(r interface{}, operation string) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%s: panic: %w", operation, err)
	}
	return fmt.Errorf("%s: panic: %v", operation, r)
}
