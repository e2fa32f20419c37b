package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is matched by every ValidationError.
var ErrEmptyInput = errors.New("input is empty")

// ValidationError rejects user input before any state is touched.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, ErrEmptyInput)
}

// Is lets errors.Is(err, ErrEmptyInput) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrEmptyInput
}
