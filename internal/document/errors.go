package document

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath indicates a malformed field path.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrOutOfRange indicates an array index at or past the array's length.
	ErrOutOfRange = errors.New("array index out of range")

	// ErrNotContainer indicates a path that descends through a scalar value.
	ErrNotContainer = errors.New("path descends through a scalar")

	// ErrNotList indicates a list operation on a value that is not an array.
	ErrNotList = errors.New("value is not a list")

	// ErrUnknownField indicates a well-formed path that is absent from the schema.
	ErrUnknownField = errors.New("unknown field")
)

// ValidationError reports a caller bug: a malformed path or an illegal write.
type ValidationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v (%s)", e.Path, e.Err, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(path string, err error, reason string) *ValidationError {
	return &ValidationError{Path: path, Reason: reason, Err: err}
}
