package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConstraintViolation marks a write rejected by a storage constraint.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrStorageUnavailable marks a failure to reach the storage engine.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// StorageError is returned when the persistence engine cannot complete an operation.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err for the given backend and operation.
// It returns nil when err is nil and leaves existing StorageErrors untouched.
func NewStorageError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// NewConstraintError wraps a driver error as a constraint violation.
func NewConstraintError(backend, op string, err error) error {
	return &StorageError{Backend: backend, Op: op, Err: fmt.Errorf("%w: %w", ErrConstraintViolation, err)}
}

// NewUnavailableError wraps a driver error as a connectivity failure.
func NewUnavailableError(backend, op string, err error) error {
	return &StorageError{Backend: backend, Op: op, Err: fmt.Errorf("%w: %w", ErrStorageUnavailable, err)}
}

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
