package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrTodoNotFound = errors.New("todo not found")
	ErrEmptyTitle   = errors.New("title cannot be empty")
	ErrInvalidID    = errors.New("todo id must be positive")
)

// ConnectionError is returned when the store could not be reached within
// the configured number of attempts. It is fatal at startup.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StorageError wraps any statement failure after startup.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a driver or context timeout.
func (e *StorageError) Timeout() bool {
	return pgconn.Timeout(e.Err) || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}
