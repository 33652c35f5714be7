package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the application.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTooLarge        = errors.New("payload too large")
	ErrUnauthorized    = errors.New("unauthorized access")
	ErrStorage         = errors.New("storage error")
)

// StorageError wraps an I/O failure from a store so that callers can match
// it with errors.Is(err, ErrStorage) while keeping the cause.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// InvalidArgument returns an error matching ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
