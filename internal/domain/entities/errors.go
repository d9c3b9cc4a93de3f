package entities

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrBackupNotFound   = errors.New("backup not found")
	ErrMalformedRecord  = errors.New("malformed stored record")
)

// ErrorKind classifies failures surfaced by the persistence layer.
type ErrorKind string

const (
	ErrorKindStorage    ErrorKind = "STORAGE"
	ErrorKindValidation ErrorKind = "VALIDATION"
	ErrorKindMigration  ErrorKind = "MIGRATION"
)

// AppError is the structured error carried across the storage and migration
// boundaries. Recoverable marks failures the caller may retry after user
// action (e.g. freeing store capacity).
type AppError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
	Cause       error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewStorageError wraps a store read/write/serialize failure.
func NewStorageError(message string, recoverable bool, cause error) *AppError {
	return &AppError{
		Kind:        ErrorKindStorage,
		Message:     message,
		Timestamp:   time.Now(),
		Recoverable: recoverable,
		Cause:       cause,
	}
}

// NewValidationError wraps a structural integrity failure.
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Kind:      ErrorKindValidation,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewMigrationError wraps a version-transform or backup/restore failure.
func NewMigrationError(message string, cause error) *AppError {
	return &AppError{
		Kind:      ErrorKindMigration,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// AsAppError extracts an *AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
