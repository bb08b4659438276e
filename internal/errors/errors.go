package errors

import (
	"github.com/cockroachdb/errors"
)

// Marker errors used to classify failures across the codebase. Errors are
// attached to one of these via Mark() and checked with the Is* helpers so
// callers never compare error strings.
var (
	ErrValidation       = errors.New("validation_error")
	ErrNotFound         = errors.New("not_found")
	ErrAlreadyExists    = errors.New("already_exists")
	ErrDatabase         = errors.New("database_error")
	ErrInternal         = errors.New("internal_error")
	ErrHTTPClient       = errors.New("http_client_error")
	ErrPermissionDenied = errors.New("permission_denied")
	ErrServiceDisabled  = errors.New("service_disabled")
)

// IsNotFound returns true if the error is marked as a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if the error is marked as an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation returns true if the error is marked as a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDatabase returns true if the error is marked as a database error
func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// IsServiceDisabled returns true if the error is marked as a service disabled error
func IsServiceDisabled(err error) bool {
	return errors.Is(err, ErrServiceDisabled)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
