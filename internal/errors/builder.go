package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// InternalError carries an operator-facing hint and a bag of reportable
// details alongside the wrapped cause. It is always classified with one of
// the marker errors before leaving the builder.
type InternalError struct {
	cause             error
	hint              string
	reportableDetails map[string]interface{}
}

func (e *InternalError) Error() string {
	if e.cause == nil {
		return e.hint
	}
	return e.cause.Error()
}

// Unwrap returns the wrapped cause so errors.Is works through the chain.
func (e *InternalError) Unwrap() error {
	return e.cause
}

// Hint returns the operator-facing hint attached to the error, if any.
func (e *InternalError) Hint() string {
	return e.hint
}

// ReportableDetails returns the structured details attached to the error.
func (e *InternalError) ReportableDetails() map[string]interface{} {
	return e.reportableDetails
}

// Builder accumulates error context before the terminal Mark call.
type Builder struct {
	err *InternalError
}

// NewError starts a builder from a fresh error message.
func NewError(message string) *Builder {
	return &Builder{
		err: &InternalError{cause: errors.New(message)},
	}
}

// NewErrorf starts a builder from a formatted error message.
func NewErrorf(format string, args ...interface{}) *Builder {
	return NewError(fmt.Sprintf(format, args...))
}

// WithError starts a builder wrapping an existing error.
func WithError(err error) *Builder {
	return &Builder{
		err: &InternalError{cause: err},
	}
}

// WithHint attaches a human readable hint shown in API responses and logs.
func (b *Builder) WithHint(hint string) *Builder {
	b.err.hint = hint
	return b
}

// WithHintf attaches a formatted hint.
func (b *Builder) WithHintf(format string, args ...interface{}) *Builder {
	return b.WithHint(fmt.Sprintf(format, args...))
}

// WithReportableDetails attaches structured details surfaced in error responses.
func (b *Builder) WithReportableDetails(details map[string]interface{}) *Builder {
	b.err.reportableDetails = details
	return b
}

// Mark classifies the error with the given marker and finalizes the builder.
func (b *Builder) Mark(marker error) error {
	return errors.Mark(b.err, marker)
}
