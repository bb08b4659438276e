package errors

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// ErrorDetail is the wire representation of a single error.
type ErrorDetail struct {
	Message          string                 `json:"message"`
	InternalError    string                 `json:"internal_error,omitempty"`
	ReportableDetail map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse is the standard error envelope returned by the HTTP layer.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// NewErrorResponse builds the wire representation for an error, preferring
// the hint over the raw error text so internals never leak to tenants.
func NewErrorResponse(err error) *ErrorResponse {
	resp := &ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Message: err.Error(),
		},
	}

	var ie *InternalError
	if errors.As(err, &ie) {
		if ie.Hint() != "" {
			resp.Error.Message = ie.Hint()
			resp.Error.InternalError = ie.Error()
		}
		resp.Error.ReportableDetail = ie.ReportableDetails()
	}

	return resp
}

// HTTPStatusFromErr maps a classified error to an HTTP status code.
func HTTPStatusFromErr(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsValidation(err):
		return http.StatusBadRequest
	case IsAlreadyExists(err):
		return http.StatusConflict
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case IsServiceDisabled(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
