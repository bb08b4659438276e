package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"

	ierr "github.com/dukastack/billing/internal/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRequest runs struct tag validation on a request DTO and converts
// field failures into a validation error with the offending fields reported.
func ValidateRequest(req interface{}) error {
	err := instance().Struct(req)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation)
	}

	details := make(map[string]interface{}, len(fieldErrors))
	for _, fe := range fieldErrors {
		details[fe.Field()] = fe.Tag()
	}
	return ierr.NewError("request validation failed").
		WithHint("One or more fields are missing or invalid").
		WithReportableDetails(details).
		Mark(ierr.ErrValidation)
}
