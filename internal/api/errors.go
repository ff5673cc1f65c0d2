package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/arguspanoptes/argus-server/internal/errors"
)

// APIError implements huma.StatusError, mapping domain errors to HTTP
// responses with a consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int { return e.status }

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string { return "application/json" }

// ISBNValidationError is the fixed 400 shape for a malformed ISBN on
// the search endpoints.
type ISBNValidationError struct {
	Message string `json:"error" doc:"What was wrong with the ISBN"`
	Type    string `json:"type" doc:"Always isbn_validation_error"`
}

// Error implements the error interface.
func (e *ISBNValidationError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *ISBNValidationError) GetStatus() int { return http.StatusBadRequest }

// ContentType returns the content type for the error response.
func (e *ISBNValidationError) ContentType(_ string) string { return "application/json" }

func isbnValidationError(message string) *ISBNValidationError {
	return &ISBNValidationError{Message: message, Type: "isbn_validation_error"}
}

// RegisterErrorHandler configures huma to use domain errors. Call this
// after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return &APIError{
					status:  domainErr.HTTPStatus(),
					Code:    string(domainErr.Code),
					Message: domainErr.Message,
					Details: domainErr.Details,
				}
			}
		}
		return &APIError{
			status:  status,
			Code:    statusToCode(status),
			Message: message,
		}
	}
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(domainerrors.CodeValidation)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeConflict)
	case http.StatusTooManyRequests:
		return string(domainerrors.CodeRateLimited)
	case http.StatusServiceUnavailable:
		return string(domainerrors.CodeUnavailable)
	default:
		return string(domainerrors.CodeInternal)
	}
}
