package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/emprius/emprius-social-backend/gateway"
)

// HTTPError represents an error with an HTTP status code
type HTTPError struct {
	Code    int
	Message string
	err     error
}

func (e *HTTPError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.err
}

// WithErr returns a copy of the HTTPError with err attached to its message.
func (e *HTTPError) WithErr(err error) *HTTPError {
	return &HTTPError{Code: e.Code, Message: e.Message, err: err}
}

var (
	ErrInvalidRequestBodyData = &HTTPError{Code: http.StatusBadRequest, Message: "invalid request body data"}
	ErrInvalidParameter       = &HTTPError{Code: http.StatusBadRequest, Message: "invalid parameter"}
	ErrUnauthorized           = &HTTPError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden              = &HTTPError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound               = &HTTPError{Code: http.StatusNotFound, Message: "not found"}
	ErrTooManyRequests        = &HTTPError{Code: http.StatusTooManyRequests, Message: "rate limit exceeded"}
	ErrInternalServerError    = &HTTPError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrPartialWrite           = &HTTPError{Code: http.StatusInternalServerError, Message: "partial write"}
	ErrServiceUnavailable     = &HTTPError{Code: http.StatusServiceUnavailable, Message: "backend unavailable"}
)

// toHTTPError converts the error of a handler to the HTTPError sent to the client.
// Gateway errors are mapped by their kind, anything else is an internal error.
func toHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	switch {
	case errors.Is(err, gateway.ErrValidation):
		return ErrInvalidParameter.WithErr(err)
	case errors.Is(err, gateway.ErrUnauthorized):
		return ErrUnauthorized.WithErr(err)
	case errors.Is(err, gateway.ErrNotFound):
		return ErrNotFound.WithErr(err)
	case errors.Is(err, gateway.ErrPartialWrite):
		return ErrPartialWrite.WithErr(err)
	case errors.Is(err, gateway.ErrTransport),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ErrServiceUnavailable.WithErr(err)
	default:
		return ErrInternalServerError.WithErr(err)
	}
}
