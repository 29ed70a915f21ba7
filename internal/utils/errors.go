package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError is an expected, user-facing coordination outcome
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any ServiceError with the same code, so detailed copies still
// satisfy errors.Is against the sentinels below.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e carrying extra context
func (e *ServiceError) WithDetails(format string, args ...interface{}) *ServiceError {
	cp := *e
	cp.Details = fmt.Sprintf(format, args...)
	return &cp
}

var (
	ErrNotEligible = &ServiceError{
		Code: "NOT_ELIGIBLE", Message: "responder is not eligible to accept this signal", StatusCode: http.StatusForbidden,
	}
	ErrAlreadyAssigned = &ServiceError{
		Code: "ALREADY_ASSIGNED", Message: "signal has already been accepted by another responder", StatusCode: http.StatusConflict,
	}
	ErrSignalAlreadyClosed = &ServiceError{
		Code: "SIGNAL_ALREADY_CLOSED", Message: "signal is already closed", StatusCode: http.StatusConflict,
	}
	ErrInvalidTransition = &ServiceError{
		Code: "INVALID_TRANSITION", Message: "status transition is not allowed", StatusCode: http.StatusConflict,
	}
	ErrCancellationWindowClosed = &ServiceError{
		Code: "CANCELLATION_WINDOW_CLOSED", Message: "a responder has already arrived; the signal can no longer be cancelled", StatusCode: http.StatusConflict,
	}
	ErrNotFound = &ServiceError{
		Code: "NOT_FOUND", Message: "resource not found", StatusCode: http.StatusNotFound,
	}
	ErrResponseClosed = &ServiceError{
		Code: "RESPONSE_CLOSED", Message: "response is already closed", StatusCode: http.StatusConflict,
	}
	ErrForbidden = &ServiceError{
		Code: "FORBIDDEN", Message: "actor is not allowed to perform this operation", StatusCode: http.StatusForbidden,
	}
	ErrInvalidRequest = &ServiceError{
		Code: "INVALID_REQUEST", Message: "invalid request", StatusCode: http.StatusBadRequest,
	}
	ErrRateLimited = &ServiceError{
		Code: "RATE_LIMITED", Message: "rate limit exceeded", StatusCode: http.StatusTooManyRequests,
	}
)

// ErrConflict is returned by stores when an optimistic version check fails.
// It is an infrastructure error: callers should retry with backoff.
var ErrConflict = errors.New("concurrent modification detected")

// AsServiceError extracts a ServiceError from err
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
