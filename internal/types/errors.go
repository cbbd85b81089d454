package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error codes are grouped by prefix. The prefix decides both the HTTP status
// of a failed query and which failure family (poll, fetch, store, notify) an
// error belongs to.
const (
	// Validation (400)
	ErrCodeValidationInvalidInput ErrorCode = "validation_invalid_input"
	ErrCodeValidationInvalidDay   ErrorCode = "validation_invalid_day"
	ErrCodeValidationLimit        ErrorCode = "validation_limit_out_of_range"

	// Not Found (404)
	ErrCodeNotFoundState ErrorCode = "not_found_state"

	// Device polling (502)
	ErrCodePollUnreachable ErrorCode = "poll_device_unreachable"
	ErrCodePollMalformed   ErrorCode = "poll_malformed_response"

	// Schedule fetch (502)
	ErrCodeFetchUnavailable ErrorCode = "fetch_schedule_unavailable"
	ErrCodeFetchMalformed   ErrorCode = "fetch_schedule_malformed"

	// Persistence (500)
	ErrCodeStoreWrite ErrorCode = "store_write_failed"
	ErrCodeStoreRead  ErrorCode = "store_read_failed"

	// Notification transport (502/503)
	ErrCodeNotifyDelivery  ErrorCode = "notify_delivery_failed"
	ErrCodeNotifyQueueFull ErrorCode = "notify_queue_full"

	// Upstream transport
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Internal (500)
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case c == ErrCodeNotifyQueueFull:
		return http.StatusServiceUnavailable
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "poll_"),
		strings.HasPrefix(s, "fetch_"),
		strings.HasPrefix(s, "notify_"),
		strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Transport, store and
// query failures are all expressed as AppError so the API layer can render
// them uniformly.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{Code: e.Code, Message: e.Message, Err: e.Err, Details: merged}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func hasCodePrefix(err error, prefix string) bool {
	return strings.HasPrefix(string(CodeOf(err)), prefix)
}

// IsPollError reports whether err is a device polling failure.
func IsPollError(err error) bool { return hasCodePrefix(err, "poll_") }

// IsFetchError reports whether err is a schedule fetch failure.
func IsFetchError(err error) bool { return hasCodePrefix(err, "fetch_") }

// IsStoreError reports whether err is a persistence failure.
func IsStoreError(err error) bool { return hasCodePrefix(err, "store_") }

// IsNotificationError reports whether err is a notification delivery failure.
func IsNotificationError(err error) bool { return hasCodePrefix(err, "notify_") }
