package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeTransport      ErrorType = "transport"
	ErrorTypeRateLimited    ErrorType = "rate_limited"
	ErrorTypeNoHealthyProxy ErrorType = "no_healthy_proxy"
	ErrorTypeChallenge      ErrorType = "challenge"
	ErrorTypeSolverQuota    ErrorType = "solver_quota"
	ErrorTypeSolver         ErrorType = "solver"
	ErrorTypeMalformed      ErrorType = "malformed_request"
	ErrorTypeParsing        ErrorType = "parsing"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error represents a dispatch or scraping error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error
func New(errorType ErrorType, message string, code int) *Error {
	return &Error{Type: errorType, Message: message, Code: code}
}

// Newf creates a typed error with a formatted message
func Newf(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...), Code: code}
}

// TypeOf returns the error type of err, or ErrorTypeUnknown if err is not a
// typed error
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err is a typed error of the given type
func IsType(err error, errorType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeRateLimited, ErrorTypeServerError, ErrorTypeChallenge:
		return true
	case ErrorTypeNoHealthyProxy, ErrorTypeSolverQuota, ErrorTypeMalformed, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsFatal reports whether an error type cannot be fixed by retrying under any
// conditions
func IsFatal(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNoHealthyProxy, ErrorTypeSolverQuota, ErrorTypeMalformed:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 400, 401, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
