// Package errs carries coded errors from handlers to HTTP responses.
// Only the message of a coded error reaches the client.
package errs

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Code classifies an error for the HTTP boundary.
type Code string

const (
	InvalidArgument  Code = "invalid_argument"
	PermissionDenied Code = "permission_denied"
	RateLimited      Code = "rate_limited"
	Upstream         Code = "upstream"
	Internal         Code = "internal"
)

var statusByCode = map[Code]int{
	InvalidArgument:  http.StatusBadRequest,
	PermissionDenied: http.StatusForbidden,
	RateLimited:      http.StatusTooManyRequests,
	Upstream:         http.StatusBadGateway,
	Internal:         http.StatusInternalServerError,
}

// Error is a coded application error. RetryAfter, when positive, is sent
// as a Retry-After header rounded up to whole seconds.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error around cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// TooManyRequests is the rate limiter's rejection.
func TooManyRequests(retryAfter time.Duration) error {
	return &Error{Code: RateLimited, Message: "too many requests", RetryAfter: retryAfter}
}

// CodeOf returns the code of the outermost coded error in the chain, or Internal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// MessageOf returns the client-safe message for err.
// Untyped errors become "internal error" so driver and path details stay server side.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to its response status. Unknown codes are 500.
func HTTPStatus(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteHTTP writes err as a plain-text response with its coded status.
func WriteHTTP(w http.ResponseWriter, err error) {
	var coded *Error
	if errors.As(err, &coded) && coded.RetryAfter > 0 {
		secs := int((coded.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.Error(w, MessageOf(err), HTTPStatus(CodeOf(err)))
}
