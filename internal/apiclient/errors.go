package apiclient

import (
	"errors"
	"net/http"
)

// ErrMalformedResponse marks a 2xx JSON body that is not a valid envelope.
var ErrMalformedResponse = errors.New("malformed response envelope")

// Error is the single error shape for transport failures (Status 0),
// non-2xx responses and logical failures (success=false).
type Error struct {
	Message string
	Status  int
	Code    string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "Request failed"
}

func (e *Error) Unwrap() error { return e.Err }

// IsNetwork reports a failure before any HTTP status was received.
func (e *Error) IsNetwork() bool { return e.Status == 0 }

func statusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// CodeOf returns the server error code carried by err, if any.
func CodeOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func IsUnauthorized(err error) bool { return statusOf(err) == http.StatusUnauthorized }

func IsForbidden(err error) bool { return statusOf(err) == http.StatusForbidden }

func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

func networkError(err error) *Error {
	return &Error{Message: "network error: " + err.Error(), Err: err}
}
