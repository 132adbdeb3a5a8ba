package agent

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes of the generation capability.
var (
	ErrRateLimited    = errors.New("rate limited")
	ErrServerError    = errors.New("server error")
	ErrTransport      = errors.New("transport failure")
	ErrEmptyResponse  = errors.New("empty response from model")
	ErrSchemaMismatch = errors.New("response does not match schema")
	ErrRequest        = errors.New("request rejected")
)

// StatusError carries the upstream HTTP status and a bounded excerpt of the
// body. It unwraps to the sentinel for its class.
type StatusError struct {
	Status int
	Body   string
	class  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.class
}

// NewStatusError classifies an upstream HTTP failure by status code.
func NewStatusError(status int, body string) error {
	class := ErrRequest
	switch {
	case status == http.StatusTooManyRequests:
		class = ErrRateLimited
	case status >= 500 && status < 600:
		class = ErrServerError
	}
	return &StatusError{Status: status, Body: body, class: class}
}

// IsTransient reports whether err is worth retrying: rate limiting or a
// 5xx-class server failure. Empty or malformed responses are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError)
}
