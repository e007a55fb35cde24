package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Category classifies a failed model call.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryTimeout    Category = "timeout"
	CategoryValidation Category = "validation"
	CategoryAPI        Category = "api"
)

// Error is a categorized model-call failure.
type Error struct {
	Category    Category
	Recoverable bool
	StatusCode  int
	Err         error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s error (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s error: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError is returned by transports that got a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// FromStatus categorizes an HTTP status code.
func FromStatus(code int, err error) *Error {
	e := &Error{StatusCode: code, Err: err}
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		e.Category, e.Recoverable = CategoryTimeout, true
	case code == http.StatusTooManyRequests || code >= 500:
		e.Category, e.Recoverable = CategoryAPI, true
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		e.Category = CategoryValidation
	default:
		e.Category = CategoryAPI
	}
	return e
}

// Classify maps any error into the taxonomy. Timeouts and connection failures
// are recoverable, malformed requests and auth failures are not. A canceled
// context is never retried.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	var se *StatusError
	if errors.As(err, &se) {
		return FromStatus(se.Code, err)
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Category: CategoryNetwork, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Category: CategoryTimeout, Recoverable: true, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Category: CategoryTimeout, Recoverable: true, Err: err}
	}
	var oe *net.OpError
	if errors.As(err, &oe) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Category: CategoryNetwork, Recoverable: true, Err: err}
	}
	return &Error{Category: CategoryAPI, Err: err}
}

// IsRecoverable reports whether err is worth retrying.
func IsRecoverable(err error) bool {
	e := Classify(err)
	return e != nil && e.Recoverable
}
