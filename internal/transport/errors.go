package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TimeoutError is returned when a single attempt exceeds its deadline.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout after %dms", e.Label, e.Timeout.Milliseconds())
}

// APIError is returned for any non-2xx upstream response.
type APIError struct {
	Label  string
	Status int
	Body   string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned %d", e.Label, e.Status)
	}
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Label, e.Status, truncate(e.Body, 512))
}

// StatusCode returns the HTTP status carried by the error
func (e *APIError) StatusCode() int {
	return e.Status
}

// StatusCode extracts an HTTP status from err, or 0 when none is carried.
func StatusCode(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	return 0
}

// IsTimeout checks if an error is a per-attempt timeout
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// IsTerminal reports whether err must not be retried: a 4xx other than 429.
func IsTerminal(err error) bool {
	status := StatusCode(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
