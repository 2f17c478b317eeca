// Package powerbi provides a typed HTTP client for the Power BI REST API
// with bearer-token auth, conflict and rate-limit retry, and error
// classification.
package powerbi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, powerbi.ErrConflict) to check.
var (
	ErrBadRequest   = errors.New("powerbi: bad request")
	ErrUnauthorized = errors.New("powerbi: unauthorized")
	ErrForbidden    = errors.New("powerbi: forbidden")
	ErrNotFound     = errors.New("powerbi: not found")
	ErrConflict     = errors.New("powerbi: conflict")
	ErrRateLimited  = errors.New("powerbi: rate limited")
	ErrServerError  = errors.New("powerbi: server error")
)

// APIError wraps a sentinel error with the HTTP status code, the service's
// request ID, the raw Retry-After header, and the response body for debugging.
type APIError struct {
	StatusCode int
	RequestID  string
	RetryAfter string // raw Retry-After header value, empty when absent
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("powerbi: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Body)
	}

	return fmt.Sprintf("powerbi: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthError reports a failed credential exchange. It is fatal: the retry
// policies never match it, so it always propagates to the caller.
type AuthError struct {
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("powerbi: token acquisition failed: %s", e.Description)
	}

	return fmt.Sprintf("powerbi: token acquisition failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a logical lookup miss: no resource of the given kind
// matched the requested name. It wraps ErrNotFound for errors.Is checks.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("powerbi: no %s named %q", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// IsConflict reports whether err is a 400 or 409 response, the two codes the
// service returns when refresh submissions clash.
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusConflict
}

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.StatusCode == http.StatusTooManyRequests
}

// retryAfter extracts the server-suggested wait from a 429 response.
// Returns false when the header is absent or not parseable as seconds.
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter == "" {
		return 0, false
	}

	seconds, parseErr := strconv.Atoi(apiErr.RetryAfter)
	if parseErr != nil || seconds <= 0 {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}
