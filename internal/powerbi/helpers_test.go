package powerbi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noopSleep records requested waits without actually sleeping.
func noopSleep(waits *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		if waits != nil {
			*waits = append(*waits, d)
		}

		return nil
	}
}

// newTestSession builds a session against a test server with a static token
// and instant retry waits.
func newTestSession(baseURL string, waits *[]time.Duration) *Session {
	tokens := NewTokenCache(StaticToken{Value: "test-token"}, testLogger())
	session := NewSession(baseURL, tokens, testLogger())
	session.SetRateLimit(0, 0)
	session.sleepFunc = noopSleep(waits)

	return session
}

// apiError builds the error a request attempt produces for the given status.
func apiError(status int, header http.Header) *APIError {
	retryAfterHeader := ""
	if header != nil {
		retryAfterHeader = header.Get("Retry-After")
	}

	return &APIError{
		StatusCode: status,
		RetryAfter: retryAfterHeader,
		Body:       http.StatusText(status),
		Err:        classifyStatus(status),
	}
}
