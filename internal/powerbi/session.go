package powerbi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the organization-scoped API root.
	DefaultBaseURL = "https://api.powerbi.com/v1.0/myorg"

	// requestTimeout bounds a single request/response exchange.
	requestTimeout = 600 * time.Second

	userAgent = "pbirest-go/0.1"

	// Client-side pacing, applied before every request so bursts of fan-out
	// calls do not trip the service throttle in the first place.
	defaultRequestsPerSecond = 10
	defaultRequestBurst      = 20
)

// Session owns one underlying HTTP transport, injects bearer auth, applies
// the rate-limit retry policy, and turns non-2xx responses into *APIError.
// The transport is created lazily on first use and again after Close.
type Session struct {
	baseURL string
	tokens  *TokenCache
	logger  *slog.Logger
	limiter *rate.Limiter

	mu         sync.Mutex
	httpClient *http.Client

	// sleepFunc waits between retries. Tests override it.
	sleepFunc SleepFunc
}

// NewSession creates a session against baseURL (DefaultBaseURL for the
// production service) authenticated by tokens.
func NewSession(baseURL string, tokens *TokenCache, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Session{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		tokens:    tokens,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestBurst),
		sleepFunc: Sleep,
	}
}

// SetRateLimit replaces the client-side pacing limiter. rps <= 0 disables
// pacing entirely.
func (s *Session) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		s.limiter = nil
		return
	}

	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Close releases the underlying transport. The session remains usable: the
// next request creates a fresh transport.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpClient != nil {
		s.httpClient.CloseIdleConnections()
		s.httpClient = nil
	}
}

// ensureClient returns the shared transport, creating it if the session is
// new or was closed.
func (s *Session) ensureClient() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: requestTimeout}
	}

	return s.httpClient
}

// Request sends one API request under the rate-limit retry policy. The path
// is appended to the session's base URL. Caller headers are merged in without
// overriding an explicit Content-Type; when none is given, Content-Type
// defaults to application/json. Non-2xx responses come back as *APIError.
// The caller is responsible for closing the response body on success.
func (s *Session) Request(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	return s.request(ctx, method, path, body, header, RateLimitPolicy())
}

// RequestWith behaves like Request with extra retry policies layered in
// front of the rate-limit policy. The refresh orchestrator uses it to wrap
// submissions with the conflict policy.
func (s *Session) RequestWith(ctx context.Context, method, path string, body []byte, header http.Header, extra ...Policy) (*http.Response, error) {
	policies := append(append([]Policy{}, extra...), RateLimitPolicy())

	return s.request(ctx, method, path, body, header, policies...)
}

func (s *Session) request(ctx context.Context, method, path string, body []byte, header http.Header, policies ...Policy) (*http.Response, error) {
	var resp *http.Response

	err := Do(ctx, s.logger, s.sleepFunc, func(ctx context.Context) error {
		r, attemptErr := s.doOnce(ctx, method, path, body, header)
		if attemptErr != nil {
			return attemptErr
		}

		resp = r

		return nil
	}, policies...)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// doOnce executes a single attempt: pace, authenticate, send, classify.
func (s *Session) doOnce(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("powerbi: request canceled: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("powerbi: creating request: %w", err)
	}

	auth, err := s.tokens.AuthorizationHeader(ctx)
	if err != nil {
		return nil, err
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	req.Header.Set("Authorization", auth)
	req.Header.Set("User-Agent", userAgent)

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	activityID := uuid.NewString()
	req.Header.Set("ActivityId", activityID)

	resp, err := s.ensureClient().Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()

		return nil, fmt.Errorf("powerbi: %s %s: %w", method, path, err)
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		s.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("activity_id", activityID),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("RequestId"),
		RetryAfter: resp.Header.Get("Retry-After"),
		Body:       string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// Get issues a GET request.
func (s *Session) Get(ctx context.Context, path string) (*http.Response, error) {
	return s.Request(ctx, http.MethodGet, path, nil, nil)
}

// Post issues a POST request with a JSON-encoded body. A nil body sends an
// empty request.
func (s *Session) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	encoded, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	return s.Request(ctx, http.MethodPost, path, encoded, nil)
}

// Patch issues a PATCH request with a JSON-encoded body.
func (s *Session) Patch(ctx context.Context, path string, body any) (*http.Response, error) {
	encoded, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	return s.Request(ctx, http.MethodPatch, path, encoded, nil)
}

// Delete issues a DELETE request.
func (s *Session) Delete(ctx context.Context, path string) (*http.Response, error) {
	return s.Request(ctx, http.MethodDelete, path, nil, nil)
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("powerbi: encoding request body: %w", err)
	}

	return encoded, nil
}

// getJSON fetches path and decodes the response into v.
func (s *Session) getJSON(ctx context.Context, path string, v any) error {
	resp, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("powerbi: decoding %s response: %w", path, err)
	}

	return nil
}

// valueEnvelope is the list-endpoint wrapper {"value": [...]} that every
// collection response arrives in.
type valueEnvelope[T any] struct {
	Value []T `json:"value"`
}

// listOf fetches a list endpoint and strips the value envelope.
func listOf[T any](ctx context.Context, s *Session, path string) ([]T, error) {
	var env valueEnvelope[T]
	if err := s.getJSON(ctx, path, &env); err != nil {
		return nil, err
	}

	return env.Value, nil
}
