package powerbi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationHeader_StaticToken(t *testing.T) {
	cache := NewTokenCache(StaticToken{Value: "abc123"}, testLogger())

	header, err := cache.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc123", header)
}

func TestAuthorizationHeader_ReusesUnexpiredToken(t *testing.T) {
	var exchanges atomic.Int32

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	cache := NewTokenCache(ServicePrincipal{}, testLogger())
	cache.now = func() time.Time { return now }
	cache.exchangeFunc = func(_ context.Context) (*token, error) {
		exchanges.Add(1)

		return &token{accessToken: "tok-1", issuedAt: now, ttl: 20 * time.Minute, scheme: "Bearer"}, nil
	}

	for range 5 {
		header, err := cache.AuthorizationHeader(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-1", header)
	}

	assert.Equal(t, int32(1), exchanges.Load())
}

func TestAuthorizationHeader_ReacquiresAfterExpiry(t *testing.T) {
	var exchanges atomic.Int32

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	cache := NewTokenCache(ServicePrincipal{}, testLogger())
	cache.now = func() time.Time { return now }
	cache.exchangeFunc = func(_ context.Context) (*token, error) {
		n := exchanges.Add(1)

		tok := "tok-1"
		if n > 1 {
			tok = "tok-2"
		}

		return &token{accessToken: tok, issuedAt: now, ttl: 20 * time.Minute, scheme: "Bearer"}, nil
	}

	header, err := cache.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", header)

	// Advance past issuedAt+ttl; the cached token is replaced wholesale.
	now = now.Add(21 * time.Minute)

	header, err = cache.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-2", header)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestAuthorizationHeader_SingleFlightUnderConcurrency(t *testing.T) {
	var exchanges atomic.Int32

	release := make(chan struct{})
	cache := NewTokenCache(ServicePrincipal{}, testLogger())
	cache.exchangeFunc = func(_ context.Context) (*token, error) {
		exchanges.Add(1)
		<-release

		return &token{accessToken: "tok", issuedAt: time.Now(), ttl: time.Hour, scheme: "Bearer"}, nil
	}

	const callers = 16

	var (
		started sync.WaitGroup
		done    sync.WaitGroup
	)

	started.Add(callers)
	done.Add(callers)

	for range callers {
		go func() {
			defer done.Done()

			started.Done()

			header, err := cache.AuthorizationHeader(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "Bearer tok", header)
		}()
	}

	// Let every caller reach the cache before the one exchange completes.
	started.Wait()
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), exchanges.Load())
}

func TestAuthorizationHeader_ExchangeFailure(t *testing.T) {
	cache := NewTokenCache(ServicePrincipal{}, testLogger())
	cache.exchangeFunc = func(_ context.Context) (*token, error) {
		return nil, &AuthError{Description: "invalid client secret"}
	}

	_, err := cache.AuthorizationHeader(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "invalid client secret")
}

func TestTokenExpiry(t *testing.T) {
	issued := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tok := &token{accessToken: "x", issuedAt: issued, ttl: 10 * time.Minute, scheme: "Bearer"}

	assert.False(t, tok.expired(issued.Add(9*time.Minute)))
	// Expiry is inclusive: now == issuedAt+ttl counts as expired.
	assert.True(t, tok.expired(issued.Add(10*time.Minute)))
	assert.True(t, tok.expired(issued.Add(11*time.Minute)))

	static := &token{accessToken: "x", issuedAt: issued, scheme: "Bearer"}
	assert.False(t, static.expired(issued.Add(1000*time.Hour)))
}
