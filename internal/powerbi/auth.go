package powerbi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"
)

// Scope requested during the client-credentials exchange.
const defaultScope = "https://analysis.windows.net/powerbi/api/.default"

// defaultTokenTTL is used when the token endpoint does not report an expiry.
const defaultTokenTTL = 20 * time.Minute

// Credential is a closed union of the two supported authentication methods:
// a confidential-client credential exchange (ServicePrincipal) or a
// pre-issued bearer token (StaticToken). The sealed method keeps the set
// closed so TokenCache can dispatch by type switch.
type Credential interface {
	sealedCredential()
}

// ServicePrincipal authenticates via the OAuth2 client-credentials flow
// against the tenant's Azure AD token endpoint.
type ServicePrincipal struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

func (ServicePrincipal) sealedCredential() {}

// StaticToken wraps a pre-issued bearer token. It carries no expiry; the
// cache returns it unchanged for the life of the process.
type StaticToken struct {
	Value string
}

func (StaticToken) sealedCredential() {}

// token is an issued bearer token. Immutable: re-acquisition replaces the
// whole value, never patches it.
type token struct {
	accessToken string
	issuedAt    time.Time
	ttl         time.Duration // <= 0 means the token never expires
	scheme      string
}

func (t *token) expired(now time.Time) bool {
	if t.ttl <= 0 {
		return false
	}

	return !now.Before(t.issuedAt.Add(t.ttl))
}

func (t *token) header() string {
	return t.scheme + " " + t.accessToken
}

// TokenCache holds the most recently issued token and re-acquires
// transparently when it expires. Concurrent callers observing an expired
// token agree on a single in-flight exchange via singleflight.
type TokenCache struct {
	cred   Credential
	logger *slog.Logger

	// now and exchangeFunc are swapped out by tests.
	now          func() time.Time
	exchangeFunc func(ctx context.Context) (*token, error)

	mu    sync.Mutex
	tok   *token
	group singleflight.Group
}

// NewTokenCache creates a cache over the given credential.
func NewTokenCache(cred Credential, logger *slog.Logger) *TokenCache {
	if logger == nil {
		logger = slog.Default()
	}

	c := &TokenCache{
		cred:   cred,
		logger: logger,
		now:    time.Now,
	}
	c.exchangeFunc = c.exchange

	return c
}

// AuthorizationHeader returns the current token formatted as
// "{scheme} {accessToken}", acquiring a new token only when none is cached
// or the cached one has expired. Fails with *AuthError when the credential
// exchange rejects.
func (c *TokenCache) AuthorizationHeader(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.tok
	c.mu.Unlock()

	if tok != nil && !tok.expired(c.now()) {
		return tok.header(), nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		// A caller that queued behind the winning flight sees the fresh
		// token here and skips a second exchange.
		c.mu.Lock()
		cached := c.tok
		c.mu.Unlock()

		if cached != nil && !cached.expired(c.now()) {
			return cached, nil
		}

		fresh, acquireErr := c.exchangeFunc(ctx)
		if acquireErr != nil {
			return nil, acquireErr
		}

		c.mu.Lock()
		c.tok = fresh
		c.mu.Unlock()

		c.logger.Debug("token acquired",
			slog.Time("issued_at", fresh.issuedAt),
			slog.Duration("ttl", fresh.ttl),
		)

		return fresh, nil
	})
	if err != nil {
		return "", err
	}

	return v.(*token).header(), nil
}

// exchange produces a token from the credential. Dispatch is a type switch
// over the closed Credential union.
func (c *TokenCache) exchange(ctx context.Context) (*token, error) {
	switch cred := c.cred.(type) {
	case StaticToken:
		return &token{
			accessToken: cred.Value,
			issuedAt:    c.now(),
			scheme:      "Bearer",
		}, nil
	case ServicePrincipal:
		return c.exchangeServicePrincipal(ctx, cred)
	default:
		return nil, &AuthError{Err: fmt.Errorf("unsupported credential type %T", c.cred)}
	}
}

// exchangeServicePrincipal runs the client-credentials flow against the
// tenant's token endpoint.
func (c *TokenCache) exchangeServicePrincipal(ctx context.Context, cred ServicePrincipal) (*token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		TokenURL:     microsoft.AzureADEndpoint(cred.TenantID).TokenURL,
		Scopes:       []string{defaultScope},
	}

	c.logger.Info("acquiring token via client credentials",
		slog.String("tenant_id", cred.TenantID),
		slog.String("client_id", cred.ClientID),
	)

	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, &AuthError{Description: oauthErrorDescription(err), Err: err}
	}

	if tok.AccessToken == "" {
		return nil, &AuthError{Description: "token endpoint returned no access token"}
	}

	tokenExchangesTotal.Inc()

	issued := c.now()
	ttl := defaultTokenTTL

	if !tok.Expiry.IsZero() {
		ttl = tok.Expiry.Sub(issued)
	}

	scheme := tok.TokenType
	if scheme == "" {
		scheme = "Bearer"
	}

	return &token{
		accessToken: tok.AccessToken,
		issuedAt:    issued,
		ttl:         ttl,
		scheme:      scheme,
	}, nil
}

// oauthErrorDescription pulls the error_description out of a token endpoint
// rejection, when the oauth2 library surfaced one.
func oauthErrorDescription(err error) string {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.ErrorDescription != "" {
			return rErr.ErrorDescription
		}

		if rErr.ErrorCode != "" {
			return rErr.ErrorCode
		}
	}

	return ""
}
