// Package auth keeps the OAuth2 tokens users granted LifeMonitor on external
// providers valid.
package auth

import (
	"context"
	"net/http"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	"lifemonitor/app/objects"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	defaultThreshold = 5 * time.Minute
	defaultLockHold  = 15 * time.Second
)

// Manager returns access tokens of user identities, refreshing them when they
// are about to expire.
type Manager struct {
	cache      *cache.Cache
	providers  map[string]*oauth2.Config
	threshold  time.Duration
	lockHold   time.Duration
	httpClient *http.Client
}

type Option func(*Manager)

// WithThreshold refreshes tokens expiring within d.
func WithThreshold(d time.Duration) Option {
	return func(m *Manager) { m.threshold = d }
}

// WithLockHold bounds how long a refresh may own the identity lock.
func WithLockHold(d time.Duration) Option {
	return func(m *Manager) { m.lockHold = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithProvider registers the OAuth2 client of a provider.
func WithProvider(name string, cfg *oauth2.Config) Option {
	return func(m *Manager) { m.providers[name] = cfg }
}

func NewManager(c *cache.Cache, opts ...Option) *Manager {
	m := &Manager{
		cache:     c,
		providers: map[string]*oauth2.Config{},
		threshold: defaultThreshold,
		lockHold:  defaultLockHold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerFromConfig registers every configured registry as a provider.
func NewManagerFromConfig(c *cache.Cache, registries map[string]config.RegistryConfig, opts ...Option) *Manager {
	for name, r := range registries {
		opts = append(opts, WithProvider(name, &oauth2.Config{
			ClientID:     r.ClientID,
			ClientSecret: r.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  r.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}))
	}
	return NewManager(c, opts...)
}

func lockName(identityID string) string {
	return "identity:" + identityID
}

// Token returns the default-scope access token of a user on provider. Users
// without an identity on the provider get an empty token.
func (m *Manager) Token(ctx *contextx.Context, userID, provider string) (string, error) {
	identity, err := objects.QueryIdentityByUser(ctx, userID, provider)
	if err != nil || identity == nil {
		return "", err
	}
	tok, err := identity.GetToken(objects.DefaultScopeKey)
	if err != nil || tok == nil {
		return "", err
	}
	if !tok.ToBeRefreshed(m.threshold) {
		return tok.AccessToken, nil
	}
	tok, err = m.refresh(ctx, identity.ID, provider)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// refresh renews the default token of an identity under its lock. The
// identity is read again once the lock is held: another worker may have
// refreshed it meanwhile.
func (m *Manager) refresh(ctx *contextx.Context, identityID, provider string) (*objects.Token, error) {
	lock, err := m.cache.LockFor(ctx, lockName(identityID), m.lockHold)
	if err != nil {
		return nil, errors.Wrapf(err, "lock identity %s", identityID)
	}
	defer lock.Release()

	identity, err := objects.QueryIdentityByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, errors.Errorf("identity %s vanished", identityID)
	}
	tokens, err := identity.GetTokens()
	if err != nil {
		return nil, err
	}
	scope := tokens.Default
	current := tokens.Get(scope)
	if current == nil {
		return nil, errors.Errorf("identity %s has no token", identityID)
	}
	if !current.ToBeRefreshed(m.threshold) {
		return current, nil
	}

	cfg, ok := m.providers[provider]
	if !ok {
		return nil, errors.Errorf("no OAuth2 client configured for provider %s", provider)
	}
	if current.RefreshToken == "" {
		return nil, errors.Errorf("token of identity %s expired and cannot be refreshed", identityID)
	}
	var base context.Context = ctx
	if m.httpClient != nil {
		base = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	fresh, err := cfg.TokenSource(base, &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}).Token()
	if err != nil {
		return nil, errors.Wrapf(err, "refresh token of identity %s on %s", identityID, provider)
	}
	log.Infof(ctx, "Refreshed token of identity %s on %s", identityID, provider)

	updated := &objects.Token{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.TokenType,
		Scope:        current.Scope,
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = current.RefreshToken
	}
	if !fresh.Expiry.IsZero() {
		updated.ExpiresAt = fresh.Expiry.Unix()
	}
	tokens.Set(scope, updated, false)
	if err = identity.SetTokens(tokens); err != nil {
		return nil, err
	}
	// Another worker owns the identity now; its save must not be overwritten.
	if err = lock.Held(ctx); err != nil {
		return nil, err
	}
	if err = identity.Save(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}
