// Package github integrates LifeMonitor with GitHub as a GitHub App: webhook
// events, installation tokens and the repository operations used by the bots.
package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"lifemonitor/app/config"
	"lifemonitor/pkg/log"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

const (
	DefaultAPIURL   = "https://api.github.com"
	jwtLifetime     = 9 * time.Minute
	tokenRenewDelta = time.Minute
)

// App authenticates as the GitHub App and hands out installation clients.
type App struct {
	id      int64
	key     *rsa.PrivateKey
	baseURL string
	bot     string
	http    *http.Client
	tokens  *gocache.Cache
	now     func() time.Time
}

type AppOption func(*App)

func WithBaseURL(url string) AppOption {
	return func(a *App) { a.baseURL = url }
}

func WithBot(bot string) AppOption {
	return func(a *App) { a.bot = bot }
}

func WithHTTPClient(c *http.Client) AppOption {
	return func(a *App) { a.http = c }
}

func NewApp(id int64, key *rsa.PrivateKey, opts ...AppOption) *App {
	a := &App{
		id:      id,
		key:     key,
		baseURL: DefaultAPIURL,
		bot:     "lifemonitor[bot]",
		tokens:  gocache.New(time.Hour, 10*time.Minute),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewAppFromConfig loads the App private key from cfg.PrivateKeyPath.
func NewAppFromConfig(cfg config.GithubConfig) (*App, error) {
	if !cfg.Configured() {
		return nil, errors.New("github app integration not configured")
	}
	pem, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "read github app private key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, errors.Wrap(err, "parse github app private key")
	}
	return NewApp(cfg.AppID, key, WithBaseURL(cfg.APIURL), WithBot(cfg.Bot)), nil
}

func (a *App) ID() int64 { return a.id }

func (a *App) Bot() string { return a.bot }

func (a *App) restClient() *resty.Client {
	var c *resty.Client
	if a.http != nil {
		c = resty.NewWithClient(a.http)
	} else {
		c = resty.New()
	}
	return c.SetBaseURL(a.baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")
}

// JWT signs a short lived app token with RS256.
func (a *App) JWT() (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.id, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtLifetime)),
	})
	return token.SignedString(a.key)
}

type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InstallationToken returns a cached access token for installation, renewing it
// shortly before it expires.
func (a *App) InstallationToken(ctx context.Context, installation int64) (string, error) {
	key := strconv.FormatInt(installation, 10)
	if v, ok := a.tokens.Get(key); ok {
		return v.(string), nil
	}
	signed, err := a.JWT()
	if err != nil {
		return "", err
	}
	var tok installationToken
	resp, err := a.restClient().R().SetContext(ctx).
		SetAuthToken(signed).
		Post(fmt.Sprintf("/app/installations/%d/access_tokens", installation))
	if err != nil {
		return "", errors.Wrapf(err, "installation %d token", installation)
	}
	if resp.IsError() {
		return "", fmt.Errorf("installation %d token: unexpected status %s", installation, resp.Status())
	}
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", errors.Wrapf(err, "installation %d token", installation)
	}
	ttl := tok.ExpiresAt.Sub(a.now()) - tokenRenewDelta
	if ttl > 0 {
		a.tokens.Set(key, tok.Token, ttl)
	}
	log.Debugf(nil, "github: new token for installation %d", installation)
	return tok.Token, nil
}

// Installations lists the installations of the app.
func (a *App) Installations(ctx context.Context) ([]Installation, error) {
	signed, err := a.JWT()
	if err != nil {
		return nil, err
	}
	var result []Installation
	resp, err := a.restClient().R().SetContext(ctx).
		SetAuthToken(signed).
		SetQueryParam("per_page", "100").
		Get("/app/installations")
	if err != nil {
		return nil, errors.Wrap(err, "list installations")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list installations: unexpected status %s", resp.Status())
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, errors.Wrap(err, "list installations")
	}
	return result, nil
}

// Client returns the API client acting as installation.
func (a *App) Client(installation int64) *Client {
	rc := a.restClient()
	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		token, err := a.InstallationToken(r.Context(), installation)
		if err != nil {
			return err
		}
		r.SetAuthToken(token)
		return nil
	})
	return &Client{rest: rc, installation: installation, bot: a.bot}
}

// NewTokenClient returns a client authenticated with a personal or service token.
func NewTokenClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	rc := resty.New().SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/vnd.github+json").
		SetAuthToken(token)
	return &Client{rest: rc}
}
