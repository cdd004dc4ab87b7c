// Package handles serves the HTTP surface of LifeMonitor: the GitHub webhook,
// the notification socket, the health probe, metrics and workflow status.
package handles

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	"lifemonitor/app/github"
	"lifemonitor/app/metrics"
	"lifemonitor/app/notification"
	"lifemonitor/app/peers"
	"lifemonitor/app/status"
	"lifemonitor/pkg/contextx"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const (
	RequestIDHeader = "X-Request-Id"
	UserHeader      = "X-Lifemonitor-User"

	healthMaxAge = 3 * time.Minute
)

// JobRunner enqueues deferred jobs.
type JobRunner interface {
	RunJob(ctx context.Context, name string, args ...interface{}) (string, error)
}

// InstanceResolver names the LifeMonitor instance an event belongs to.
type InstanceResolver interface {
	InstanceFor(ctx *contextx.Context, event *github.Event) (string, error)
}

type Relay interface {
	Known(name string) bool
	Forward(ctx context.Context, instance string, header http.Header, body []byte) (*peers.Response, error)
}

type Handles struct {
	github   config.GithubConfig
	instance string
	jobs     JobRunner
	cache    *cache.Cache
	resolver InstanceResolver
	relay    Relay
	hub      *notification.Hub
	lookup   status.Lookup
}

type Option func(*Handles)

func WithResolver(r InstanceResolver) Option {
	return func(h *Handles) { h.resolver = r }
}

func WithRelay(r Relay) Option {
	return func(h *Handles) { h.relay = r }
}

func WithHub(hub *notification.Hub) Option {
	return func(h *Handles) { h.hub = hub }
}

func WithStatusLookup(lookup status.Lookup) Option {
	return func(h *Handles) { h.lookup = lookup }
}

func New(githubCfg config.GithubConfig, instance string, jobs JobRunner, c *cache.Cache, opts ...Option) *Handles {
	h := &Handles{github: githubCfg, instance: instance, jobs: jobs, cache: c}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handles) Router() *httprouter.Router {
	router := httprouter.New()
	router.POST("/integrations/github", h.GithubWebhook)
	router.GET("/ws", h.Socket)
	router.GET("/health", h.Health)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler())
	router.GET("/workflows/:uuid/versions/:version/status", h.VersionStatus)
	return router
}

// requestContext carries the caller's request id, or a fresh one, and
// echoes it on the response.
func requestContext(w http.ResponseWriter, r *http.Request) *contextx.Context {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = fmt.Sprintf("lm-req-%s", uuid.NewString())
	}
	ctx := contextx.From(r.Context())
	ctx.Set(contextx.RequestIDKey, requestID)
	w.Header().Set(RequestIDHeader, requestID)
	return ctx
}
