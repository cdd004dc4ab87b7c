// Package registry talks to the workflow registries LifeMonitor cross-registers
// workflow versions on.
package registry

import (
	"context"
	"net/http"
	"sort"
	"time"

	"lifemonitor/app/config"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/problem"
)

const (
	TypeSeek = "seek"

	defaultTimeout = 60 * time.Second
)

// Submitter is the user a registry operation is performed for.
type Submitter struct {
	UserID   string
	Username string
	// Token is the access token of the user on the registry; when empty the
	// registry client credentials are used.
	Token string
	// ProjectID is the registry project new workflows are shared with.
	ProjectID string
}

// Workflow as a registry describes it.
type Workflow struct {
	ID          string
	Name        string
	UUID        string
	Version     string
	Versions    []string
	SubmitterID string
}

type Client interface {
	Name() string
	Type() string
	GetWorkflows(ctx context.Context, submitter *Submitter) ([]Workflow, error)
	GetWorkflow(ctx context.Context, submitter *Submitter, id string) (*Workflow, error)
	// RegisterWorkflowVersion uploads a zipped crate. An empty externalID
	// creates a new workflow, otherwise a new version of that workflow; the
	// identifier of the registry workflow is returned.
	RegisterWorkflowVersion(ctx context.Context, submitter *Submitter, crate []byte, externalID string) (string, error)
	DeleteWorkflow(ctx context.Context, submitter *Submitter, externalID string) error
	BuildROLink(w Workflow) string
	// FilterByUser keeps the workflows the submitter can see on the registry.
	FilterByUser(ctx context.Context, submitter *Submitter, workflows []Workflow) ([]Workflow, error)
}

type options struct {
	client  *http.Client
	timeout time.Duration
}

type Option func(*options)

// WithHTTPClient sets the transport used for both the API and the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New builds the client of a configured registry.
func New(cfg config.RegistryConfig, opts ...Option) (Client, error) {
	o := &options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	switch cfg.Type {
	case TypeSeek, "seek_registry":
		return newSeek(cfg, o), nil
	}
	return nil, problem.Newf(problem.KindRegistryNotSupported, "registry type %q of %s is not supported", cfg.Type, cfg.Name)
}

// Set holds the clients of the enabled registries by name.
type Set map[string]Client

// NewSet builds a client for every enabled registry; unsupported ones are logged and skipped.
func NewSet(cfgs map[string]config.RegistryConfig, opts ...Option) Set {
	set := Set{}
	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		c, err := New(cfg, opts...)
		if err != nil {
			log.Warnf(nil, "Skipping registry %s: %v", name, err)
			continue
		}
		set[name] = c
	}
	return set
}

// Client returns the registry named name.
func (s Set) Client(name string) (Client, error) {
	if c, ok := s[name]; ok {
		return c, nil
	}
	return nil, problem.NotFound("registry", name)
}

func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
