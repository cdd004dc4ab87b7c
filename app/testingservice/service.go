// Package testingservice adapts the CI providers that run workflow tests to a
// single Service interface.
package testingservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lifemonitor/pkg/problem"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	TypeJenkins = "jenkins"
	TypeTravis  = "travis"
	TypeGithub  = "github"

	DefaultOutputLimit = 131072
	defaultTimeout     = 30 * time.Second
	defaultRetries     = 2
)

var errNotFound = errors.New("resource not found")

// Instance is the part of a test instance an adapter needs to locate a job.
type Instance struct {
	ID       string
	Name     string
	Resource string
}

// Credentials of a testing service; Secret is never serialized.
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"-"`
}

type Service interface {
	Type() string
	URL() string
	LastBuild(ctx context.Context, instance Instance) (*Build, error)
	LastPassedBuild(ctx context.Context, instance Instance) (*Build, error)
	LastFailedBuild(ctx context.Context, instance Instance) (*Build, error)
	// Builds returns at most limit builds, newest first.
	Builds(ctx context.Context, instance Instance, limit int) ([]*Build, error)
	Build(ctx context.Context, instance Instance, id string) (*Build, error)
	BuildOutput(ctx context.Context, instance Instance, id string, offset, limit int) (string, error)
}

// SinceLister is implemented by services able to filter builds by creation date.
type SinceLister interface {
	BuildsSince(ctx context.Context, instance Instance, since time.Time, limit int) ([]*Build, error)
}

// LastBuildPicker is implemented by services whose last build is not simply
// the newest one.
type LastBuildPicker interface {
	PickLastBuild(builds []*Build) *Build
}

// LastOf returns the build LastBuild of svc reports among builds, newest first.
func LastOf(svc Service, builds []*Build) *Build {
	if p, ok := svc.(LastBuildPicker); ok {
		return p.PickLastBuild(builds)
	}
	if len(builds) == 0 {
		return nil
	}
	return builds[0]
}

type Option func(*options)

type options struct {
	timeout time.Duration
	retries int
	client  *http.Client
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithHTTPClient sets the transport used by the adapter, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// New returns the adapter for kind.
func New(kind, url string, credentials *Credentials, opts ...Option) (Service, error) {
	o := &options{timeout: defaultTimeout, retries: defaultRetries}
	for _, opt := range opts {
		opt(o)
	}
	url = strings.TrimRight(url, "/")
	switch strings.ToLower(kind) {
	case TypeJenkins, "jenkins_testing_service":
		return newJenkins(url, credentials, o), nil
	case TypeTravis, "travis_testing_service":
		return newTravis(url, credentials, o), nil
	case TypeGithub, "github_testing_service":
		return newGithub(url, credentials, o), nil
	}
	return nil, problem.SpecificationNotSupported("testing service type %q is not supported", kind)
}

func newRestyClient(o *options) *resty.Client {
	var client *resty.Client
	if o.client != nil {
		client = resty.NewWithClient(o.client)
	} else {
		client = resty.New()
	}
	return client.
		SetTimeout(o.timeout).
		SetRetryCount(o.retries).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
}

// do runs req and maps transport errors and unexpected statuses.
// A 404 is reported as errNotFound so callers can tell a missing build apart.
func do(ctx context.Context, req *resty.Request, url string) (*resty.Response, error) {
	resp, err := req.SetContext(ctx).Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", url)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return resp, errNotFound
	case resp.StatusCode() >= 300:
		return resp, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status())
	}
	return resp, nil
}

func serviceError(s Service, cause error) error {
	return problem.TestingServiceException(cause, "%s service at %s", s.Type(), s.URL())
}

func buildNotFound(instance Instance, id string) error {
	e := problem.NotFound("TestBuild", id)
	e.Detail = fmt.Sprintf("build %s of instance %s not found", id, instance.Resource)
	return e
}

// sliceOutput returns limit bytes of output starting at offset; limit 0 means all.
func sliceOutput(output string, offset, limit int) (string, error) {
	if offset < 0 || offset > len(output) {
		return "", problem.Newf(problem.KindBadRequest, "invalid log offset %d", offset)
	}
	if limit < 0 {
		return "", problem.Newf(problem.KindBadRequest, "invalid log limit %d", limit)
	}
	end := len(output)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return output[offset:end], nil
}
