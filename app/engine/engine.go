// Package engine turns normalized GitHub events into changes of the workflow
// model: versions are registered, updated and deleted, builds are refreshed,
// and the issues and wizards helping users fix their repositories are driven.
package engine

import (
	"context"
	"strconv"

	"lifemonitor/app/cache"
	"lifemonitor/app/github"
	"lifemonitor/app/objects"
	"lifemonitor/app/registry"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"

	"github.com/pkg/errors"
)

// GithubClient is the part of the GitHub client the engine needs. *github.Client implements it.
type GithubClient interface {
	Repository(ctx context.Context, fullName string) (*github.Repository, error)
	InstallationRepositories(ctx context.Context) ([]github.Repository, error)
	Archive(ctx context.Context, fullName, ref string) ([]byte, error)
	Issues(ctx context.Context, fullName, state, creator string) ([]github.Issue, error)
	CreateIssue(ctx context.Context, fullName, title, body string, labels []string) (*github.Issue, error)
	Comments(ctx context.Context, fullName string, number int) ([]github.Comment, error)
	CreateComment(ctx context.Context, fullName string, number int, body string) (*github.Comment, error)
	React(ctx context.Context, fullName string, commentID int64, content string) error
	BranchSHA(ctx context.Context, fullName, branch string) (string, error)
	CreateBranch(ctx context.Context, fullName, branch, sha string) error
	DeleteBranch(ctx context.Context, fullName, branch string) (bool, error)
	PutFile(ctx context.Context, fullName, branch, path string, content []byte, message string) error
	PullRequest(ctx context.Context, fullName, owner, branch string) (*github.PullRequest, error)
	CreatePullRequest(ctx context.Context, fullName, title, head, base, body string) (*github.PullRequest, error)
}

// ClientFactory returns the client acting for an installation.
type ClientFactory func(installation int64) GithubClient

// AppClients adapts a GitHub App to a ClientFactory.
func AppClients(app *github.App) ClientFactory {
	return func(installation int64) GithubClient { return app.Client(installation) }
}

// Registries resolves registry clients by name. registry.Set implements it.
type Registries interface {
	Client(name string) (registry.Client, error)
}

// Refresher synchronizes the builds of a test instance. builds.Synchronizer implements it.
type Refresher interface {
	Refresh(ctx *contextx.Context, instance *objects.TestInstance) error
}

// Notifier delivers a stored notification to the sessions of its users.
type Notifier interface {
	Notify(ctx context.Context, n *objects.Notification, userIDs []string) error
}

// Archiver keeps a copy of registered crates and returns its location.
type Archiver interface {
	StoreCrate(ctx context.Context, workflowUUID, version string, data []byte) (string, error)
}

// TokenProvider returns a valid access token of a user on a provider, empty when the user has none.
type TokenProvider interface {
	Token(ctx *contextx.Context, userID, provider string) (string, error)
}

type handlerFunc func(ctx *contextx.Context, e *github.Event) error

type Engine struct {
	clients    ClientFactory
	cache      *cache.Cache
	bot        string
	instance   string
	registries Registries
	refresher  Refresher
	notifier   Notifier
	archiver   Archiver
	tokens     TokenProvider
	handlers   map[string]handlerFunc
}

type Option func(*Engine)

func WithBot(bot string) Option {
	return func(e *Engine) { e.bot = bot }
}

// WithInstance names this LifeMonitor instance; refs configured for another
// instance are left to it.
func WithInstance(name string) Option {
	return func(e *Engine) { e.instance = name }
}

func WithRegistries(r Registries) Option {
	return func(e *Engine) { e.registries = r }
}

func WithRefresher(r Refresher) Option {
	return func(e *Engine) { e.refresher = r }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

func WithTokens(t TokenProvider) Option {
	return func(e *Engine) { e.tokens = t }
}

func New(clients ClientFactory, c *cache.Cache, opts ...Option) *Engine {
	e := &Engine{clients: clients, cache: c, bot: "lifemonitor[bot]"}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[string]handlerFunc{
		github.EventPing:                     e.onPing,
		github.EventPush:                     e.onPush,
		github.EventCreate:                   e.onCreate,
		github.EventDelete:                   e.onDelete,
		github.EventInstallation:             e.onInstallation,
		github.EventInstallationRepositories: e.onInstallationRepositories,
		github.EventWorkflowRun:              e.onWorkflowRun,
		github.EventWorkflowJob:              e.onWorkflowRun,
		github.EventIssues:                   e.onIssues,
		github.EventIssueComment:             e.onIssueComment,
		github.EventPullRequest:              e.onPullRequest,
	}
	return e
}

func (e *Engine) Bot() string { return e.bot }

// Handle processes an event. Failures are logged and the event is considered handled.
func (e *Engine) Handle(ctx *contextx.Context, event *github.Event) {
	if err := e.handle(ctx, event); err != nil {
		log.Errorf(ctx, "Error handling %s event %s: %+v", event.Type, event.ID, err)
	}
}

func (e *Engine) handle(ctx *contextx.Context, event *github.Event) error {
	handler, ok := e.handlers[event.Type]
	if !ok {
		log.Debugf(ctx, "Ignoring unsupported event %s", event.Type)
		return nil
	}
	log.Infof(ctx, "Handling %s event %s (action=%q, repository=%q, ref=%q)",
		event.Type, event.ID, event.Action, event.FullName(), event.Ref)
	return handler(ctx, event)
}

func (e *Engine) client(event *github.Event) (GithubClient, error) {
	id := event.InstallationID()
	if id == 0 {
		return nil, errors.Errorf("%s event %s carries no installation", event.Type, event.ID)
	}
	return e.clients(id), nil
}

func (e *Engine) onPing(ctx *contextx.Context, event *github.Event) error {
	log.Infof(ctx, "Ping received from installation %d", event.InstallationID())
	return nil
}

func installationKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseInstallationKey(key string) (int64, error) {
	return strconv.ParseInt(key, 10, 64)
}

// onWorkflowRun refreshes the builds of the instances monitoring the workflow
// of a run. Job events carry no workflow path and refresh every workflow of the repository.
func (e *Engine) onWorkflowRun(ctx *contextx.Context, event *github.Event) error {
	if e.refresher == nil || event.Repository == nil {
		return nil
	}
	var instances []*objects.TestInstance
	var err error
	if resource := event.WorkflowResource(); resource != "" {
		instances, err = objects.QueryTestInstancesByResource(ctx, resource)
	} else {
		instances, err = objects.QueryTestInstancesByResourcePrefix(ctx, "repos/"+event.FullName()+"/actions/workflows/")
	}
	if err != nil {
		return err
	}
	log.Debugf(ctx, "Refreshing %d instances after %s event", len(instances), event.Type)
	var failed error
	for _, i := range instances {
		if err := e.refresher.Refresh(ctx, i); err != nil {
			log.Warnf(ctx, "Unable to refresh builds of instance %s: %v", i.ID, err)
			failed = err
		}
	}
	return failed
}
