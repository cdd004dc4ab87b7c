package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"testing"
	"testing/fstest"

	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	"lifemonitor/app/crate"
	"lifemonitor/app/db"
	"lifemonitor/app/github"
	"lifemonitor/app/issues"
	"lifemonitor/app/objects"
	"lifemonitor/app/registry"
	"lifemonitor/app/repository"
	"lifemonitor/pkg/contextx"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDBPath   = "/tmp/lifemonitor-engine-test.db"
	testBot      = "lifemonitor-test[bot]"
	testRegistry = "wfhub"
)

const trackedConfig = `name: Sorting workflow
public: true
issues:
  check: false
push:
  branches:
    - name: main
      update_registries: [wfhub]
  tags:
    - name: "v*"
`

var setupOnce sync.Once

func setupDB(t *testing.T) *contextx.Context {
	setupOnce.Do(func() {
		_ = os.Remove(testDBPath)
		require.NoError(t, db.Init(&db.Config{Connection: "sqlite://" + testDBPath}))
		require.NoError(t, db.Migrate())
	})
	ctx := contextx.NewContext()
	require.NoError(t, objects.SyncRegistries(ctx, map[string]config.RegistryConfig{
		testRegistry: {Name: testRegistry, Type: registry.TypeSeek, URI: "https://wfhub.example.org", Enabled: true},
	}))
	return ctx
}

type fakeGithub struct {
	mu       sync.Mutex
	trees    map[string]fstest.MapFS
	repos    map[string]*github.Repository
	issues   []github.Issue
	comments map[int][]github.Comment
	branches map[string]string
	files    map[string][]byte
	pulls    []*github.PullRequest
	deleted  []string
	archived int
}

func newFakeGithub() *fakeGithub {
	return &fakeGithub{
		trees:    map[string]fstest.MapFS{},
		repos:    map[string]*github.Repository{},
		comments: map[int][]github.Comment{},
		branches: map[string]string{},
		files:    map[string][]byte{},
	}
}

func (f *fakeGithub) setTree(fullName, ref string, tree fstest.MapFS) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trees[fullName+"@"+ref] = tree
}

func (f *fakeGithub) Repository(_ context.Context, fullName string) (*github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[fullName]
	if !ok {
		return nil, errors.Errorf("repository %s not found", fullName)
	}
	copied := *r
	return &copied, nil
}

func (f *fakeGithub) InstallationRepositories(context.Context) ([]github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []github.Repository
	for _, r := range f.repos {
		result = append(result, *r)
	}
	return result, nil
}

func (f *fakeGithub) Archive(_ context.Context, fullName, ref string) ([]byte, error) {
	f.mu.Lock()
	tree, ok := f.trees[fullName+"@"+ref]
	f.archived++
	f.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("no archive of %s@%s", fullName, ref)
	}
	return crate.Zip(tree)
}

func (f *fakeGithub) Issues(_ context.Context, _, state, creator string) ([]github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []github.Issue
	for _, i := range f.issues {
		if (state == "" || i.State == state) && (creator == "" || i.User.Login == creator) {
			result = append(result, i)
		}
	}
	return result, nil
}

func (f *fakeGithub) CreateIssue(_ context.Context, _, title, body string, _ []string) (*github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := github.Issue{Number: len(f.issues) + 1, Title: title, Body: body, State: "open", User: github.Account{Login: testBot}}
	f.issues = append(f.issues, i)
	return &i, nil
}

func (f *fakeGithub) Comments(_ context.Context, _ string, number int) ([]github.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.Comment{}, f.comments[number]...), nil
}

func (f *fakeGithub) CreateComment(_ context.Context, _ string, number int, body string) (*github.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := github.Comment{ID: int64(len(f.comments[number]) + 1), Body: body, User: github.Account{Login: testBot}}
	f.comments[number] = append(f.comments[number], c)
	return &c, nil
}

func (f *fakeGithub) React(context.Context, string, int64, string) error {
	return nil
}

func (f *fakeGithub) BranchSHA(_ context.Context, _, branch string) (string, error) {
	return "sha-" + branch, nil
}

func (f *fakeGithub) CreateBranch(_ context.Context, _, branch, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches[branch] = sha
	return nil
}

func (f *fakeGithub) DeleteBranch(_ context.Context, _, branch string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, branch)
	if _, ok := f.branches[branch]; !ok {
		return false, nil
	}
	delete(f.branches, branch)
	return true, nil
}

func (f *fakeGithub) PutFile(_ context.Context, _, branch, path string, content []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[branch+":"+path] = content
	return nil
}

func (f *fakeGithub) PullRequest(_ context.Context, _, _, branch string) (*github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pr := range f.pulls {
		if pr.Head.Ref == branch && pr.State == "open" {
			return pr, nil
		}
	}
	return nil, nil
}

func (f *fakeGithub) CreatePullRequest(_ context.Context, fullName, title, head, base, _ string) (*github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := &github.PullRequest{Number: len(f.pulls) + 1, Title: title, State: "open"}
	pr.Head.Ref = head
	pr.Base.Ref = base
	pr.HTMLURL = fmt.Sprintf("https://github.com/%s/pull/%d", fullName, pr.Number)
	f.pulls = append(f.pulls, pr)
	return pr, nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	uploads []string
	deleted []string
	next    int
}

func (r *fakeRegistry) Name() string { return testRegistry }
func (r *fakeRegistry) Type() string { return registry.TypeSeek }

func (r *fakeRegistry) GetWorkflows(context.Context, *registry.Submitter) ([]registry.Workflow, error) {
	return nil, nil
}

func (r *fakeRegistry) GetWorkflow(_ context.Context, _ *registry.Submitter, id string) (*registry.Workflow, error) {
	return &registry.Workflow{ID: id}, nil
}

func (r *fakeRegistry) RegisterWorkflowVersion(_ context.Context, _ *registry.Submitter, payload []byte, externalID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(payload) == 0 {
		return "", errors.New("empty crate")
	}
	r.uploads = append(r.uploads, externalID)
	if externalID != "" {
		return externalID, nil
	}
	r.next++
	return "ext-" + strconv.Itoa(r.next), nil
}

func (r *fakeRegistry) DeleteWorkflow(_ context.Context, _ *registry.Submitter, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, externalID)
	return nil
}

func (r *fakeRegistry) BuildROLink(w registry.Workflow) string {
	return "https://wfhub.example.org/workflows/" + w.ID
}

func (r *fakeRegistry) FilterByUser(_ context.Context, _ *registry.Submitter, workflows []registry.Workflow) ([]registry.Workflow, error) {
	return workflows, nil
}

type sentNotification struct {
	kind  string
	users []string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, notification *objects.Notification, users []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: notification.Type, users: users})
	return nil
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []string
	for _, s := range n.sent {
		result = append(result, s.kind)
	}
	return result
}

type fakeRefresher struct {
	mu        sync.Mutex
	refreshed []string
}

func (r *fakeRefresher) Refresh(_ *contextx.Context, instance *objects.TestInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed = append(r.refreshed, instance.ID)
	return nil
}

type testEnv struct {
	ctx          *contextx.Context
	engine       *Engine
	gh           *fakeGithub
	registry     *fakeRegistry
	notifier     *fakeNotifier
	refresher    *fakeRefresher
	user         *objects.User
	repo         github.Repository
	installation github.Installation
}

func newTestEnv(t *testing.T) *testEnv {
	ctx := setupDB(t)
	short := uuid.NewString()[:8]
	ownerID := int64(uuid.New().ID())

	user := objects.NewUser("user-" + short)
	require.NoError(t, user.Save(ctx))
	identity := objects.NewOAuthIdentity(user.ID, objects.ProviderGithub, strconv.FormatInt(ownerID, 10), "org-"+short)
	require.NoError(t, identity.Save(ctx))

	env := &testEnv{
		ctx:       ctx,
		gh:        newFakeGithub(),
		registry:  &fakeRegistry{},
		notifier:  &fakeNotifier{},
		refresher: &fakeRefresher{},
		user:      user,
		repo: github.Repository{
			ID:            ownerID + 1,
			Name:          "sort-and-change-case",
			FullName:      "org-" + short + "/sort-and-change-case",
			Owner:         github.Account{ID: ownerID, Login: "org-" + short},
			DefaultBranch: "main",
		},
		installation: github.Installation{ID: int64(uuid.New().ID()), Account: github.Account{ID: ownerID, Login: "org-" + short}},
	}
	repo := env.repo
	env.gh.repos[repo.FullName] = &repo
	env.engine = New(func(int64) GithubClient { return env.gh }, cache.New(cache.NewMemoryBackend()),
		WithBot(testBot),
		WithRegistries(registry.Set{testRegistry: env.registry}),
		WithNotifier(env.notifier),
		WithRefresher(env.refresher),
	)
	return env
}

// crateTree is a repository holding a crate with one suite running on GitHub Actions.
func crateTree(t *testing.T, fullName, config, suiteName string) fstest.MapFS {
	m := &crate.Manifest{
		RootName: "sort-and-change-case",
		MainWorkflow: crate.Workflow{
			ID:           "sort-and-change-case.ga",
			Name:         "sort-and-change-case",
			RelativePath: "sort-and-change-case.ga",
			Type:         "galaxy",
		},
		TestSuites: []crate.TestSuite{{
			ID:   "#test1",
			Name: suiteName,
			Instances: []crate.TestInstance{{
				ID:   "#test1_1",
				Name: "GitHub Actions",
				Service: crate.Service{
					Type:     "github",
					URL:      "https://api.github.com",
					Resource: "repos/" + fullName + "/actions/workflows/main.yml",
				},
			}},
		}},
	}
	metadata, err := m.Metadata()
	require.NoError(t, err)
	tree := fstest.MapFS{
		crate.MetadataFile:        {Data: metadata},
		"sort-and-change-case.ga": {Data: []byte(`{"a_galaxy_workflow": "true"}`)},
	}
	if config != "" {
		tree[repository.DefaultConfigFile] = &fstest.MapFile{Data: []byte(config)}
	}
	return tree
}

func (env *testEnv) event(kind, ref string) *github.Event {
	repo := env.repo
	installation := env.installation
	return &github.Event{
		ID:           uuid.NewString(),
		Type:         kind,
		Installation: &installation,
		Repository:   &repo,
		Sender:       &github.Account{Login: env.repo.Owner.Login},
		Ref:          ref,
		Before:       "aaaa",
		After:        "bbbb",
	}
}

func (env *testEnv) workflow(t *testing.T) *objects.Workflow {
	wf, err := objects.QueryWorkflowByID(env.ctx, objects.WorkflowUUIDFor(repositoryURL(env.repo.FullName)))
	require.NoError(t, err)
	return wf
}

func (env *testEnv) versions(t *testing.T) []*objects.WorkflowVersion {
	wf := env.workflow(t)
	if wf == nil {
		return nil
	}
	versions, err := wf.Versions(env.ctx)
	require.NoError(t, err)
	return versions
}

func TestPush_RegistersVersion(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))

	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))

	wf := env.workflow(t)
	require.NotNil(t, wf)
	asserter.Equal("Sorting workflow", wf.Name)
	asserter.Equal(env.user.ID, wf.SubmitterID)
	asserter.True(wf.Public)

	versions := env.versions(t)
	require.Len(t, versions, 1)
	v := versions[0]
	asserter.Equal("main", v.Version)
	asserter.Equal("bbbb", v.Revision)
	asserter.Equal(env.user.ID, v.SubmitterID)

	suites, err := v.Suites(env.ctx)
	require.NoError(t, err)
	if asserter.Len(suites, 1) {
		asserter.Equal("planemo tests", suites[0].Name)
		instances, err := suites[0].Instances(env.ctx)
		require.NoError(t, err)
		if asserter.Len(instances, 1) {
			asserter.Equal("repos/"+env.repo.FullName+"/actions/workflows/main.yml", instances[0].Resource)
		}
	}

	if asserter.Len(env.notifier.sent, 1) {
		asserter.Equal(objects.NotificationVersionCreated, env.notifier.sent[0].kind)
		asserter.Equal([]string{env.user.ID}, env.notifier.sent[0].users)
	}

	asserter.Equal([]string{""}, env.registry.uploads)
	row, err := objects.QueryRegistryByName(env.ctx, testRegistry)
	require.NoError(t, err)
	registration, err := objects.QueryRegistration(env.ctx, v.ID, row.ID)
	require.NoError(t, err)
	if asserter.NotNil(registration) {
		asserter.Equal("ext-1", registration.ExternalID)
	}

	installation, err := objects.QueryGithubRegistryByInstallation(env.ctx, installationKey(env.installation.ID))
	require.NoError(t, err)
	require.NotNil(t, installation)
	links, err := installation.RepositoryVersions(env.ctx, env.repo.FullName)
	require.NoError(t, err)
	if asserter.Len(links, 1) {
		asserter.Equal("main", links[0].RepoRef)
		asserter.Equal(v.ID, links[0].WorkflowVersionID)
	}
}

func TestPush_Idempotent(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))

	event := env.event(github.EventPush, "refs/heads/main")
	require.NoError(t, env.engine.handle(env.ctx, event))
	first := env.versions(t)
	require.Len(t, first, 1)

	reg, err := env.engine.registerOrUpdate(env.ctx, env.gh, targetOf(event))
	require.NoError(t, err)
	require.NotNil(t, reg)
	asserter.Equal(unchanged, reg.outcome)

	second := env.versions(t)
	if asserter.Len(second, 1) {
		asserter.Equal(first[0].ID, second[0].ID)
		asserter.Equal(first[0].ManifestHash, second[0].ManifestHash)
	}
	suites, err := second[0].Suites(env.ctx)
	require.NoError(t, err)
	asserter.Len(suites, 1)
	asserter.Equal([]string{objects.NotificationVersionCreated}, env.notifier.kinds())
	asserter.Len(env.registry.uploads, 1)
}

func TestPush_UpdatesChangedManifest(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))
	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))
	before := env.versions(t)
	require.Len(t, before, 1)

	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "renamed tests"))
	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))

	after := env.versions(t)
	require.Len(t, after, 1)
	asserter.Equal(before[0].ID, after[0].ID)
	asserter.NotEqual(before[0].ManifestHash, after[0].ManifestHash)

	suites, err := after[0].Suites(env.ctx)
	require.NoError(t, err)
	if asserter.Len(suites, 1) {
		asserter.Equal("renamed tests", suites[0].Name)
	}
	asserter.Equal([]string{objects.NotificationVersionCreated, objects.NotificationVersionUpdated}, env.notifier.kinds())
	// the second upload is a new version of the registry workflow
	asserter.Equal([]string{"", "ext-1"}, env.registry.uploads)
}

func TestPush_ConcurrentSameRef(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.engine.handle(contextx.NewContext(), env.event(github.EventPush, "refs/heads/main"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		asserter.NoError(err)
	}
	asserter.Len(env.versions(t), 1)
	asserter.Equal([]string{objects.NotificationVersionCreated}, env.notifier.kinds())
}

func TestDelete_RemovesVersion(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))
	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))
	require.NotNil(t, env.workflow(t))

	del := env.event(github.EventDelete, "main")
	del.RefType = "branch"
	require.NoError(t, env.engine.handle(env.ctx, del))

	asserter.Nil(env.workflow(t))
	asserter.Equal([]string{objects.NotificationVersionCreated, objects.NotificationVersionDeleted}, env.notifier.kinds())
	asserter.Equal([]string{env.user.ID}, env.notifier.sent[1].users)
	asserter.Equal([]string{"ext-1"}, env.registry.deleted)
}

func TestDelete_KeepsWorkflowWithOtherVersions(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	tree := crateTree(t, env.repo.FullName, trackedConfig, "planemo tests")
	env.gh.setTree(env.repo.FullName, "main", tree)
	env.gh.setTree(env.repo.FullName, "v1.0.0", tree)

	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))
	tag := env.event(github.EventCreate, "v1.0.0")
	tag.RefType = "tag"
	require.NoError(t, env.engine.handle(env.ctx, tag))
	require.Len(t, env.versions(t), 2)

	push := env.event(github.EventPush, "refs/heads/main")
	push.Deleted = true
	require.NoError(t, env.engine.handle(env.ctx, push))

	versions := env.versions(t)
	if asserter.Len(versions, 1) {
		asserter.Equal("v1.0.0", versions[0].Version)
	}
	// tags are not configured for registries, so main was the only registered version
	asserter.Equal([]string{"ext-1"}, env.registry.deleted)
}

func TestDeleteThenCreate(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))

	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))
	first := env.versions(t)
	require.Len(t, first, 1)

	del := env.event(github.EventDelete, "main")
	del.RefType = "branch"
	require.NoError(t, env.engine.handle(env.ctx, del))
	create := env.event(github.EventCreate, "main")
	create.RefType = "branch"
	require.NoError(t, env.engine.handle(env.ctx, create))

	wf := env.workflow(t)
	require.NotNil(t, wf)
	asserter.Equal("Sorting workflow", wf.Name)
	second := env.versions(t)
	if asserter.Len(second, 1) {
		asserter.Equal("main", second[0].Version)
		asserter.Equal(first[0].ManifestHash, second[0].ManifestHash)
		suites, err := second[0].Suites(env.ctx)
		require.NoError(t, err)
		asserter.Len(suites, 1)
	}
}

func TestPush_Skipped(t *testing.T) {
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "feature", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))

	t.Run("untracked branch", func(t *testing.T) {
		assert.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/feature")))
		assert.Nil(t, env.workflow(t))
	})

	t.Run("bot branch", func(t *testing.T) {
		archived := env.gh.archived
		assert.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/"+github.IssueBranchPrefix+"-abc")))
		assert.Equal(t, archived, env.gh.archived)
	})

	t.Run("unknown owner", func(t *testing.T) {
		event := env.event(github.EventPush, "refs/heads/feature")
		event.Repository.Owner.ID = -1
		assert.NoError(t, env.engine.handle(env.ctx, event))
		assert.Nil(t, env.workflow(t))
	})

	t.Run("foreign instance", func(t *testing.T) {
		cfg := "push:\n  branches:\n    - name: feature\n      lifemonitor_instance: staging\n"
		env.gh.setTree(env.repo.FullName, "feature", crateTree(t, env.repo.FullName, cfg, "planemo tests"))
		assert.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/feature")))
		assert.Nil(t, env.workflow(t))
	})
}

func TestPush_ProposesMissingConfig(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, "", "planemo tests"))

	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))

	// without a configuration file the user settings track every branch
	asserter.Len(env.versions(t), 1)

	branch := issues.ByKey(issues.KeyMissingLMConfigFile).ID()
	if asserter.Len(env.gh.pulls, 1) {
		asserter.Equal(branch, env.gh.pulls[0].Head.Ref)
		asserter.Equal("main", env.gh.pulls[0].Base.Ref)
		asserter.Equal("Missing LifeMonitor configuration file", env.gh.pulls[0].Title)
	}
	asserter.Equal("sha-main", env.gh.branches[branch])
	proposed, ok := env.gh.files[branch+":"+repository.DefaultConfigFile]
	if asserter.True(ok) {
		cfg, err := repository.ParseConfig(proposed)
		if asserter.NoError(err) {
			asserter.Equal([]string{"main"}, cfg.Branches())
		}
	}
	asserter.Empty(env.gh.issues)

	// a second push updates the open pull request instead of opening another one
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, "", "renamed tests"))
	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))
	asserter.Len(env.gh.pulls, 1)
}

func TestPush_InvalidConfigOpensIssue(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, "push: [", "planemo tests"))

	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))

	asserter.Nil(env.workflow(t))
	if asserter.Len(env.gh.issues, 1) {
		asserter.Equal("LifeMonitor configuration file not valid", env.gh.issues[0].Title)
	}

	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))
	asserter.Len(env.gh.issues, 1)
}

func TestWorkflowRun_RefreshesInstances(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))
	require.NoError(t, env.engine.handle(env.ctx, env.event(github.EventPush, "refs/heads/main")))

	run := env.event(github.EventWorkflowRun, "")
	run.Action = "completed"
	run.WorkflowRun = &github.WorkflowRun{ID: 7, Path: ".github/workflows/main.yml"}
	require.NoError(t, env.engine.handle(env.ctx, run))
	asserter.Len(env.refresher.refreshed, 1)

	other := env.event(github.EventWorkflowRun, "")
	other.WorkflowRun = &github.WorkflowRun{ID: 8, Path: ".github/workflows/lint.yml"}
	require.NoError(t, env.engine.handle(env.ctx, other))
	asserter.Len(env.refresher.refreshed, 1)

	job := env.event(github.EventWorkflowJob, "")
	job.WorkflowJob = &github.WorkflowJob{ID: 3, RunID: 7}
	require.NoError(t, env.engine.handle(env.ctx, job))
	asserter.Len(env.refresher.refreshed, 2)
}

func TestPullRequestClosed_DeletesSupportBranch(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	branch := github.IssueBranchPrefix + "-0123"
	env.gh.branches[branch] = "sha"

	event := env.event(github.EventPullRequest, "")
	event.Action = "closed"
	event.PullRequest = &github.PullRequest{Number: 4}
	event.PullRequest.Head.Ref = branch
	require.NoError(t, env.engine.handle(env.ctx, event))
	asserter.Equal([]string{branch}, env.gh.deleted)
	asserter.NotContains(env.gh.branches, branch)

	// merged and foreign pull requests are left alone
	event.PullRequest.Merged = true
	require.NoError(t, env.engine.handle(env.ctx, event))
	event.PullRequest.Merged = false
	event.PullRequest.Head.Ref = "feature"
	require.NoError(t, env.engine.handle(env.ctx, event))
	asserter.Len(env.gh.deleted, 1)
}

func TestIssueClosed_DeletesIssueBranch(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	issue := issues.ByKey(issues.KeyMissingLMConfigFile)
	env.gh.branches[issue.ID()] = "sha"

	event := env.event(github.EventIssues, "")
	event.Action = "closed"
	event.Issue = &github.Issue{Number: 1, Title: issue.Name, User: github.Account{Login: testBot}}
	require.NoError(t, env.engine.handle(env.ctx, event))
	asserter.Contains(env.gh.deleted, issue.ID())
	asserter.NotContains(env.gh.branches, issue.ID())

	// issues of other users are ignored
	env.gh.deleted = nil
	event.Issue.User.Login = "octocat"
	require.NoError(t, env.engine.handle(env.ctx, event))
	asserter.Empty(env.gh.deleted)
}

func TestInstallation_Lifecycle(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))

	created := env.event(github.EventInstallation, "")
	created.Action = "created"
	created.Repository = nil
	created.Repositories = []github.Repository{{ID: env.repo.ID, Name: env.repo.Name, FullName: env.repo.FullName}}
	require.NoError(t, env.engine.handle(env.ctx, created))
	asserter.Len(env.versions(t), 1)

	removed := env.event(github.EventInstallationRepositories, "")
	removed.Action = "removed"
	removed.Repository = nil
	removed.RepositoriesRemoved = []github.Repository{{FullName: env.repo.FullName}}
	require.NoError(t, env.engine.handle(env.ctx, removed))
	asserter.Nil(env.workflow(t))

	added := env.event(github.EventInstallationRepositories, "")
	added.Action = "added"
	added.Repository = nil
	added.RepositoriesAdded = []github.Repository{{FullName: env.repo.FullName}}
	require.NoError(t, env.engine.handle(env.ctx, added))
	asserter.Len(env.versions(t), 1)

	// the App no longer reports the installation
	require.NoError(t, env.engine.CheckInstallations(env.ctx, nil))
	asserter.Nil(env.workflow(t))
	installation, err := objects.QueryGithubRegistryByInstallation(env.ctx, installationKey(env.installation.ID))
	require.NoError(t, err)
	asserter.Nil(installation)
}

func TestCheckInstallations_CreatesMissing(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)

	require.NoError(t, env.engine.CheckInstallations(env.ctx, []github.Installation{env.installation}))
	installation, err := objects.QueryGithubRegistryByInstallation(env.ctx, installationKey(env.installation.ID))
	require.NoError(t, err)
	if asserter.NotNil(installation) {
		asserter.Equal(env.installation.Account.Login, installation.AccountLogin)
	}

	stored, err := objects.ListGithubRegistries(env.ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(stored))
	for _, s := range stored {
		keys = append(keys, s.InstallationID)
	}
	sort.Strings(keys)
	asserter.Equal([]string{installationKey(env.installation.ID)}, keys)
}

func TestDecideRef(t *testing.T) {
	tree := func(config string) *repository.Repository {
		fsys := fstest.MapFS{"README.md": {Data: []byte("readme")}}
		if config != "" {
			fsys[repository.DefaultConfigFile] = &fstest.MapFile{Data: []byte(config)}
		}
		return repository.New(fsys)
	}
	restricted := &objects.GithubSettings{Branches: []string{"main", "release/*"}, Tags: []string{"v*.*.*"}, Registries: []string{testRegistry}}

	cases := []struct {
		name        string
		repo        *repository.Repository
		settings    *objects.GithubSettings
		branch, tag string
		tracked     bool
		registries  []string
		checkIssues bool
	}{
		{name: "config branch", repo: tree(trackedConfig), branch: "main", tracked: true, registries: []string{testRegistry}},
		{name: "config tag", repo: tree(trackedConfig), tag: "v2", tracked: true},
		{name: "config untracked", repo: tree(trackedConfig), branch: "develop"},
		{name: "config invalid", repo: tree("push: ["), branch: "main", checkIssues: true},
		{name: "defaults", repo: tree(""), branch: "anything", tracked: true, checkIssues: true},
		{name: "settings branch", repo: tree(""), settings: restricted, branch: "release/1.0", tracked: true, registries: []string{testRegistry}},
		{name: "settings tag", repo: tree(""), settings: restricted, tag: "v1.2.3", tracked: true, registries: []string{testRegistry}},
		{name: "settings untracked", repo: tree(""), settings: restricted, branch: "develop", registries: []string{testRegistry}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			asserter := assert.New(t)
			d := decideRef(c.repo, c.settings, c.branch, c.tag)
			asserter.Equal(c.tracked, d.Tracked)
			asserter.Equal(c.checkIssues, d.CheckIssues)
			if c.tracked {
				asserter.Equal(c.registries, d.Registries)
				asserter.Empty(d.Reason)
			} else {
				asserter.NotEmpty(d.Reason)
			}
		})
	}
}
