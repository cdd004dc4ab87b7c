package engine

import (
	"fmt"
	"strconv"

	"lifemonitor/app/crate"
	"lifemonitor/app/github"
	"lifemonitor/app/objects"
	"lifemonitor/app/registry"
	"lifemonitor/app/repository"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"

	"github.com/pkg/errors"
)

type outcome int

const (
	unchanged outcome = iota
	created
	updated
)

func (o outcome) String() string {
	switch o {
	case created:
		return "created"
	case updated:
		return "updated"
	}
	return "unchanged"
}

// target is a ref of a repository of an installation.
type target struct {
	installation *github.Installation
	repository   *github.Repository
	branch       string
	tag          string
	rev          string
}

func targetOf(event *github.Event) target {
	return target{
		installation: event.Installation,
		repository:   event.Repository,
		branch:       event.Branch(),
		tag:          event.Tag(),
		rev:          event.Rev(),
	}
}

func (t target) ref() string {
	if t.branch != "" {
		return t.branch
	}
	return t.tag
}

func (t target) String() string {
	return t.repository.FullName + "@" + t.ref()
}

// registration is the result of a register-or-update.
type registration struct {
	outcome  outcome
	workflow *objects.Workflow
	version  *objects.WorkflowVersion
}

// repositoryURL identifies a repository independently of the payload carrying it.
func repositoryURL(fullName string) string {
	return "https://github.com/" + fullName
}

func lockName(fullName string) string {
	return "repo:" + fullName
}

// snapshot downloads the repository at ref.
func (e *Engine) snapshot(ctx *contextx.Context, client GithubClient, gh *github.Repository, ref, rev string) (*repository.Repository, error) {
	data, err := client.Archive(ctx, gh.FullName, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s@%s", gh.FullName, ref)
	}
	repo, err := repository.FromArchive(data)
	if err != nil {
		return nil, err
	}
	repo.FullName = gh.FullName
	repo.Owner = gh.Owner.Login
	repo.Ref = ref
	repo.Rev = rev
	repo.DefaultBranch = gh.DefaultBranch
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = ref
	}
	return repo, nil
}

// submitter resolves the user owning a repository through its GitHub identity.
func (e *Engine) submitter(ctx *contextx.Context, gh *github.Repository) (*objects.User, error) {
	identity, err := objects.QueryIdentityByProviderUserID(ctx, objects.ProviderGithub, strconv.FormatInt(gh.Owner.ID, 10))
	if err != nil || identity == nil {
		return nil, err
	}
	return identity.GetUser(ctx)
}

// registerOrUpdate stores the crate found at a tracked ref as a workflow
// version. The manifest hash makes it a compare-and-swap: registering the
// same content twice changes nothing.
func (e *Engine) registerOrUpdate(ctx *contextx.Context, client GithubClient, t target) (*registration, error) {
	if t.repository.DefaultBranch == "" {
		if info, err := client.Repository(ctx, t.repository.FullName); err == nil {
			t.repository = info
		} else {
			log.Warnf(ctx, "Unable to get the details of %s: %v", t.repository.FullName, err)
		}
	}
	user, err := e.submitter(ctx, t.repository)
	if err != nil {
		return nil, err
	}
	if user == nil {
		log.Warnf(ctx, "No LifeMonitor user is bound to the owner %s of %s", t.repository.Owner.Login, t.repository.FullName)
		return nil, nil
	}
	repo, err := e.snapshot(ctx, client, t.repository, t.ref(), t.rev)
	if err != nil {
		return nil, err
	}

	d := decideRef(repo, user.GithubSettings(), t.branch, t.tag)
	if !d.Tracked {
		log.Infof(ctx, "Skipping %s: %s", t, d.Reason)
		if d.ConfigErr != nil {
			e.remediate(ctx, client, repo, d)
		}
		return nil, nil
	}
	if d.Instance != "" && d.Instance != e.instance {
		log.Infof(ctx, "Skipping %s: configured for the LifeMonitor instance %s", t, d.Instance)
		return nil, nil
	}

	manifest, err := crate.ParseFS(repo.FS)
	if err != nil {
		log.Warnf(ctx, "No valid workflow RO-Crate in %s: %v", t, err)
		if d.CheckIssues {
			e.remediate(ctx, client, repo, d)
		}
		return nil, nil
	}
	metadata, err := crate.ReadMetadata(repo.FS)
	if err != nil {
		return nil, err
	}

	lock, err := e.cache.Lock(ctx, lockName(t.repository.FullName))
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", t.repository.FullName)
	}
	defer lock.Release()

	reg := &registration{}
	err = objects.Transaction(ctx, func(subCtx *contextx.Context) error {
		if err := e.store(subCtx, reg, t, user, repo, manifest, metadata, d); err != nil {
			return err
		}
		return lock.Held(subCtx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "register %s", t)
	}
	log.Infof(ctx, "Workflow %s version %s %s", reg.workflow.ID, reg.version.Version, reg.outcome)

	if reg.outcome != unchanged {
		payload, err := crate.Zip(repo.FS)
		if err != nil {
			log.Warnf(ctx, "Unable to pack the crate of %s: %v", t, err)
		} else {
			e.archive(ctx, reg, payload)
			e.updateRegistries(ctx, user, reg, d.Registries, payload)
		}
		if d.Notifications {
			kind := objects.NotificationVersionUpdated
			if reg.outcome == created {
				kind = objects.NotificationVersionCreated
			}
			e.notify(ctx, kind, reg.workflow, reg.version.Version, nil)
		}
	}
	if d.CheckIssues {
		e.remediate(ctx, client, repo, d)
	}
	return reg, nil
}

func workflowName(repo *repository.Repository, manifest *crate.Manifest, d refDecision, gh *github.Repository) string {
	switch {
	case d.Config != nil && d.Config.Name != "":
		return d.Config.Name
	case manifest.RootName != "":
		return manifest.RootName
	case gh.Name != "":
		return gh.Name
	}
	return repo.FullName
}

func (e *Engine) store(ctx *contextx.Context, reg *registration, t target, user *objects.User,
	repo *repository.Repository, manifest *crate.Manifest, metadata []byte, d refDecision) error {
	id := objects.WorkflowUUIDFor(repositoryURL(t.repository.FullName))
	wf, err := objects.QueryWorkflowByID(ctx, id)
	if err != nil {
		return err
	}
	name := workflowName(repo, manifest, d, t.repository)
	if wf == nil {
		wf = objects.NewWorkflow(id, name, user.ID)
		wf.Public = d.Public
		if err = wf.Save(ctx); err != nil {
			return err
		}
	} else if wf.Name != name || wf.Public != d.Public {
		wf.Name = name
		wf.Public = d.Public
		if err = wf.Save(ctx); err != nil {
			return err
		}
	}
	reg.workflow = wf

	v, err := wf.GetVersion(ctx, t.ref())
	if err != nil {
		return err
	}
	reg.outcome = unchanged
	if v == nil {
		v = objects.NewWorkflowVersion(wf.ID, t.ref())
		v.SubmitterID = user.ID
		reg.outcome = created
	}
	changed := v.SetManifest(metadata)
	if reg.outcome == unchanged && (changed || v.Public != d.Public) {
		reg.outcome = updated
	}
	v.Public = d.Public
	v.Revision = t.rev
	if v.URI == "" {
		v.URI = repositoryURL(t.repository.FullName) + "/tree/" + t.ref()
	}
	if err = v.Save(ctx); err != nil {
		return err
	}
	reg.version = v

	if changed {
		if err = v.DeleteSuites(ctx); err != nil {
			return err
		}
		if err = storeSuites(ctx, v, manifest); err != nil {
			return err
		}
	}

	installation, err := objects.GetOrCreateGithubRegistry(ctx, installationKey(t.installation.ID), t.installation.Account.Login)
	if err != nil {
		return err
	}
	if _, err = installation.LinkVersion(ctx, v.ID, t.repository.FullName, t.ref()); err != nil {
		return err
	}
	_, err = objects.Subscribe(ctx, user.ID, objects.ResourceWorkflow, wf.ID, objects.EventAll)
	return err
}

func storeSuites(ctx *contextx.Context, v *objects.WorkflowVersion, manifest *crate.Manifest) error {
	for _, s := range manifest.TestSuites {
		definition := map[string]interface{}{}
		if s.Definition != nil {
			definition["id"] = s.Definition.ID
			definition["engine"] = s.Definition.Engine
			definition["engine_version"] = s.Definition.EngineVersion
			definition["path"] = s.Definition.Path
		}
		suite := objects.NewTestSuite(v.ID, s.ID, s.Name, definition)
		if err := suite.Save(ctx); err != nil {
			return err
		}
		for _, i := range s.Instances {
			service, err := objects.GetOrCreateTestingService(ctx, i.Service.Type, i.Service.URL)
			if err != nil {
				return err
			}
			instance := objects.NewTestInstance(suite.ID, i.ID, i.Name, i.Service.Resource, service.ID, i.Parameters)
			if err = instance.Save(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) archive(ctx *contextx.Context, reg *registration, payload []byte) {
	if e.archiver == nil {
		return
	}
	uri, err := e.archiver.StoreCrate(ctx, reg.workflow.ID, reg.version.Version, payload)
	if err != nil {
		log.Warnf(ctx, "Unable to archive the crate of workflow %s version %s: %v", reg.workflow.ID, reg.version.Version, err)
		return
	}
	reg.version.URI = uri
	if err = reg.version.Save(ctx); err != nil {
		log.Warnf(ctx, "Unable to save the crate location of version %s: %v", reg.version.ID, err)
	}
}

func (e *Engine) registrySubmitter(ctx *contextx.Context, userID, username, registryName string) *registry.Submitter {
	s := &registry.Submitter{UserID: userID, Username: username}
	if e.tokens != nil {
		token, err := e.tokens.Token(ctx, userID, registryName)
		if err != nil {
			log.Warnf(ctx, "No token of user %s on %s: %v", username, registryName, err)
		}
		s.Token = token
	}
	return s
}

// updateRegistries uploads a version to the requested registries that are
// enabled. A failing registry does not stop the others.
func (e *Engine) updateRegistries(ctx *contextx.Context, user *objects.User, reg *registration, names []string, payload []byte) {
	if e.registries == nil || len(names) == 0 {
		return
	}
	rows, err := objects.ListEnabledRegistries(ctx)
	if err != nil {
		log.Errorf(ctx, "Unable to list the enabled registries: %v", err)
		return
	}
	enabled := make(map[string]*objects.WorkflowRegistry, len(rows))
	for _, r := range rows {
		enabled[r.Name] = r
	}
	for _, name := range names {
		row, ok := enabled[name]
		if !ok {
			log.Warnf(ctx, "Registry %s is not enabled", name)
			continue
		}
		if err := e.registerOn(ctx, user, reg, row, payload); err != nil {
			log.Errorf(ctx, "Unable to register workflow %s version %s on %s: %v",
				reg.workflow.ID, reg.version.Version, name, err)
		}
	}
}

func (e *Engine) registerOn(ctx *contextx.Context, user *objects.User, reg *registration, row *objects.WorkflowRegistry, payload []byte) error {
	client, err := e.registries.Client(row.Name)
	if err != nil {
		return err
	}
	externalID, err := objects.QueryWorkflowExternalID(ctx, reg.workflow.ID, row.ID)
	if err != nil {
		return err
	}
	id, err := client.RegisterWorkflowVersion(ctx, e.registrySubmitter(ctx, user.ID, user.Username, row.Name), payload, externalID)
	if err != nil {
		return err
	}
	existing, err := objects.QueryRegistration(ctx, reg.version.ID, row.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return objects.NewWorkflowRegistration(reg.version.ID, row.ID, id).Save(ctx)
	}
	if existing.ExternalID != id {
		existing.ExternalID = id
		return existing.Save(ctx)
	}
	return nil
}

// deleteRef removes the versions an installation derived from a ref of a
// repository; an empty ref removes every version of the repository.
func (e *Engine) deleteRef(ctx *contextx.Context, installationID int64, fullName, ref string) (int, error) {
	installation, err := objects.QueryGithubRegistryByInstallation(ctx, installationKey(installationID))
	if err != nil || installation == nil {
		return 0, err
	}
	links, err := installation.RepositoryVersions(ctx, fullName)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, link := range links {
		if ref != "" && link.RepoRef != ref {
			continue
		}
		if err := e.deleteVersion(ctx, link); err != nil {
			return deleted, err
		}
		deleted++
	}
	if deleted == 0 {
		log.Debugf(ctx, "No version of %s@%s to delete", fullName, ref)
	}
	return deleted, nil
}

// deleteVersion removes a linked version, deregistering the workflow from the
// registries where it is the last registered version. The workflow goes with
// its last version.
func (e *Engine) deleteVersion(ctx *contextx.Context, link *objects.GithubWorkflowVersion) error {
	lock, err := e.cache.Lock(ctx, lockName(link.RepoIdentifier))
	if err != nil {
		return errors.Wrapf(err, "lock %s", link.RepoIdentifier)
	}
	defer lock.Release()

	v, err := link.GetWorkflowVersion(ctx)
	if err != nil {
		return err
	}
	if v == nil {
		return link.Delete(ctx)
	}
	wf, err := v.GetWorkflow(ctx)
	if err != nil {
		return err
	}
	if wf == nil {
		return v.Delete(ctx)
	}
	users, err := objects.SubscribersOf(ctx, objects.ResourceWorkflow, wf.ID, objects.EventWorkflowVersion)
	if err != nil {
		return err
	}
	e.deregister(ctx, wf, v)

	last := false
	err = objects.Transaction(ctx, func(subCtx *contextx.Context) error {
		if err := v.Delete(subCtx); err != nil {
			return err
		}
		n, err := wf.CountVersions(subCtx)
		if err != nil {
			return err
		}
		if n == 0 {
			last = true
			if err := wf.Delete(subCtx); err != nil {
				return err
			}
		}
		return lock.Held(subCtx)
	})
	if err != nil {
		return errors.Wrapf(err, "delete workflow %s version %s", wf.ID, v.Version)
	}
	log.Infof(ctx, "Workflow %s version %s deleted (last version: %v)", wf.ID, v.Version, last)
	e.notify(ctx, objects.NotificationVersionDeleted, wf, v.Version, users)
	return nil
}

func (e *Engine) deregister(ctx *contextx.Context, wf *objects.Workflow, v *objects.WorkflowVersion) {
	if e.registries == nil {
		return
	}
	registrations, err := v.Registrations(ctx)
	if err != nil {
		log.Errorf(ctx, "Unable to list the registrations of version %s: %v", v.ID, err)
		return
	}
	for _, r := range registrations {
		n, err := objects.CountRegisteredVersions(ctx, wf.ID, r.RegistryID)
		if err != nil {
			log.Errorf(ctx, "Unable to count the registered versions of %s: %v", wf.ID, err)
			continue
		}
		if n > 1 {
			continue
		}
		row, err := objects.QueryRegistryByID(ctx, r.RegistryID)
		if err != nil || row == nil {
			log.Warnf(ctx, "Unknown registry %s of version %s: %v", r.RegistryID, v.ID, err)
			continue
		}
		client, err := e.registries.Client(row.Name)
		if err != nil {
			log.Warnf(ctx, "Unable to deregister workflow %s from %s: %v", wf.ID, row.Name, err)
			continue
		}
		submitter := e.registrySubmitter(ctx, wf.SubmitterID, "", row.Name)
		if err = client.DeleteWorkflow(ctx, submitter, r.ExternalID); err != nil {
			log.Errorf(ctx, "Unable to deregister workflow %s from %s: %v", wf.ID, row.Name, err)
		}
	}
}

// notify stores a workflow notification for users, the workflow subscribers
// when users is nil, and hands it to the notifier.
func (e *Engine) notify(ctx *contextx.Context, kind string, wf *objects.Workflow, version string, users []string) {
	if users == nil {
		var err error
		if users, err = objects.SubscribersOf(ctx, objects.ResourceWorkflow, wf.ID, objects.EventWorkflowVersion); err != nil {
			log.Errorf(ctx, "Unable to get the subscribers of workflow %s: %v", wf.ID, err)
			return
		}
	}
	if len(users) == 0 {
		return
	}
	n := objects.NewNotification(kind, fmt.Sprintf("%s (ver. %s)", wf.Name, version), objects.ResourceWorkflow, wf.ID,
		map[string]interface{}{
			"workflow": map[string]interface{}{"uuid": wf.ID, "name": wf.Name, "version": version},
		})
	if err := n.Save(ctx, users...); err != nil {
		log.Errorf(ctx, "Unable to save the %s notification of workflow %s: %v", kind, wf.ID, err)
		return
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, n, users); err != nil {
			log.Warnf(ctx, "Unable to deliver notification %s: %v", n.ID, err)
		}
	}
}

func (e *Engine) onPush(ctx *contextx.Context, event *github.Event) error {
	if event.Repository == nil || event.RefName() == "" {
		return nil
	}
	if event.IsBotBranch() || event.FromBot(e.bot) {
		log.Debugf(ctx, "Ignoring push on %s by the bot", event.Ref)
		return nil
	}
	if event.Deleted {
		_, err := e.deleteRef(ctx, event.InstallationID(), event.FullName(), event.RefName())
		return err
	}
	client, err := e.client(event)
	if err != nil {
		return err
	}
	_, err = e.registerOrUpdate(ctx, client, targetOf(event))
	return err
}

func (e *Engine) onCreate(ctx *contextx.Context, event *github.Event) error {
	if event.Repository == nil || event.RefName() == "" || event.IsBotBranch() {
		return nil
	}
	client, err := e.client(event)
	if err != nil {
		return err
	}
	_, err = e.registerOrUpdate(ctx, client, targetOf(event))
	return err
}

func (e *Engine) onDelete(ctx *contextx.Context, event *github.Event) error {
	if event.Repository == nil || event.RefName() == "" || event.IsBotBranch() {
		return nil
	}
	_, err := e.deleteRef(ctx, event.InstallationID(), event.FullName(), event.RefName())
	return err
}

// RegisterRef registers the crate found at a branch or tag of a repository of
// an installation, as a push on that ref would.
func (e *Engine) RegisterRef(ctx *contextx.Context, installation int64, fullName, ref string, isTag bool) (string, error) {
	client := e.clients(installation)
	gh, err := client.Repository(ctx, fullName)
	if err != nil {
		return "", errors.Wrapf(err, "get repository %s", fullName)
	}
	t := target{installation: &github.Installation{ID: installation}, repository: gh}
	if isTag {
		t.tag = ref
	} else {
		t.branch = ref
		if t.rev, err = client.BranchSHA(ctx, fullName, ref); err != nil {
			log.Warnf(ctx, "Unable to resolve the head of %s@%s: %v", fullName, ref, err)
		}
	}
	reg, err := e.registerOrUpdate(ctx, client, t)
	if err != nil || reg == nil {
		return "", err
	}
	return reg.outcome.String(), nil
}

// PutFile commits a file on a branch of a repository of an installation.
func (e *Engine) PutFile(ctx *contextx.Context, installation int64, fullName, branch, path string, content []byte, message string) error {
	return e.clients(installation).PutFile(ctx, fullName, branch, path, content, message)
}
