package engine

import (
	"lifemonitor/app/github"
	"lifemonitor/app/objects"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"

	"github.com/pkg/errors"
)

func (e *Engine) onInstallation(ctx *contextx.Context, event *github.Event) error {
	if event.Installation == nil {
		return nil
	}
	switch event.Action {
	case "created":
		if _, err := objects.GetOrCreateGithubRegistry(ctx, installationKey(event.Installation.ID), event.Installation.Account.Login); err != nil {
			return err
		}
		return e.addRepositories(ctx, event, event.Repositories)
	case "deleted":
		return e.removeInstallation(ctx, event.Installation.ID)
	}
	log.Debugf(ctx, "Ignoring installation action %s", event.Action)
	return nil
}

func (e *Engine) onInstallationRepositories(ctx *contextx.Context, event *github.Event) error {
	if event.Installation == nil {
		return nil
	}
	switch event.Action {
	case "added":
		return e.addRepositories(ctx, event, event.RepositoriesAdded)
	case "removed":
		return e.removeRepositories(ctx, event.Installation.ID, event.RepositoriesRemoved)
	}
	return nil
}

// addRepositories registers the default branch of every repository. A
// failing repository does not stop the others.
func (e *Engine) addRepositories(ctx *contextx.Context, event *github.Event, repos []github.Repository) error {
	client, err := e.client(event)
	if err != nil {
		return err
	}
	var failed error
	for i := range repos {
		gh := &repos[i]
		if gh.DefaultBranch == "" || gh.Owner.ID == 0 {
			info, err := client.Repository(ctx, gh.FullName)
			if err != nil {
				log.Errorf(ctx, "Unable to get the details of %s: %v", gh.FullName, err)
				failed = err
				continue
			}
			gh = info
		}
		t := target{installation: event.Installation, repository: gh, branch: gh.DefaultBranch}
		if _, err := e.registerOrUpdate(ctx, client, t); err != nil {
			log.Errorf(ctx, "Unable to register %s: %v", t, err)
			failed = err
		}
	}
	return failed
}

func (e *Engine) removeRepositories(ctx *contextx.Context, installation int64, repos []github.Repository) error {
	var failed error
	for _, r := range repos {
		n, err := e.deleteRef(ctx, installation, r.FullName, "")
		if err != nil {
			log.Errorf(ctx, "Unable to remove the versions of %s: %v", r.FullName, err)
			failed = err
			continue
		}
		log.Infof(ctx, "%d versions of %s removed", n, r.FullName)
	}
	return failed
}

// removeInstallation deletes every version an installation manages, then the installation.
func (e *Engine) removeInstallation(ctx *contextx.Context, id int64) error {
	installation, err := objects.QueryGithubRegistryByInstallation(ctx, installationKey(id))
	if err != nil || installation == nil {
		return err
	}
	links, err := installation.Versions(ctx)
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := e.deleteVersion(ctx, link); err != nil {
			return errors.Wrapf(err, "remove installation %d", id)
		}
	}
	log.Infof(ctx, "Installation %d removed with %d versions", id, len(links))
	return installation.Delete(ctx)
}

// CheckInstallations reconciles the stored installations with the ones the
// GitHub App reports: missing ones are created, vanished ones removed.
func (e *Engine) CheckInstallations(ctx *contextx.Context, installations []github.Installation) error {
	current := map[string]bool{}
	for _, i := range installations {
		current[installationKey(i.ID)] = true
		if _, err := objects.GetOrCreateGithubRegistry(ctx, installationKey(i.ID), i.Account.Login); err != nil {
			return err
		}
	}
	stored, err := objects.ListGithubRegistries(ctx)
	if err != nil {
		return err
	}
	for _, s := range stored {
		if current[s.InstallationID] {
			continue
		}
		id, err := parseInstallationKey(s.InstallationID)
		if err != nil {
			log.Warnf(ctx, "Dropping the malformed installation %q", s.InstallationID)
			if err = s.Delete(ctx); err != nil {
				return err
			}
			continue
		}
		if err = e.removeInstallation(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
