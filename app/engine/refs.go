package engine

import (
	"lifemonitor/app/objects"
	"lifemonitor/app/repository"
)

// refDecision is how a branch or tag of a repository is handled.
type refDecision struct {
	Tracked       bool
	Reason        string
	Config        *repository.Config
	ConfigErr     error
	Registries    []string
	Public        bool
	Notifications bool
	CheckIssues   bool
	Include       []string
	Exclude       []string
	// Instance is the LifeMonitor instance the ref is configured for, if any.
	Instance string
}

// decideRef applies the repository configuration file when there is one and
// the user settings otherwise. An invalid configuration tracks nothing.
func decideRef(repo *repository.Repository, settings *objects.GithubSettings, branch, tag string) refDecision {
	if settings == nil {
		settings = objects.DefaultGithubSettings()
	}
	if repo.ConfigFile() != "" {
		cfg, err := repo.Config()
		if err != nil {
			return refDecision{Reason: "invalid configuration file", ConfigErr: err, CheckIssues: true}
		}
		d := refDecision{
			Config:      cfg,
			Public:      cfg.Public,
			CheckIssues: cfg.CheckerEnabled(),
			Include:     cfg.IncludeIssues(),
			Exclude:     cfg.ExcludeIssues(),
		}
		ref := cfg.RefSettings(branch, tag)
		if ref == nil {
			d.Reason = "ref not listed in the configuration file"
			return d
		}
		d.Tracked = true
		d.Registries = ref.UpdateRegistries
		d.Notifications = ref.NotificationsEnabled()
		d.Instance = ref.LifemonitorInstance
		return d
	}

	d := refDecision{
		Public:        settings.Public,
		CheckIssues:   settings.CheckIssues,
		Notifications: true,
		Registries:    settings.Registries,
	}
	switch {
	case branch != "":
		d.Tracked = settings.AllBranches || settings.IsValidBranch(branch)
	case tag != "":
		d.Tracked = settings.AllTags || settings.IsValidTag(tag)
	}
	if !d.Tracked {
		d.Reason = "ref not enabled by the user settings"
	}
	return d
}
