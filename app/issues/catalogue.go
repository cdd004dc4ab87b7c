package issues

import (
	"path"

	"lifemonitor/app/crate"
	"lifemonitor/app/repository"
)

const (
	KeyRepositoryNotInitialised   = "repository_not_initialised"
	KeyMissingWorkflowFile        = "missing_workflow_file"
	KeyMissingROCrateFile         = "missing_ro_crate_file"
	KeyMissingROCrateWorkflowFile = "missing_ro_crate_workflow_file"
	KeyMissingLMConfigFile        = "missing_lm_config_file"
	KeyInvalidConfigFile          = "invalid_config_file"
)

var catalogue = []*Issue{
	{
		Key:         KeyRepositoryNotInitialised,
		Name:        "Repository not initialised",
		Description: "No workflow and crate metadata found on this repository.",
		Labels:      []string{"best-practices"},
		check: func(repo *repository.Repository, _ Options) (bool, *Finding) {
			return repo.FindWorkflow() == nil && !repo.HasMetadata(), nil
		},
	},
	{
		Key:  KeyMissingWorkflowFile,
		Name: "Missing workflow file",
		Description: "No workflow found on this repository.<br>" +
			"You should place the workflow file (e.g., <code>.ga</code> file) according to the best practices.",
		Labels:    []string{"best-practices"},
		DependsOn: []string{KeyRepositoryNotInitialised},
		check: func(repo *repository.Repository, _ Options) (bool, *Finding) {
			return repo.FindWorkflow() == nil, nil
		},
	},
	{
		Key:  KeyMissingROCrateFile,
		Name: "Missing RO-Crate metadata",
		Description: "No <code>ro-crate-metadata.json</code> found on this repository.<br>" +
			"The <code>ro-crate-metadata.json</code> should be placed on the root of this repository.",
		Labels:    []string{"metadata"},
		DependsOn: []string{KeyMissingWorkflowFile},
		check:     checkMissingCrate,
	},
	{
		Key:         KeyMissingROCrateWorkflowFile,
		Name:        "Missing RO-Crate workflow file",
		Description: "The workflow file declared on RO-Crate metadata is missing in this repository.",
		Labels:      []string{"metadata"},
		DependsOn:   []string{KeyMissingROCrateFile},
		check: func(repo *repository.Repository, _ Options) (bool, *Finding) {
			if !repo.HasMetadata() {
				return false, nil
			}
			data, err := crate.ReadMetadata(repo.FS)
			if err != nil {
				return false, nil
			}
			m, err := crate.ParseMetadata(data)
			if err != nil {
				return true, &Finding{Messages: []string{err.Error()}}
			}
			return !repo.Exists(m.MainWorkflow.RelativePath), nil
		},
	},
	{
		Key:  KeyMissingLMConfigFile,
		Name: "Missing LifeMonitor configuration file",
		Description: "No <code>.lifemonitor.yaml</code> configuration file found on this repository.<br>" +
			"The <code>.lifemonitor.yaml</code> should be placed on the root of this repository.",
		Labels: []string{"config", "enhancement"},
		check:  checkMissingConfig,
	},
	{
		Key:         KeyInvalidConfigFile,
		Name:        "LifeMonitor configuration file not valid",
		Description: "The LifeMonitor configuration file found on this repository is not valid.<br>",
		Labels:      []string{"config", "enhancement"},
		DependsOn:   []string{KeyMissingLMConfigFile},
		check: func(repo *repository.Repository, _ Options) (bool, *Finding) {
			if _, err := repo.Config(); err != nil {
				return true, &Finding{Messages: []string{err.Error()}}
			}
			return false, nil
		},
	},
}

// MetadataFor returns a minimal RO-Crate describing the workflow of repo.
func MetadataFor(repo *repository.Repository, title string) ([]byte, error) {
	wf := repo.FindWorkflow()
	if wf == nil {
		return nil, nil
	}
	m := &crate.Manifest{
		RootName: title,
		MainWorkflow: crate.Workflow{
			ID:           wf.Path,
			Name:         path.Base(wf.Path),
			RelativePath: wf.Path,
			Type:         wf.Type,
		},
	}
	if repo.Exists("test") {
		m.TestDir = "test/"
	}
	return m.Metadata()
}

func checkMissingCrate(repo *repository.Repository, opts Options) (bool, *Finding) {
	if repo.HasMetadata() {
		return false, nil
	}
	data, err := MetadataFor(repo, opts.Title)
	if err != nil || data == nil {
		return true, nil
	}
	return true, &Finding{Changes: []repository.File{{Path: crate.MetadataFile, Content: data}}}
}

func checkMissingConfig(repo *repository.Repository, opts Options) (bool, *Finding) {
	if repo.ConfigFile() != "" {
		return false, nil
	}
	cfg := repository.NewConfig(opts.Title, false, opts.MainBranch, opts.Registries)
	data, err := cfg.Marshal()
	if err != nil {
		return true, nil
	}
	return true, &Finding{Changes: []repository.File{{Path: repository.DefaultConfigFile, Content: data}}}
}
