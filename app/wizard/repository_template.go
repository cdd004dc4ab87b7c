package wizard

import (
	"path"

	"lifemonitor/app/crate"
	"lifemonitor/app/issues"
	"lifemonitor/app/repository"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
)

const (
	KeyWorkflowType        = "workflow_type"
	KeyWorkflowTitle       = "workflow_title"
	KeyWorkflowDescription = "workflow_description"
	KeyTestEngine          = "test_engine"
	KeyWorkflowTemplate    = "workflow_template"
)

// GalaxyTestEngines are the engines planemo can run Galaxy workflow tests on.
var GalaxyTestEngines = []string{"galaxy", "docker_galaxy"}

// RepositoryTemplate initialises an empty repository from the template of the
// chosen workflow type.
var RepositoryTemplate = &Definition{
	Title:  "Repository Template",
	Labels: []string{"enhancement"},
	Issue:  issues.KeyRepositoryNotInitialised,
	Steps: []*Step{
		NewQuestion(KeyWorkflowType, "Which type of workflow are you going to host on this repository?",
			repository.TemplateTypes()...),
		NewQuestion(KeyWorkflowTitle, "Choose a name for your workflow?"),
		NewQuestion(KeyWorkflowDescription, "Type a description for your workflow?"),
		{
			Key:     KeyTestEngine,
			Title:   "Which engine should run the tests of your Galaxy workflow?",
			Kind:    Question,
			Options: GalaxyTestEngines,
			When:    `{% _.workflow_type == "galaxy" %}`,
		},
		NewUpdate(KeyWorkflowTemplate, "Update your Workflow RO-Crate repository",
			"According to the recommended layout for {{ .workflow_type }} workflow RO-Crates, you should add the following files",
			templateFiles),
	},
}

func init() {
	Register(RepositoryTemplate)
}

// templateFiles proposes the template files the repository lacks, plus the
// crate metadata and the LifeMonitor configuration when they are missing.
func templateFiles(ctx *contextx.Context, w *Wizard, repo *repository.Repository) ([]repository.File, error) {
	workflowType := w.Answer(KeyWorkflowType)
	title := w.Answer(KeyWorkflowTitle)
	tpl, err := repository.NewTemplate(workflowType, map[string]interface{}{
		"workflow_title":       title,
		"workflow_description": w.Answer(KeyWorkflowDescription),
		"test_engine":          w.Answer(KeyTestEngine),
	})
	if err != nil {
		return nil, err
	}
	all, err := tpl.Files()
	if err != nil {
		return nil, err
	}
	var files []repository.File
	if repo != nil {
		if files, err = tpl.Missing(repo); err != nil {
			return nil, err
		}
	} else {
		files = all
	}
	log.Debugf(ctx, "Template %s proposes %d of %d files", workflowType, len(files), len(all))

	exists := func(name string) bool { return repo != nil && repo.Exists(name) }
	if !exists(crate.MetadataFile) && !exists(crate.LegacyMetadataFile) {
		for _, f := range all {
			if repository.WorkflowTypeOf(f.Path) != workflowType {
				continue
			}
			m := &crate.Manifest{
				RootName: title,
				MainWorkflow: crate.Workflow{
					ID:           f.Path,
					Name:         path.Base(f.Path),
					RelativePath: f.Path,
					Type:         workflowType,
				},
			}
			data, err := m.Metadata()
			if err != nil {
				return nil, err
			}
			files = append(files, repository.File{Path: crate.MetadataFile, Content: data})
			break
		}
	}
	if repo == nil || repo.ConfigFile() == "" {
		data, err := repository.NewConfig(title, false, defaultBranch(repo), nil).Marshal()
		if err != nil {
			return nil, err
		}
		files = append(files, repository.File{Path: repository.DefaultConfigFile, Content: data})
	}
	return files, nil
}

func defaultBranch(repo *repository.Repository) string {
	if repo == nil {
		return ""
	}
	return repo.DefaultBranch
}
