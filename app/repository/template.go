package repository

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"lifemonitor/app/expressions/builtin"
	"lifemonitor/app/expressions/jinja"
	"lifemonitor/pkg/problem"

	"github.com/pkg/errors"
)

//go:embed all:templates
var templatesFS embed.FS

const (
	templatesRoot     = "templates"
	baseTemplate      = "base"
	templateExtension = ".j2"
	workflowStem      = "workflow"
)

// TemplateTypes lists the workflow types a repository can be initialised with.
func TemplateTypes() []string {
	entries, _ := fs.ReadDir(templatesFS, templatesRoot)
	var types []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != baseTemplate {
			types = append(types, e.Name())
		}
	}
	sort.Strings(types)
	return types
}

// Template renders the skeleton of a new workflow repository.
type Template struct {
	Type string
	Data map[string]interface{}
}

func NewTemplate(workflowType string, data map[string]interface{}) (*Template, error) {
	if _, err := fs.Stat(templatesFS, path.Join(templatesRoot, workflowType)); err != nil || workflowType == baseTemplate {
		return nil, problem.SpecificationNotSupported("no repository template for workflow type %s", workflowType)
	}
	values := map[string]interface{}{
		"workflow_title":       "",
		"workflow_description": "",
		"test_engine":          "",
	}
	for k, v := range data {
		values[k] = v
	}
	if name, _ := values["workflow_name"].(string); name == "" {
		title, _ := values["workflow_title"].(string)
		name = builtin.KebabCase(title)
		if name == "" {
			name = workflowStem
		}
		values["workflow_name"] = name
	}
	return &Template{Type: workflowType, Data: values}, nil
}

// WorkflowName is the file name stem used for the workflow and its test files.
func (t *Template) WorkflowName() string {
	name, _ := t.Data["workflow_name"].(string)
	return name
}

// Files renders the base files followed by the files of the workflow type.
func (t *Template) Files() ([]File, error) {
	var files []File
	for _, dir := range []string{baseTemplate, t.Type} {
		root := path.Join(templatesRoot, dir)
		err := fs.WalkDir(templatesFS, root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			raw, err := fs.ReadFile(templatesFS, p)
			if err != nil {
				return err
			}
			name := strings.TrimPrefix(p, root+"/")
			content := raw
			if strings.HasSuffix(name, templateExtension) {
				name = strings.TrimSuffix(name, templateExtension)
				rendered, err := jinja.Render(string(raw), t.Data)
				if err != nil {
					return errors.Wrapf(err, "render template %s", p)
				}
				content = []byte(rendered)
			}
			files = append(files, File{Path: t.rename(name), Content: content})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// rename gives the workflow file and its companions the workflow name.
func (t *Template) rename(name string) string {
	dir, base := path.Split(name)
	if strings.HasPrefix(base, workflowStem+".") || strings.HasPrefix(base, workflowStem+"-") {
		base = t.WorkflowName() + strings.TrimPrefix(base, workflowStem)
	}
	return dir + base
}

// Missing returns the template files repo does not have yet.
func (t *Template) Missing(repo *Repository) ([]File, error) {
	files, err := t.Files()
	if err != nil {
		return nil, err
	}
	var missing []File
	for _, f := range files {
		if !repo.Exists(f.Path) {
			missing = append(missing, f)
		}
	}
	return missing, nil
}
