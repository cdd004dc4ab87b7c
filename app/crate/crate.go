// Package crate extracts the main workflow and the declared test suites from a
// Workflow Testing RO-Crate.
package crate

import (
	"encoding/json"
	"io/fs"
	"path"
	"strings"

	"lifemonitor/pkg/problem"
)

const (
	MetadataFile       = "ro-crate-metadata.json"
	LegacyMetadataFile = "ro-crate-metadata.jsonld"

	crateProfilePrefix = "https://w3id.org/ro/crate/"
	testTermsPrefix    = "https://w3id.org/ro/terms/test#"
	workflowLangPrefix = "https://w3id.org/workflowhub/workflow-ro-crate#"
)

var (
	workflowTypes       = []string{"File", "SoftwareSourceCode", "ComputationalWorkflow"}
	legacyWorkflowTypes = []string{"File", "SoftwareSourceCode", "Workflow"}

	// WorkflowLanguages are the main workflow types recognized by the parser.
	WorkflowLanguages = []string{"galaxy", "snakemake", "nextflow", "cwl", "jupyter"}

	serviceTypes = map[string]string{
		testTermsPrefix + "JenkinsService": "jenkins",
		testTermsPrefix + "TravisService":  "travis",
		testTermsPrefix + "GithubService":  "github",
	}
)

type Workflow struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	RelativePath string `json:"relative_path"`
	Type         string `json:"type"`
	Version      string `json:"declared_version,omitempty"`
}

type Service struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Resource string `json:"resource"`
}

type TestInstance struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name,omitempty"`
	Service    Service                `json:"service"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type TestDefinition struct {
	ID            string `json:"id"`
	Engine        string `json:"engine"`
	EngineVersion string `json:"engine_version,omitempty"`
	Path          string `json:"path"`
}

type TestSuite struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Instances  []TestInstance  `json:"instances"`
	Definition *TestDefinition `json:"definition,omitempty"`
}

// Manifest is the part of a crate LifeMonitor cares about.
type Manifest struct {
	RootName     string      `json:"root_name,omitempty"`
	MainWorkflow Workflow    `json:"main_workflow"`
	TestDir      string      `json:"test_dir,omitempty"`
	TestSuites   []TestSuite `json:"test_suites"`
}

func (m *Manifest) Suite(id string) *TestSuite {
	for i := range m.TestSuites {
		if m.TestSuites[i].ID == id {
			return &m.TestSuites[i]
		}
	}
	return nil
}

type entity map[string]interface{}

func (e entity) id() string {
	return str(e["@id"])
}

func (e entity) types() []string {
	switch t := e["@type"].(type) {
	case string:
		return []string{t}
	case []interface{}:
		result := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}

func (e entity) hasTypes(required ...string) bool {
	have := map[string]bool{}
	for _, t := range e.types() {
		have[t] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// ref returns the @id of a single-valued reference property.
func (e entity) ref(name string) string {
	refs := e.refs(name)
	if len(refs) == 0 {
		return ""
	}
	return refs[0]
}

func (e entity) refs(name string) []string {
	switch v := e[name].(type) {
	case map[string]interface{}:
		if id := str(v["@id"]); id != "" {
			return []string{id}
		}
	case []interface{}:
		var result []string
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if id := str(m["@id"]); id != "" {
					result = append(result, id)
				}
			}
		}
		return result
	}
	return nil
}

// text returns a literal property, or the @id when the value is a reference.
func (e entity) text(name string) string {
	if s := str(e[name]); s != "" {
		return s
	}
	return e.ref(name)
}

func str(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return ""
}

type graph struct {
	order    []string
	entities map[string]entity
}

func newGraph(data []byte) (*graph, error) {
	var doc struct {
		Graph []map[string]interface{} `json:"@graph"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, problem.Wrap(problem.KindNotValidROCrate, err, "unable to decode crate metadata")
	}
	if len(doc.Graph) == 0 {
		return nil, problem.NotValidROCrate("crate metadata has an empty @graph")
	}
	g := &graph{entities: map[string]entity{}}
	for _, raw := range doc.Graph {
		e := entity(raw)
		id := e.id()
		if id == "" {
			continue
		}
		if _, ok := g.entities[id]; !ok {
			g.order = append(g.order, id)
		}
		g.entities[id] = e
	}
	return g, nil
}

func (g *graph) root() entity {
	for _, id := range g.order {
		e := g.entities[id]
		if strings.HasPrefix(e.ref("conformsTo"), crateProfilePrefix) {
			if root, ok := g.entities[e.ref("about")]; ok {
				return root
			}
		}
	}
	for _, name := range []string{MetadataFile, LegacyMetadataFile} {
		if descriptor, ok := g.entities[name]; ok {
			if root, ok := g.entities[descriptor.ref("about")]; ok {
				return root
			}
		}
	}
	return nil
}

func (g *graph) testDir() string {
	for _, id := range g.order {
		if !g.entities[id].hasTypes("Dataset") {
			continue
		}
		if path.Clean(strings.TrimPrefix(id, "./")) == "test" {
			return id
		}
	}
	return ""
}

func workflowLanguage(wf entity, g *graph) string {
	lang := wf.ref("programmingLanguage")
	if lang == "" {
		lang = str(wf["programmingLanguage"])
	}
	candidates := []string{lang[strings.LastIndex(lang, "#")+1:]}
	if le, ok := g.entities[lang]; ok {
		candidates = append(candidates, str(le["name"]), le.text("identifier"))
	}
	for _, c := range candidates {
		c = strings.ToLower(c)
		if c == "common workflow language" {
			return "cwl"
		}
		for _, known := range WorkflowLanguages {
			if c == known || strings.HasPrefix(c, known) || strings.Contains(c, "/"+known) {
				return known
			}
		}
	}
	return "other"
}

// ParseMetadata parses the raw JSON-LD document of a crate.
func ParseMetadata(data []byte) (*Manifest, error) {
	g, err := newGraph(data)
	if err != nil {
		return nil, err
	}
	root := g.root()
	if root == nil {
		return nil, problem.NotValidROCrate("root data entity not found in crate")
	}

	wf, ok := g.entities[root.ref("mainEntity")]
	if !ok {
		return nil, problem.SpecificationNotValid("main workflow not found in crate")
	}
	if !wf.hasTypes(workflowTypes...) && !wf.hasTypes(legacyWorkflowTypes...) {
		return nil, problem.SpecificationNotValid("main workflow %s does not have the required types", wf.id())
	}

	m := &Manifest{
		RootName: str(root["name"]),
		MainWorkflow: Workflow{
			ID:           wf.id(),
			Name:         str(wf["name"]),
			RelativePath: strings.TrimPrefix(wf.id(), "./"),
			Type:         workflowLanguage(wf, g),
			Version:      str(wf["version"]),
		},
		TestDir:    g.testDir(),
		TestSuites: []TestSuite{},
	}

	suites, err := g.suites(root)
	if err != nil {
		return nil, err
	}
	m.TestSuites = suites
	return m, nil
}

func (g *graph) suites(root entity) ([]TestSuite, error) {
	var ids []string
	seen := map[string]bool{}
	for _, id := range root.refs("mentions") {
		if e, ok := g.entities[id]; ok && e.hasTypes("TestSuite") && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for _, id := range g.order {
		if g.entities[id].hasTypes("TestSuite") && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	result := make([]TestSuite, 0, len(ids))
	for _, id := range ids {
		suite, err := g.suite(g.entities[id])
		if err != nil {
			return nil, err
		}
		result = append(result, *suite)
	}
	return result, nil
}

func (g *graph) suite(e entity) (*TestSuite, error) {
	suite := &TestSuite{ID: e.id(), Name: str(e["name"]), Instances: []TestInstance{}}
	for _, iid := range e.refs("instance") {
		ie, ok := g.entities[iid]
		if !ok || !ie.hasTypes("TestInstance") {
			return nil, problem.SpecificationNotValid("test instance %s of suite %s not found", iid, suite.ID)
		}
		instance, err := g.instance(ie)
		if err != nil {
			return nil, err
		}
		suite.Instances = append(suite.Instances, *instance)
	}
	if did := e.ref("definition"); did != "" {
		de, ok := g.entities[did]
		if !ok || !de.hasTypes("TestDefinition") {
			return nil, problem.SpecificationNotValid("test definition %s of suite %s not found", did, suite.ID)
		}
		suite.Definition = &TestDefinition{
			ID:            did,
			Engine:        engineName(de.ref("conformsTo")),
			EngineVersion: str(de["engineVersion"]),
			Path:          strings.TrimPrefix(did, "./"),
		}
	}
	return suite, nil
}

func (g *graph) instance(e entity) (*TestInstance, error) {
	runsOn := e.ref("runsOn")
	if runsOn == "" {
		return nil, problem.SpecificationNotValid("test instance %s has no runsOn property", e.id())
	}
	kind, ok := serviceTypes[runsOn]
	if !ok {
		return nil, problem.SpecificationNotSupported("testing service %s of instance %s is not supported", runsOn, e.id())
	}
	url := e.text("url")
	resource := str(e["resource"])
	if url == "" || resource == "" {
		return nil, problem.SpecificationNotValid("test instance %s requires both url and resource", e.id())
	}
	instance := &TestInstance{
		ID:      e.id(),
		Name:    str(e["name"]),
		Service: Service{Type: kind, URL: url, Resource: resource},
	}
	if params, ok := e["parameters"].(map[string]interface{}); ok && len(params) > 0 {
		instance.Parameters = params
	}
	return instance, nil
}

func engineName(conformsTo string) string {
	name := strings.TrimPrefix(conformsTo, testTermsPrefix)
	name = strings.TrimSuffix(name, "Engine")
	return strings.ToLower(name)
}

// ParseFS parses the crate rooted at fsys and checks that the files it declares exist.
func ParseFS(fsys fs.FS) (*Manifest, error) {
	data, err := ReadMetadata(fsys)
	if err != nil {
		return nil, err
	}
	m, err := ParseMetadata(data)
	if err != nil {
		return nil, err
	}
	if _, err = fs.Stat(fsys, m.MainWorkflow.RelativePath); err != nil {
		return nil, problem.SpecificationNotValid("main workflow %s not found", m.MainWorkflow.RelativePath)
	}
	if m.TestDir != "" {
		dir := strings.TrimSuffix(strings.TrimPrefix(m.TestDir, "./"), "/")
		if info, err := fs.Stat(fsys, dir); err != nil || !info.IsDir() {
			return nil, problem.SpecificationNotValid("test directory %s not found", m.TestDir)
		}
	}
	return m, nil
}

// ReadMetadata returns the raw metadata file, falling back to the legacy name.
func ReadMetadata(fsys fs.FS) ([]byte, error) {
	for _, name := range []string{MetadataFile, LegacyMetadataFile} {
		data, err := fs.ReadFile(fsys, name)
		if err == nil {
			return data, nil
		}
	}
	return nil, problem.NotValidROCrate("%s not found", MetadataFile)
}
