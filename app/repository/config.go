package repository

import (
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ConfigFileNames are the accepted names of the repository configuration file,
// in lookup order.
var ConfigFileNames = []string{".lifemonitor.yaml", ".lifemonitor.yml", "lifemonitor.yaml", "lifemonitor.yml"}

const DefaultConfigFile = ".lifemonitor.yaml"

// RefSettings configures the refs matching Name, which may be a glob pattern.
type RefSettings struct {
	Name                string   `yaml:"name"`
	UpdateRegistries    []string `yaml:"update_registries"`
	EnableNotifications *bool    `yaml:"enable_notifications,omitempty"`
	LifemonitorInstance string   `yaml:"lifemonitor_instance,omitempty"`
}

func (r *RefSettings) NotificationsEnabled() bool {
	return r == nil || r.EnableNotifications == nil || *r.EnableNotifications
}

type IssuesConfig struct {
	Check   *bool  `yaml:"check,omitempty"`
	Include string `yaml:"include,omitempty"`
	Exclude string `yaml:"exclude,omitempty"`
}

type PushConfig struct {
	Branches []RefSettings `yaml:"branches"`
	Tags     []RefSettings `yaml:"tags"`
}

// Config is the content of the per-repository .lifemonitor.yaml file.
type Config struct {
	Name   string       `yaml:"name,omitempty"`
	Public bool         `yaml:"public"`
	Issues IssuesConfig `yaml:"issues"`
	Push   PushConfig   `yaml:"push"`
}

func ParseConfig(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, errors.Wrap(err, "invalid repository configuration")
	}
	if errs := c.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid repository configuration: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

// Validate returns the list of problems found in c.
func (c *Config) Validate() []string {
	var errs []string
	check := func(kind string, refs []RefSettings) {
		for i, r := range refs {
			if strings.TrimSpace(r.Name) == "" {
				errs = append(errs, fmt.Sprintf("push.%s[%d]: missing name", kind, i))
				continue
			}
			if _, err := path.Match(r.Name, ""); err != nil {
				errs = append(errs, fmt.Sprintf("push.%s[%d]: invalid pattern %q", kind, i, r.Name))
			}
		}
	}
	check("branches", c.Push.Branches)
	check("tags", c.Push.Tags)
	return errs
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) CheckerEnabled() bool {
	return c.Issues.Check == nil || *c.Issues.Check
}

func splitList(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

func (c *Config) IncludeIssues() []string { return splitList(c.Issues.Include) }

func (c *Config) ExcludeIssues() []string { return splitList(c.Issues.Exclude) }

func names(refs []RefSettings) []string {
	result := make([]string, 0, len(refs))
	for _, r := range refs {
		result = append(result, r.Name)
	}
	return result
}

func (c *Config) Branches() []string { return names(c.Push.Branches) }

func (c *Config) Tags() []string { return names(c.Push.Tags) }

func match(name string, refs []RefSettings) *RefSettings {
	if name == "" {
		return nil
	}
	for i := range refs {
		if refs[i].Name == name {
			return &refs[i]
		}
	}
	for i := range refs {
		if ok, _ := path.Match(refs[i].Name, name); ok {
			return &refs[i]
		}
	}
	return nil
}

func (c *Config) BranchSettings(branch string) *RefSettings { return match(branch, c.Push.Branches) }

func (c *Config) TagSettings(tag string) *RefSettings { return match(tag, c.Push.Tags) }

// RefSettings returns the settings of a branch or tag, nil when it is not tracked.
func (c *Config) RefSettings(branch, tag string) *RefSettings {
	if branch != "" {
		return c.BranchSettings(branch)
	}
	return c.TagSettings(tag)
}

// Registries lists every registry named by a ref setting.
func (c *Config) Registries() []string {
	seen := map[string]bool{}
	var result []string
	for _, refs := range [][]RefSettings{c.Push.Branches, c.Push.Tags} {
		for _, r := range refs {
			for _, name := range r.UpdateRegistries {
				if !seen[name] {
					seen[name] = true
					result = append(result, name)
				}
			}
		}
	}
	return result
}

// NewConfig returns the configuration proposed to repositories lacking one.
func NewConfig(title string, public bool, mainBranch string, registries []string) *Config {
	if mainBranch == "" {
		mainBranch = "main"
	}
	enabled := true
	check := true
	ref := func(name string) RefSettings {
		return RefSettings{
			Name:                name,
			UpdateRegistries:    append([]string{}, registries...),
			EnableNotifications: &enabled,
		}
	}
	return &Config{
		Name:   title,
		Public: public,
		Issues: IssuesConfig{Check: &check},
		Push: PushConfig{
			Branches: []RefSettings{ref(mainBranch)},
			Tags:     []RefSettings{ref("v*.*.*"), ref("*.*.*")},
		},
	}
}
