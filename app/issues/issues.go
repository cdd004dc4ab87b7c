// Package issues detects the problems that keep a repository from being
// registered and proposes the files fixing them.
package issues

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"lifemonitor/app/repository"
)

const IDPrefix = "lifemonitor-issue-"

// Options carry what the checks need to propose new files.
type Options struct {
	Title      string
	MainBranch string
	Registries []string
}

// Finding is the outcome of a check that detected an issue.
type Finding struct {
	Issue    *Issue
	Changes  []repository.File
	Messages []string
}

type checkFunc func(repo *repository.Repository, opts Options) (bool, *Finding)

type Issue struct {
	Key         string
	Name        string
	Description string
	Labels      []string
	DependsOn   []string
	check       checkFunc
}

// ID is the identifier used for the issue branch and pull request.
func (i *Issue) ID() string {
	sum := sha1.Sum([]byte(i.Name))
	return IDPrefix + hex.EncodeToString(sum[:])
}

// Check reports whether repo is affected by i.
func (i *Issue) Check(repo *repository.Repository, opts Options) (bool, *Finding) {
	found, finding := i.check(repo, opts)
	if !found {
		return false, nil
	}
	if finding == nil {
		finding = &Finding{}
	}
	finding.Issue = i
	return true, finding
}

func (i *Issue) HasChanges(f *Finding) bool {
	return f != nil && len(f.Changes) > 0
}

// All returns the catalogue ordered so that every issue follows its dependencies.
func All() []*Issue {
	return catalogue
}

func ByKey(key string) *Issue {
	key = normalizeKey(key)
	for _, i := range catalogue {
		if i.Key == key {
			return i
		}
	}
	return nil
}

// ByName finds the issue an issue title refers to.
func ByName(name string) *Issue {
	for _, i := range catalogue {
		if i.Name == name {
			return i
		}
	}
	return nil
}

func ByID(id string) *Issue {
	for _, i := range catalogue {
		if i.ID() == id {
			return i
		}
	}
	return nil
}

// normalizeKey accepts both snake_case keys and CamelCase issue class names.
func normalizeKey(key string) string {
	runes := []rune(strings.TrimSpace(key))
	var b strings.Builder
	isUpper := func(r rune) bool { return r >= 'A' && r <= 'Z' }
	isLower := func(r rune) bool { return r >= 'a' && r <= 'z' }
	for i, r := range runes {
		if isUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && isLower(runes[i+1])
			if isLower(prev) || (isUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		switch {
		case isUpper(r):
			r += 'a' - 'A'
		case r == '-' || r == ' ':
			r = '_'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Report is the result of a repository check.
type Report struct {
	Checked []*Issue
	Found   []*Finding
}

func (r *Report) FoundIssues() bool {
	return len(r.Found) > 0
}

func (r *Report) Finding(key string) *Finding {
	for _, f := range r.Found {
		if f.Issue.Key == key {
			return f
		}
	}
	return nil
}

type Checker struct {
	Include  []string
	Exclude  []string
	FailFast bool
}

func (c Checker) enabled(i *Issue) bool {
	for _, e := range c.Exclude {
		if normalizeKey(e) == i.Key {
			return false
		}
	}
	if len(c.Include) == 0 {
		return true
	}
	for _, e := range c.Include {
		if normalizeKey(e) == i.Key {
			return true
		}
	}
	return false
}

// Check runs the catalogue against repo. An issue is skipped when one of its
// dependencies was found or skipped for the same reason.
func (c Checker) Check(repo *repository.Repository, opts Options) *Report {
	report := &Report{}
	blocked := map[string]bool{}
	for _, issue := range catalogue {
		if !c.enabled(issue) {
			continue
		}
		skip := false
		for _, dep := range issue.DependsOn {
			if blocked[dep] {
				skip = true
				break
			}
		}
		if skip {
			blocked[issue.Key] = true
			continue
		}
		report.Checked = append(report.Checked, issue)
		if ok, finding := issue.Check(repo, opts); ok {
			blocked[issue.Key] = true
			report.Found = append(report.Found, finding)
			if c.FailFast {
				break
			}
		}
	}
	return report
}
