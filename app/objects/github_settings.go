package objects

import (
	"path"
)

// GithubSettings are the per-user defaults applied to repositories without a config file.
type GithubSettings struct {
	CheckIssues bool     `json:"check_issues"`
	Public      bool     `json:"public"`
	AllBranches bool     `json:"all_branches"`
	AllTags     bool     `json:"all_tags"`
	Branches    []string `json:"branches"`
	Tags        []string `json:"tags"`
	Registries  []string `json:"registries"`
}

func DefaultGithubSettings() *GithubSettings {
	return &GithubSettings{
		CheckIssues: true,
		Public:      true,
		AllBranches: true,
		AllTags:     true,
		Branches:    []string{"main"},
		Tags:        []string{"v*.*.*"},
	}
}

func (s *GithubSettings) IsValidBranch(branch string) bool {
	return MatchRef(branch, s.Branches)
}

func (s *GithubSettings) IsValidTag(tag string) bool {
	return MatchRef(tag, s.Tags)
}

// MatchRef reports whether ref matches one of the glob patterns.
func MatchRef(ref string, patterns []string) bool {
	if ref == "" {
		return false
	}
	for _, p := range patterns {
		if p == ref {
			return true
		}
		if ok, err := path.Match(p, ref); err == nil && ok {
			return true
		}
	}
	return false
}
