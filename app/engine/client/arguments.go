package client

import (
	"strings"

	"lifemonitor/pkg/problem"
)

const (
	refHeads = "refs/heads/"
	refTags  = "refs/tags/"
)

// RefArg is a repository ref in the form owner/name@ref. A ref prefixed with
// refs/tags/ selects a tag, any other ref a branch.
type RefArg struct {
	Repository string
	Ref        string
	Tag        bool
}

func ParseRef(s string) (RefArg, error) {
	repo, ref, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || ref == "" || strings.Count(repo, "/") != 1 || strings.HasPrefix(repo, "/") || strings.HasSuffix(repo, "/") {
		return RefArg{}, problem.Newf(problem.KindBadRequest, "invalid repository ref %q, expected owner/name@ref", s)
	}
	arg := RefArg{Repository: repo, Ref: ref}
	switch {
	case strings.HasPrefix(ref, refTags):
		arg.Ref = strings.TrimPrefix(ref, refTags)
		arg.Tag = true
	case strings.HasPrefix(ref, refHeads):
		arg.Ref = strings.TrimPrefix(ref, refHeads)
	}
	return arg, nil
}

func (a RefArg) String() string {
	if a.Tag {
		return a.Repository + "@" + refTags + a.Ref
	}
	return a.Repository + "@" + a.Ref
}
