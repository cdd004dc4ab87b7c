package engine

import (
	"context"

	"lifemonitor/app/expressions/jinja"
	"lifemonitor/app/github"
	"lifemonitor/app/issues"
	"lifemonitor/app/repository"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
)

const issueTemplate = `{{ description }}
{% if messages %}
{% for m in messages %}- {{ m }}
{% endfor %}{% endif %}
<!-- {{ id }} -->`

func issueBody(f *issues.Finding) string {
	body, err := jinja.Render(issueTemplate, map[string]interface{}{
		"description": f.Issue.Description,
		"messages":    f.Messages,
		"id":          f.Issue.ID(),
	})
	if err != nil {
		log.Warnf(nil, "Unable to render the body of issue %s: %v", f.Issue.Key, err)
		return f.Issue.Description
	}
	return body
}

// remediate checks the repository and reports what it finds: issues without
// changes are opened on GitHub, the others become pull requests from the
// issue branch. Failures are logged.
func (e *Engine) remediate(ctx *contextx.Context, client GithubClient, repo *repository.Repository, d refDecision) {
	checker := issues.Checker{Include: d.Include, Exclude: d.Exclude}
	title := repo.FullName
	if d.Config != nil && d.Config.Name != "" {
		title = d.Config.Name
	}
	report := checker.Check(repo, issues.Options{
		Title:      title,
		MainBranch: repo.DefaultBranch,
		Registries: d.Registries,
	})
	if !report.FoundIssues() {
		log.Debugf(ctx, "No issue found in %s@%s", repo.FullName, repo.Ref)
		return
	}
	open, err := client.Issues(ctx, repo.FullName, "open", e.bot)
	if err != nil {
		log.Errorf(ctx, "Unable to list the issues of %s: %v", repo.FullName, err)
		return
	}
	opened := map[string]bool{}
	for _, i := range open {
		opened[i.Title] = true
	}
	for _, f := range report.Found {
		if f.Issue.HasChanges(f) {
			pr, err := openPullRequest(ctx, client, repo, f.Issue.ID(), f.Issue.Name, issueBody(f), f.Changes, f.Issue.Name)
			if err != nil {
				log.Errorf(ctx, "Unable to propose the changes fixing %q on %s: %v", f.Issue.Name, repo.FullName, err)
				continue
			}
			log.Infof(ctx, "Changes fixing %q proposed on %s", f.Issue.Name, pr.HTMLURL)
			continue
		}
		if opened[f.Issue.Name] {
			continue
		}
		issue, err := client.CreateIssue(ctx, repo.FullName, f.Issue.Name, issueBody(f), f.Issue.Labels)
		if err != nil {
			log.Errorf(ctx, "Unable to open the issue %q on %s: %v", f.Issue.Name, repo.FullName, err)
			continue
		}
		opened[f.Issue.Name] = true
		log.Infof(ctx, "Issue %q opened on %s (#%d)", f.Issue.Name, repo.FullName, issue.Number)
	}
}

// openPullRequest pushes files to branch, creating it from the default branch,
// and opens the pull request unless one is already open.
func openPullRequest(ctx context.Context, client GithubClient, repo *repository.Repository,
	branch, title, body string, files []repository.File, message string) (*github.PullRequest, error) {
	base := repo.DefaultBranch
	pr, err := client.PullRequest(ctx, repo.FullName, repo.Owner, branch)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		sha, err := client.BranchSHA(ctx, repo.FullName, base)
		if err != nil {
			return nil, err
		}
		if err = client.CreateBranch(ctx, repo.FullName, branch, sha); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		if err := client.PutFile(ctx, repo.FullName, branch, f.Path, f.Content, message+": "+f.Path); err != nil {
			return nil, err
		}
	}
	if pr != nil {
		return pr, nil
	}
	return client.CreatePullRequest(ctx, repo.FullName, title, branch, base, body)
}
