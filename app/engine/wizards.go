package engine

import (
	"context"
	"strings"

	"lifemonitor/app/github"
	"lifemonitor/app/issues"
	"lifemonitor/app/repository"
	"lifemonitor/app/wizard"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
)

// pullRequestPublisher proposes the files of a wizard update step on the
// branch named after the step.
type pullRequestPublisher struct {
	client GithubClient
	repo   *repository.Repository
}

func (p *pullRequestPublisher) Publish(ctx context.Context, step *wizard.Step, files []repository.File) (string, error) {
	pr, err := openPullRequest(ctx, p.client, p.repo, step.ID(), step.ID(), step.Description, files, step.Title)
	if err != nil {
		return "", err
	}
	return pr.HTMLURL, nil
}

// wizardOf finds the wizard helping to solve a bot issue.
func (e *Engine) wizardOf(issue *github.Issue) (*issues.Issue, *wizard.Definition) {
	if issue == nil || issue.User.Login != e.bot {
		return nil, nil
	}
	i := issues.ByName(issue.Title)
	if i == nil {
		return nil, nil
	}
	return i, wizard.ForIssue(i.Key)
}

func (e *Engine) resume(ctx *contextx.Context, client GithubClient, event *github.Event, d *wizard.Definition) (*wizard.Wizard, error) {
	io := &wizard.IssueIO{Client: client, Repository: event.FullName(), Issue: event.Issue.Number}
	return wizard.Resume(ctx, d, io, e.bot)
}

// workingCopy is the default branch of the event repository. The publisher
// only needs its coordinates, so a failed download leaves the snapshot nil.
func (e *Engine) workingCopy(ctx *contextx.Context, client GithubClient, gh *github.Repository) (*repository.Repository, *pullRequestPublisher) {
	if gh.DefaultBranch == "" {
		if info, err := client.Repository(ctx, gh.FullName); err == nil {
			gh = info
		}
	}
	meta := &repository.Repository{FullName: gh.FullName, Owner: gh.Owner.Login, Ref: gh.DefaultBranch, DefaultBranch: gh.DefaultBranch}
	pub := &pullRequestPublisher{client: client, repo: meta}
	repo, err := e.snapshot(ctx, client, gh, gh.DefaultBranch, "")
	if err != nil {
		log.Warnf(ctx, "Unable to download %s: %v", gh.FullName, err)
		return nil, pub
	}
	return repo, pub
}

func (e *Engine) onIssues(ctx *contextx.Context, event *github.Event) error {
	if event.Repository == nil {
		return nil
	}
	issue, d := e.wizardOf(event.Issue)
	if issue == nil {
		return nil
	}
	client, err := e.client(event)
	if err != nil {
		return err
	}
	switch event.Action {
	case "opened", "reopened":
		if d == nil {
			return nil
		}
		w, err := e.resume(ctx, client, event, d)
		if err != nil {
			return err
		}
		repo, pub := e.workingCopy(ctx, client, event.Repository)
		step, err := w.Start(ctx, repo, pub)
		if err != nil {
			return err
		}
		if step != nil {
			log.Infof(ctx, "Wizard %s started on %s#%d", d.Title, event.FullName(), event.Issue.Number)
		}
	case "closed":
		branches := []string{issue.ID()}
		if d != nil {
			for _, s := range d.Steps {
				if !s.IsQuestion() {
					branches = append(branches, s.ID())
				}
			}
		}
		for _, b := range branches {
			deleted, err := client.DeleteBranch(ctx, event.FullName(), b)
			if err != nil {
				return err
			}
			if deleted {
				log.Infof(ctx, "Support branch %s of %s deleted", b, event.FullName())
			}
		}
	}
	return nil
}

func (e *Engine) onIssueComment(ctx *contextx.Context, event *github.Event) error {
	if event.Action != "created" || event.Repository == nil || event.Comment == nil {
		return nil
	}
	if event.Comment.User.Login == e.bot {
		return nil
	}
	_, d := e.wizardOf(event.Issue)
	if d == nil {
		return nil
	}
	client, err := e.client(event)
	if err != nil {
		return err
	}
	w, err := e.resume(ctx, client, event, d)
	if err != nil {
		return err
	}
	if w.Current == nil || !w.Current.IsQuestion() {
		return nil
	}
	repo, pub := e.workingCopy(ctx, client, event.Repository)
	next, err := w.Reply(ctx, *event.Comment, repo, pub)
	if err != nil {
		return err
	}
	if next != nil {
		log.Debugf(ctx, "Wizard %s on %s#%d moved to step %s", d.Title, event.FullName(), event.Issue.Number, next.Key)
	}
	return nil
}

// onPullRequest deletes the support branch of a bot pull request closed without merging.
func (e *Engine) onPullRequest(ctx *contextx.Context, event *github.Event) error {
	pr := event.PullRequest
	if event.Action != "closed" || pr == nil || pr.Merged || event.Repository == nil {
		return nil
	}
	head := pr.Head.Ref
	if !strings.HasPrefix(head, github.IssueBranchPrefix) && !strings.HasPrefix(head, github.WizardBranchPrefix) {
		return nil
	}
	client, err := e.client(event)
	if err != nil {
		return err
	}
	deleted, err := client.DeleteBranch(ctx, event.FullName(), head)
	if err == nil && deleted {
		log.Infof(ctx, "Branch %s of the closed pull request #%d deleted", head, pr.Number)
	}
	return err
}
