package testingservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"lifemonitor/pkg/problem"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

const (
	DefaultGithubAPI = "https://api.github.com"
	githubPerPage    = 100
)

type github struct {
	url    string
	client *resty.Client
}

type githubRun struct {
	ID           int64      `json:"id"`
	RunNumber    int64      `json:"run_number"`
	RunAttempt   int64      `json:"run_attempt"`
	Status       string     `json:"status"`
	Conclusion   string     `json:"conclusion"`
	HeadSHA      string     `json:"head_sha"`
	HTMLURL      string     `json:"html_url"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RunStartedAt *time.Time `json:"run_started_at"`
}

// WorkflowResource is a parsed repos/{owner}/{repo}/actions/workflows/{workflow} resource.
type WorkflowResource struct {
	Repository string
	Workflow   string
}

func newGithub(baseURL string, credentials *Credentials, o *options) *github {
	if baseURL == "" {
		baseURL = DefaultGithubAPI
	}
	client := newRestyClient(o).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")
	if credentials != nil && credentials.Secret != "" {
		client.SetAuthToken(credentials.Secret)
	}
	return &github{url: baseURL, client: client}
}

func (g *github) Type() string { return TypeGithub }

func (g *github) URL() string { return g.url }

// ParseWorkflowResource validates a GitHub Actions workflow resource. Full URLs are accepted.
func ParseWorkflowResource(resource string) (*WorkflowResource, error) {
	p := resource
	if u, err := url.Parse(resource); err == nil && u.Scheme != "" {
		p = u.Path
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) != 6 || parts[0] != "repos" || parts[3] != "actions" || parts[4] != "workflows" || parts[5] == "" {
		return nil, problem.SpecificationNotValid(
			"unexpected format of link to Github workflow %q, expected 'repos/{owner}/{repo}/actions/workflows/{workflow}'", resource)
	}
	return &WorkflowResource{Repository: parts[1] + "/" + parts[2], Workflow: parts[5]}, nil
}

// CreatedFilter renders a GitHub date filter: ">=since", "<until" or "since..until".
func CreatedFilter(since, until *time.Time) string {
	const layout = "2006-01-02T15:04:05Z"
	switch {
	case since != nil && until != nil:
		return since.UTC().Format(layout) + ".." + until.UTC().Format(layout)
	case since != nil:
		return ">=" + since.UTC().Format(layout)
	case until != nil:
		return "<" + until.UTC().Format(layout)
	}
	return ""
}

type runFilter struct {
	status  string
	created string
	accept  func(*githubRun) bool
}

// runs pages through the workflow runs until limit matching runs are collected.
func (g *github) runs(ctx context.Context, instance Instance, filter runFilter, limit int) ([]*githubRun, error) {
	res, err := ParseWorkflowResource(instance.Resource)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/runs", g.url, res.Repository, url.PathEscape(res.Workflow))

	var result []*githubRun
	for page := 1; len(result) < limit; page++ {
		req := g.client.R().SetQueryParams(map[string]string{
			"per_page": strconv.Itoa(githubPerPage),
			"page":     strconv.Itoa(page),
		})
		if filter.status != "" {
			req.SetQueryParam("status", filter.status)
		}
		if filter.created != "" {
			req.SetQueryParam("created", filter.created)
		}
		resp, err := do(ctx, req, endpoint)
		if err != nil {
			return nil, serviceError(g, err)
		}
		var body struct {
			WorkflowRuns []*githubRun `json:"workflow_runs"`
		}
		if err = json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, serviceError(g, errors.Wrap(err, "decode workflow runs"))
		}
		for _, run := range body.WorkflowRuns {
			if filter.accept != nil && !filter.accept(run) {
				continue
			}
			result = append(result, run)
			if len(result) == limit {
				break
			}
		}
		if len(body.WorkflowRuns) < githubPerPage {
			break
		}
	}
	return result, nil
}

func (g *github) first(ctx context.Context, instance Instance, filter runFilter) (*Build, error) {
	runs, err := g.runs(ctx, instance, filter, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return convertRun(runs[0]), nil
}

func (g *github) LastBuild(ctx context.Context, instance Instance) (*Build, error) {
	return g.first(ctx, instance, runFilter{status: "completed"})
}

// PickLastBuild skips the runs still in progress, as LastBuild does.
func (g *github) PickLastBuild(builds []*Build) *Build {
	for _, b := range builds {
		if b != nil && !b.InProgress() {
			return b
		}
	}
	return nil
}

func (g *github) LastPassedBuild(ctx context.Context, instance Instance) (*Build, error) {
	return g.first(ctx, instance, runFilter{status: "success"})
}

func (g *github) LastFailedBuild(ctx context.Context, instance Instance) (*Build, error) {
	return g.first(ctx, instance, runFilter{status: "failure"})
}

func (g *github) Builds(ctx context.Context, instance Instance, limit int) ([]*Build, error) {
	return g.convertRuns(g.runs(ctx, instance, runFilter{}, limit))
}

func (g *github) BuildsSince(ctx context.Context, instance Instance, since time.Time, limit int) ([]*Build, error) {
	return g.convertRuns(g.runs(ctx, instance, runFilter{created: CreatedFilter(&since, nil)}, limit))
}

func (g *github) convertRuns(runs []*githubRun, err error) ([]*Build, error) {
	if err != nil {
		return nil, err
	}
	builds := make([]*Build, 0, len(runs))
	for _, r := range runs {
		builds = append(builds, convertRun(r))
	}
	return builds, nil
}

// ParseBuildID splits a "{run_id}_{run_attempt}" identifier; the attempt defaults to 0.
func ParseBuildID(id string) (run, attempt int64, err error) {
	runPart, attemptPart, found := strings.Cut(id, "_")
	if run, err = strconv.ParseInt(runPart, 10, 64); err != nil {
		return 0, 0, problem.Newf(problem.KindBadRequest, "invalid Github build id %q", id)
	}
	if found {
		if attempt, err = strconv.ParseInt(attemptPart, 10, 64); err != nil {
			return 0, 0, problem.Newf(problem.KindBadRequest, "invalid Github build id %q", id)
		}
	}
	return run, attempt, nil
}

func (g *github) runURL(res *WorkflowResource, run, attempt int64) string {
	u := fmt.Sprintf("%s/repos/%s/actions/runs/%d", g.url, res.Repository, run)
	if attempt > 0 {
		u = fmt.Sprintf("%s/attempts/%d", u, attempt)
	}
	return u
}

func (g *github) Build(ctx context.Context, instance Instance, id string) (*Build, error) {
	res, err := ParseWorkflowResource(instance.Resource)
	if err != nil {
		return nil, err
	}
	run, attempt, err := ParseBuildID(id)
	if err != nil {
		return nil, err
	}
	resp, err := do(ctx, g.client.R(), g.runURL(res, run, attempt))
	if err == errNotFound {
		return nil, buildNotFound(instance, id)
	}
	if err != nil {
		return nil, serviceError(g, err)
	}
	raw := &githubRun{}
	if err = json.Unmarshal(resp.Body(), raw); err != nil {
		return nil, serviceError(g, errors.Wrap(err, "decode workflow run"))
	}
	return convertRun(raw), nil
}

func (g *github) BuildOutput(ctx context.Context, instance Instance, id string, offset, limit int) (string, error) {
	res, err := ParseWorkflowResource(instance.Resource)
	if err != nil {
		return "", err
	}
	run, attempt, err := ParseBuildID(id)
	if err != nil {
		return "", err
	}
	if attempt == 0 {
		attempt = 1
	}
	resp, err := do(ctx, g.client.R(), g.runURL(res, run, attempt)+"/logs")
	if err == errNotFound {
		return "", buildNotFound(instance, id)
	}
	if err != nil {
		return "", serviceError(g, err)
	}
	output, err := readLogArchive(resp.Body())
	if err != nil {
		return "", serviceError(g, err)
	}
	return sliceOutput(output, offset, limit)
}

// readLogArchive concatenates the per-job logs found at the top of the archive.
// Archives holding only per-step files are read whole.
func readLogArchive(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "open log archive")
	}
	var top, all []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		all = append(all, f)
		if path.Dir(f.Name) == "." {
			top = append(top, f)
		}
	}
	files := top
	if len(files) == 0 {
		files = all
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var out strings.Builder
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			return "", errors.Wrapf(err, "open %s", f.Name)
		}
		_, err = io.Copy(&out, rc)
		rc.Close()
		if err != nil {
			return "", errors.Wrapf(err, "read %s", f.Name)
		}
	}
	return out.String(), nil
}

func convertRun(r *githubRun) *Build {
	attempt := r.RunAttempt
	if attempt == 0 {
		attempt = 1
	}
	started := r.CreatedAt
	if r.RunStartedAt != nil {
		started = *r.RunStartedAt
	}
	duration := int64(r.UpdatedAt.Sub(started).Seconds())
	if duration < 0 {
		duration = 0
	}
	return &Build{
		ID:        fmt.Sprintf("%d_%d", r.ID, attempt),
		Number:    r.RunNumber,
		Revision:  r.HeadSHA,
		Timestamp: started.Unix(),
		Duration:  duration,
		Status:    githubStatus(r),
		URL:       r.HTMLURL,
	}
}

func githubStatus(r *githubRun) Status {
	switch r.Status {
	case "in_progress":
		return StatusRunning
	case "queued", "waiting", "requested", "pending":
		return StatusWaiting
	}
	switch r.Conclusion {
	case "success":
		return StatusPassed
	case "cancelled":
		return StatusAborted
	case "failure":
		return StatusFailed
	}
	return StatusError
}
