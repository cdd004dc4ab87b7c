package testingservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	travisDotOrg = "https://api.travis-ci.org"
	travisDotCom = "https://api.travis-ci.com"
)

var (
	travisRepoPattern   = regexp.MustCompile(`^(/)?(repo/)?(github/)?(.+)`)
	travisBuildsPattern = regexp.MustCompile(`/builds?$`)
)

type travis struct {
	url    string
	api    string
	client *resty.Client
}

type travisBuild struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	State      string          `json:"state"`
	Duration   int64           `json:"duration"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
	Href       string          `json:"@href"`
	Commit     json.RawMessage `json:"commit"`
}

func newTravis(baseURL string, credentials *Credentials, o *options) *travis {
	client := newRestyClient(o).SetHeader("Travis-API-Version", "3")
	if credentials != nil && credentials.Secret != "" {
		client.SetHeader("Authorization", "token "+credentials.Secret)
	}
	return &travis{url: baseURL, api: travisAPIURL(baseURL), client: client}
}

func travisAPIURL(baseURL string) string {
	switch baseURL {
	case "https://travis-ci.org":
		return travisDotOrg
	case "https://travis-ci.com":
		return travisDotCom
	}
	return baseURL
}

func (t *travis) Type() string { return TypeTravis }

func (t *travis) URL() string { return t.url }

// RepoID extracts the URL-escaped repository slug from a Travis resource.
func RepoID(resource string) (string, error) {
	trimmed := travisBuildsPattern.ReplaceAllString(strings.Trim(resource, "/"), "")
	repo := travisRepoPattern.ReplaceAllString(trimmed, "$4")
	if repo == "" {
		return "", fmt.Errorf("unable to get the Travis repository from the resource %q", resource)
	}
	return url.PathEscape(repo), nil
}

func (t *travis) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	req := t.client.R()
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	resp, err := do(ctx, req, t.api+path)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func (t *travis) list(ctx context.Context, instance Instance, limit int, state string) ([]*Build, error) {
	repo, err := RepoID(instance.Resource)
	if err != nil {
		return nil, serviceError(t, err)
	}
	params := map[string]string{"limit": strconv.Itoa(limit), "sort_by": "number:desc"}
	if state != "" {
		params["state"] = state
	}
	var page struct {
		Builds []*travisBuild `json:"builds"`
	}
	if err = t.get(ctx, fmt.Sprintf("/repo/%s/builds", repo), params, &page); err != nil {
		return nil, serviceError(t, err)
	}
	builds := make([]*Build, 0, len(page.Builds))
	for _, b := range page.Builds {
		builds = append(builds, t.convert(b))
	}
	return builds, nil
}

func (t *travis) last(ctx context.Context, instance Instance, state string) (*Build, error) {
	builds, err := t.list(ctx, instance, 1, state)
	if err != nil || len(builds) == 0 {
		return nil, err
	}
	return builds[0], nil
}

func (t *travis) LastBuild(ctx context.Context, instance Instance) (*Build, error) {
	return t.last(ctx, instance, "")
}

func (t *travis) LastPassedBuild(ctx context.Context, instance Instance) (*Build, error) {
	return t.last(ctx, instance, "passed")
}

func (t *travis) LastFailedBuild(ctx context.Context, instance Instance) (*Build, error) {
	return t.last(ctx, instance, "failed")
}

func (t *travis) Builds(ctx context.Context, instance Instance, limit int) ([]*Build, error) {
	return t.list(ctx, instance, limit, "")
}

func (t *travis) Build(ctx context.Context, instance Instance, id string) (*Build, error) {
	raw := &travisBuild{}
	err := t.get(ctx, "/build/"+id, nil, raw)
	if err == errNotFound {
		return nil, buildNotFound(instance, id)
	}
	if err != nil {
		return nil, serviceError(t, err)
	}
	return t.convert(raw), nil
}

func (t *travis) BuildOutput(ctx context.Context, instance Instance, id string, offset, limit int) (string, error) {
	var jobs struct {
		Jobs []struct {
			ID int64 `json:"id"`
		} `json:"jobs"`
	}
	err := t.get(ctx, fmt.Sprintf("/build/%s/jobs", id), nil, &jobs)
	if err == errNotFound {
		return "", buildNotFound(instance, id)
	}
	if err != nil {
		return "", serviceError(t, err)
	}

	var output strings.Builder
	for _, job := range jobs.Jobs {
		if limit > 0 && output.Len() >= offset+limit {
			break
		}
		var log struct {
			Content string `json:"content"`
		}
		err = t.get(ctx, fmt.Sprintf("/job/%d/log", job.ID), nil, &log)
		if err == errNotFound {
			return "", buildNotFound(instance, id)
		}
		if err != nil {
			return "", serviceError(t, err)
		}
		output.WriteString(log.Content)
	}
	return sliceOutput(output.String(), offset, limit)
}

func (t *travis) convert(raw *travisBuild) *Build {
	number, _ := strconv.ParseInt(raw.Number, 10, 64)
	build := &Build{
		ID:       strconv.FormatInt(raw.ID, 10),
		Number:   number,
		Duration: raw.Duration,
		Status:   travisStatus(raw),
		URL:      t.url + raw.Href,
		Revision: travisRevision(raw.Commit),
	}
	if ts, err := time.Parse(time.RFC3339, raw.StartedAt); err == nil {
		build.Timestamp = ts.Unix()
	}
	return build
}

func travisRevision(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var sha string
	if err := json.Unmarshal(raw, &sha); err == nil {
		return sha
	}
	var commit struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(raw, &commit); err == nil {
		return commit.SHA
	}
	return ""
}

func travisStatus(b *travisBuild) Status {
	switch b.State {
	case "created", "received":
		return StatusWaiting
	case "started":
		return StatusRunning
	}
	if b.FinishedAt == "" {
		return StatusRunning
	}
	switch b.State {
	case "passed":
		return StatusPassed
	case "failed":
		return StatusFailed
	case "canceled":
		return StatusAborted
	}
	return StatusError
}
