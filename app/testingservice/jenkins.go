package testingservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"lifemonitor/pkg/problem"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type jenkins struct {
	url    string
	client *resty.Client
}

type jenkinsBuildRef struct {
	Number int64  `json:"number"`
	URL    string `json:"url"`
}

type jenkinsJob struct {
	Builds              []jenkinsBuildRef `json:"builds"`
	LastBuild           *jenkinsBuildRef  `json:"lastBuild"`
	LastSuccessfulBuild *jenkinsBuildRef  `json:"lastSuccessfulBuild"`
	LastFailedBuild     *jenkinsBuildRef  `json:"lastFailedBuild"`
}

type jenkinsBuild struct {
	Number    int64  `json:"number"`
	Result    string `json:"result"`
	Building  bool   `json:"building"`
	Timestamp int64  `json:"timestamp"`
	Duration  int64  `json:"duration"`
	URL       string `json:"url"`
	Actions   []struct {
		LastBuiltRevision *struct {
			SHA1 string `json:"SHA1"`
		} `json:"lastBuiltRevision"`
	} `json:"actions"`
}

func newJenkins(url string, credentials *Credentials, o *options) *jenkins {
	client := newRestyClient(o)
	if credentials != nil && credentials.Key != "" {
		client.SetBasicAuth(credentials.Key, credentials.Secret)
	}
	return &jenkins{url: url, client: client}
}

func (j *jenkins) Type() string { return TypeJenkins }

func (j *jenkins) URL() string { return j.url }

// JobName is the last path segment of the instance resource.
func JobName(resource string) (string, error) {
	trimmed := strings.Trim(resource, "/")
	name := trimmed[strings.LastIndex(trimmed, "/")+1:]
	if name == "" {
		return "", fmt.Errorf("unable to get the Jenkins job from the resource %q", resource)
	}
	return name, nil
}

func (j *jenkins) jobURL(instance Instance) (string, error) {
	name, err := JobName(instance.Resource)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/job/%s", j.url, name), nil
}

func (j *jenkins) job(ctx context.Context, instance Instance) (*jenkinsJob, error) {
	jobURL, err := j.jobURL(instance)
	if err != nil {
		return nil, serviceError(j, err)
	}
	resp, err := do(ctx, j.client.R(), jobURL+"/api/json")
	if err != nil {
		return nil, serviceError(j, err)
	}
	job := &jenkinsJob{}
	if err = json.Unmarshal(resp.Body(), job); err != nil {
		return nil, serviceError(j, errors.Wrap(err, "decode job info"))
	}
	return job, nil
}

func (j *jenkins) buildFromRef(ctx context.Context, instance Instance, ref *jenkinsBuildRef) (*Build, error) {
	if ref == nil {
		return nil, nil
	}
	return j.Build(ctx, instance, strconv.FormatInt(ref.Number, 10))
}

func (j *jenkins) LastBuild(ctx context.Context, instance Instance) (*Build, error) {
	job, err := j.job(ctx, instance)
	if err != nil {
		return nil, err
	}
	return j.buildFromRef(ctx, instance, job.LastBuild)
}

func (j *jenkins) LastPassedBuild(ctx context.Context, instance Instance) (*Build, error) {
	job, err := j.job(ctx, instance)
	if err != nil {
		return nil, err
	}
	return j.buildFromRef(ctx, instance, job.LastSuccessfulBuild)
}

func (j *jenkins) LastFailedBuild(ctx context.Context, instance Instance) (*Build, error) {
	job, err := j.job(ctx, instance)
	if err != nil {
		return nil, err
	}
	return j.buildFromRef(ctx, instance, job.LastFailedBuild)
}

func (j *jenkins) Builds(ctx context.Context, instance Instance, limit int) ([]*Build, error) {
	job, err := j.job(ctx, instance)
	if err != nil {
		return nil, err
	}
	builds := make([]*Build, 0, limit)
	for _, ref := range job.Builds {
		if len(builds) >= limit {
			break
		}
		b, err := j.buildFromRef(ctx, instance, &ref)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, nil
}

func (j *jenkins) Build(ctx context.Context, instance Instance, id string) (*Build, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, problem.Newf(problem.KindBadRequest, "invalid Jenkins build number %q", id)
	}
	jobURL, err := j.jobURL(instance)
	if err != nil {
		return nil, serviceError(j, err)
	}
	resp, err := do(ctx, j.client.R(), fmt.Sprintf("%s/%s/api/json", jobURL, id))
	if err == errNotFound {
		return nil, buildNotFound(instance, id)
	}
	if err != nil {
		return nil, serviceError(j, err)
	}
	raw := &jenkinsBuild{}
	if err = json.Unmarshal(resp.Body(), raw); err != nil {
		return nil, serviceError(j, errors.Wrap(err, "decode build info"))
	}
	build := &Build{
		ID:        strconv.FormatInt(raw.Number, 10),
		Number:    raw.Number,
		Timestamp: raw.Timestamp / 1000,
		Duration:  raw.Duration / 1000,
		Status:    jenkinsStatus(raw),
		URL:       raw.URL,
	}
	for _, a := range raw.Actions {
		if a.LastBuiltRevision != nil {
			build.Revision = a.LastBuiltRevision.SHA1
			break
		}
	}
	return build, nil
}

func jenkinsStatus(b *jenkinsBuild) Status {
	if b.Building {
		return StatusRunning
	}
	switch b.Result {
	case "SUCCESS":
		return StatusPassed
	case "FAILURE":
		return StatusFailed
	case "ABORTED":
		return StatusAborted
	}
	return StatusError
}

func (j *jenkins) BuildOutput(ctx context.Context, instance Instance, id string, offset, limit int) (string, error) {
	jobURL, err := j.jobURL(instance)
	if err != nil {
		return "", serviceError(j, err)
	}
	resp, err := do(ctx, j.client.R(), fmt.Sprintf("%s/%s/consoleText", jobURL, id))
	if err == errNotFound {
		return "", buildNotFound(instance, id)
	}
	if err != nil {
		return "", serviceError(j, err)
	}
	return sliceOutput(resp.String(), offset, limit)
}
