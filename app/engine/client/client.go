// Package client enqueues engine work from outside the worker processes.
package client

import (
	"context"
	"time"

	"lifemonitor/app/scheduler"
	"lifemonitor/pkg/log"

	"github.com/pkg/errors"
)

// Producer enqueues jobs and reports their status. *scheduler.Scheduler implements it.
type Producer interface {
	RunJob(ctx context.Context, name string, args ...interface{}) (string, error)
	RunJobFor(ctx context.Context, name string, to scheduler.Listeners, args ...interface{}) (string, error)
	JobStatus(ctx context.Context, id string) (*scheduler.Status, error)
}

type Client struct {
	jobs Producer
	poll time.Duration
}

func NewClient(jobs Producer) *Client {
	return &Client{jobs: jobs, poll: time.Second}
}

// RegisterWorkflow asks a worker to register or update the workflow found on
// ref. The users in notify receive the status changes of the job.
func (c *Client) RegisterWorkflow(ctx context.Context, installation int64, ref RefArg, notify ...string) (string, error) {
	to := scheduler.Listeners{IDs: notify}
	id, err := c.jobs.RunJobFor(ctx, scheduler.JobRegisterWorkflow, to, scheduler.RegisterWorkflowArg{
		Installation: installation,
		Repository:   ref.Repository,
		Ref:          ref.Ref,
		Tag:          ref.Tag,
	})
	if err != nil {
		return "", errors.Wrapf(err, "enqueue registration of %s", ref)
	}
	log.Infof(nil, "Registration of %s enqueued as job %s", ref, id)
	return id, nil
}

// PutFile asks a worker to commit content at path on branch.
func (c *Client) PutFile(ctx context.Context, installation int64, repository, branch, path string, content []byte, message string) (string, error) {
	return c.jobs.RunJob(ctx, scheduler.JobPutFile, scheduler.PutFileArg{
		Installation: installation,
		Repository:   repository,
		Branch:       branch,
		Path:         path,
		Content:      content,
		Message:      message,
	})
}

// Wait polls the status of job id until it completes, fails or expires.
func (c *Client) Wait(ctx context.Context, id string) (*scheduler.Status, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		status, err := c.jobs.JobStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status != nil {
			switch status.Status {
			case scheduler.StatusCompleted, scheduler.StatusError, scheduler.StatusExpired:
				return status, nil
			}
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
