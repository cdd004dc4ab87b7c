package scheduler

import (
	"context"
	"time"

	"lifemonitor/app/builds"
	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	"lifemonitor/app/github"
	"lifemonitor/app/metrics"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
)

const (
	JobHeartbeat          = "heartbeat"
	JobUpdateMetrics      = "update_metrics"
	JobCheckInstallations = "check_installations"
	JobBuildsSync         = "builds_sync"
	JobGithubEvent        = "githubEventHandler"
	JobRegisterWorkflow   = "register_workflow"
	JobPutFile            = "put_file"

	QueueGithub = "github"
)

// EventHandler processes GitHub events. *engine.Engine implements it.
type EventHandler interface {
	Handle(ctx *contextx.Context, event *github.Event)
	CheckInstallations(ctx *contextx.Context, installations []github.Installation) error
	RegisterRef(ctx *contextx.Context, installation int64, fullName, ref string, isTag bool) (string, error)
	PutFile(ctx *contextx.Context, installation int64, fullName, branch, path string, content []byte, message string) error
}

// InstallationLister lists the installations of the GitHub App. *github.App implements it.
type InstallationLister interface {
	Installations(ctx context.Context) ([]github.Installation, error)
}

// Syncer refreshes the builds of every test instance. *builds.Synchronizer implements it.
type Syncer interface {
	Sync(ctx *contextx.Context) (*builds.Report, error)
}

type Tasks struct {
	Engine        EventHandler
	Installations InstallationLister
	Builds        Syncer
	Cache         *cache.Cache
}

// RegisterWorkflowArg selects the ref of a repository to register.
type RegisterWorkflowArg struct {
	Installation int64  `json:"installation"`
	Repository   string `json:"repository"`
	Ref          string `json:"ref"`
	Tag          bool   `json:"tag,omitempty"`
}

// PutFileArg is a file to commit on a branch.
type PutFileArg struct {
	Installation int64  `json:"installation"`
	Repository   string `json:"repository"`
	Branch       string `json:"branch"`
	Path         string `json:"path"`
	Content      []byte `json:"content"`
	Message      string `json:"message"`
}

// Heartbeat records the time of the last scheduler tick.
func Heartbeat(ctx *contextx.Context, c *cache.Cache) error {
	return c.Set(ctx, cache.HeartbeatKey, time.Now().Unix(), cache.Forever)
}

// LastHeartbeat returns the time of the last tick, zero when none was recorded.
func LastHeartbeat(ctx context.Context, c *cache.Cache) (time.Time, error) {
	var ts int64
	ok, err := c.Get(ctx, cache.HeartbeatKey, &ts)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return time.Unix(ts, 0), nil
}

// RegisterDeferred registers the queue jobs. Workers and producers both need them.
func (t *Tasks) RegisterDeferred(s *Scheduler) {
	s.Register(&Definition{
		Name:       JobGithubEvent,
		Queue:      QueueGithub,
		MaxRetries: 0,
		MaxAge:     30 * time.Second,
		Handler: func(ctx *contextx.Context, job *Job) error {
			event := &github.Event{}
			if err := job.Arg(0, event); err != nil {
				return err
			}
			if ctx.RequestID() == "" && event.ID != "" {
				ctx.Set(contextx.RequestIDKey, event.ID)
			}
			t.Engine.Handle(ctx, event)
			return nil
		},
	})
	s.Register(&Definition{
		Name:       JobRegisterWorkflow,
		Queue:      QueueGithub,
		MaxRetries: 3,
		MaxAge:     time.Hour,
		Timeout:    10 * time.Minute,
		Handler: func(ctx *contextx.Context, job *Job) error {
			arg := RegisterWorkflowArg{}
			if err := job.Arg(0, &arg); err != nil {
				return err
			}
			job.Progress("registering", map[string]interface{}{"repository": arg.Repository, "ref": arg.Ref})
			outcome, err := t.Engine.RegisterRef(ctx, arg.Installation, arg.Repository, arg.Ref, arg.Tag)
			if err != nil {
				return err
			}
			job.Progress("registered", map[string]interface{}{"repository": arg.Repository, "ref": arg.Ref, "outcome": outcome})
			log.Infof(ctx, "Registration of %s@%s: %s", arg.Repository, arg.Ref, outcome)
			return nil
		},
	})
	s.Register(&Definition{
		Name:       JobPutFile,
		Queue:      QueueGithub,
		MaxRetries: 3,
		MaxAge:     time.Hour,
		Timeout:    time.Minute,
		Handler: func(ctx *contextx.Context, job *Job) error {
			arg := PutFileArg{}
			if err := job.Arg(0, &arg); err != nil {
				return err
			}
			return t.Engine.PutFile(ctx, arg.Installation, arg.Repository, arg.Branch, arg.Path, arg.Content, arg.Message)
		},
	})
}

// SchedulePeriodic adds the cron jobs configured in cfg.
func (t *Tasks) SchedulePeriodic(s *Scheduler, cfg config.SchedulerConfig) error {
	if err := s.Schedule(JobHeartbeat, cfg.Heartbeat, time.Minute, func(ctx *contextx.Context) error {
		return Heartbeat(ctx, t.Cache)
	}); err != nil {
		return err
	}
	if err := s.Schedule(JobUpdateMetrics, cfg.UpdateMetrics, time.Minute, metrics.Update); err != nil {
		return err
	}
	if t.Installations != nil && t.Engine != nil {
		if err := s.Schedule(JobCheckInstallations, cfg.CheckInstallations, 30*time.Minute, func(ctx *contextx.Context) error {
			installations, err := t.Installations.Installations(ctx)
			if err != nil {
				return err
			}
			return t.Engine.CheckInstallations(ctx, installations)
		}); err != nil {
			return err
		}
	}
	if t.Builds != nil && cfg.BuildsSync != "" {
		if err := s.Schedule(JobBuildsSync, cfg.BuildsSync, 30*time.Minute, func(ctx *contextx.Context) error {
			_, err := t.Builds.Sync(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}
