package server

import (
	"context"

	"lifemonitor/app/config"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/service"

	"github.com/pkg/errors"
)

// EngineServer is the worker process: it consumes the job queues and runs
// the event handlers and the deferred jobs.
type EngineServer struct {
	comps  *Components
	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngineServer() *EngineServer {
	return &EngineServer{}
}

func (e *EngineServer) Initialize() error {
	e.ctx, e.cancel = context.WithCancel(context.Background())
	comps, err := Build(e.ctx, config.Config)
	if err != nil {
		return err
	}
	if comps.Engine == nil {
		return errors.New("github integration not configured")
	}
	e.comps = comps
	return nil
}

func (e *EngineServer) Start() error {
	e.comps.Scheduler.Consume(e.ctx)
	<-e.ctx.Done()
	return nil
}

func (e *EngineServer) Stop() error {
	e.cancel()
	e.comps.Scheduler.Stop()
	service.CloseBrokers()
	log.Infof(nil, "Engine workers stopped")
	return nil
}

// SchedulerServer fires the periodic jobs. One of them must run per deployment.
type SchedulerServer struct {
	comps *Components
}

func NewSchedulerServer() *SchedulerServer {
	return &SchedulerServer{}
}

func (s *SchedulerServer) Initialize() error {
	comps, err := Build(context.Background(), config.Config)
	if err != nil {
		return err
	}
	if err = comps.Tasks.SchedulePeriodic(comps.Scheduler, comps.Config.Scheduler); err != nil {
		return err
	}
	s.comps = comps
	return nil
}

func (s *SchedulerServer) Start() error {
	s.comps.Scheduler.Start()
	log.Infof(nil, "Periodic jobs: %v", s.comps.Scheduler.Scheduled())
	return nil
}

func (s *SchedulerServer) Stop() error {
	s.comps.Scheduler.Stop()
	service.CloseBrokers()
	return nil
}
