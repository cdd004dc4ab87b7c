// Package scheduler runs LifeMonitor's background work: periodic jobs fired
// by cron expressions and deferred jobs published on queues and executed by
// the workers consuming them.
package scheduler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/executor"
	"lifemonitor/app/metrics"
	"lifemonitor/app/notification"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/problem"
	"lifemonitor/pkg/queue"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

const (
	DefaultQueue = "default"

	StatusMessageType = "job_status"

	statusTTL = 24 * time.Hour
)

// StatusPublisher delivers job status updates to the listeners of a job.
type StatusPublisher interface {
	Publish(ctx context.Context, m *notification.Message) error
}

type Scheduler struct {
	broker    queue.Broker
	cache     *cache.Cache
	executor  executor.Executor
	publisher StatusPublisher
	cron      *cron.Cron
	workers   int
	now       func() time.Time
	retry     func(attempt int) time.Duration

	mu          sync.Mutex
	definitions map[string]*Definition
	scheduled   map[string]cron.EntryID
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type Option func(*Scheduler)

// WithWorkers sets the number of consumers of every queue.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = n }
}

func WithExecutor(e executor.Executor) Option {
	return func(s *Scheduler) { s.executor = e }
}

func WithPublisher(p StatusPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRetryDelay sets the wait before the given attempt of a failed job.
func WithRetryDelay(delay func(attempt int) time.Duration) Option {
	return func(s *Scheduler) { s.retry = delay }
}

func New(broker queue.Broker, c *cache.Cache, opts ...Option) *Scheduler {
	s := &Scheduler{
		broker:      broker,
		cache:       c,
		cron:        cron.New(cron.WithLogger(cronLogger{})),
		workers:     1,
		now:         time.Now,
		retry:       exponentialDelay,
		definitions: map[string]*Definition{},
		scheduled:   map[string]cron.EntryID{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = executor.GetExecutor("pool", s.workers)
	}
	return s
}

// exponentialDelay follows the default exponential policy of backoff.
func exponentialDelay(attempt int) time.Duration {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.RandomizationFactor = 0
	delay := policy.InitialInterval
	for i := 0; i < attempt; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

// Register makes a deferred job runnable through RunJob.
func (s *Scheduler) Register(def *Definition) {
	if def.Queue == "" {
		def.Queue = DefaultQueue
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.Name] = def
	log.Debugf(nil, "Registered job %s on queue %s", def.Name, def.Queue)
}

func (s *Scheduler) definition(name string) (*Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[name]
	return def, ok
}

// Schedule runs fn on the cron spec. Scheduling a name again replaces its entry.
func (s *Scheduler) Schedule(name, spec string, timeout time.Duration, fn executor.Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.scheduled[name]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.runScheduled(name, timeout, fn)
	})
	if err != nil {
		return errors.Wrapf(err, "schedule %s on %q", name, spec)
	}
	s.scheduled[name] = id
	log.Infof(nil, "Scheduled job %s on %q", name, spec)
	return nil
}

// Scheduled lists the names of the periodic jobs.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.scheduled))
	for n := range s.scheduled {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) runScheduled(name string, timeout time.Duration, fn executor.Func) {
	ctx := contextx.NewContext()
	ctx.Set(contextx.JobKey, name)
	log.Debugf(ctx, "Running scheduled job %s", name)
	if err := s.executor.Run(ctx, name, timeout, fn); err != nil {
		metrics.JobExecuted(name, StatusError)
		log.Errorf(ctx, "Scheduled job %s failed: %v", name, err)
		return
	}
	metrics.JobExecuted(name, StatusCompleted)
}

// RunJob publishes a deferred job and returns its id.
func (s *Scheduler) RunJob(ctx context.Context, name string, args ...interface{}) (string, error) {
	return s.RunJobFor(ctx, name, Listeners{}, args...)
}

// RunJobFor publishes a deferred job whose status changes are pushed to the
// given users and rooms.
func (s *Scheduler) RunJobFor(ctx context.Context, name string, to Listeners, args ...interface{}) (string, error) {
	def, ok := s.definition(name)
	if !ok {
		return "", problem.NotFound("job", name)
	}
	msg, err := newMessage(name, def, s.now(), to, args...)
	if err != nil {
		return "", err
	}
	s.setStatus(ctx, msg, StatusCreated, nil, nil)
	if err = s.publish(ctx, def, msg); err != nil {
		return "", err
	}
	log.Debugf(ctx, "Enqueued job %s (%s) on %s", name, msg.ID, def.Queue)
	return msg.ID, nil
}

func (s *Scheduler) publish(ctx context.Context, def *Definition, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.broker.Publish(ctx, def.Queue, body), "publish job %s", msg.Name)
}

// JobStatus returns the last known status of a job, nil when it is unknown.
func (s *Scheduler) JobStatus(ctx context.Context, id string) (*Status, error) {
	status := &Status{}
	ok, err := s.cache.Get(ctx, cache.JobKey(id), status)
	if err != nil || !ok {
		return nil, err
	}
	return status, nil
}

func (s *Scheduler) setStatus(ctx context.Context, msg *Message, state string, cause error, data map[string]interface{}) {
	status := &Status{
		ID:        msg.ID,
		Name:      msg.Name,
		Status:    state,
		Attempt:   msg.Attempt,
		Data:      data,
		Created:   msg.Created,
		Updated:   seconds(s.now()),
		Listeners: msg.Listeners,
	}
	if cause != nil {
		status.Error = cause.Error()
	}
	if err := s.cache.Set(ctx, cache.JobKey(msg.ID), status, statusTTL); err != nil {
		log.Warnf(ctx, "Unable to store the status of job %s: %v", msg.ID, err)
	}
	if s.publisher == nil || msg.Listeners.Empty() {
		return
	}
	payload := map[string]interface{}{"type": StatusMessageType, "job": status}
	if err := s.publisher.Publish(ctx, notification.NewMessage(payload, msg.IDs, msg.Rooms)); err != nil {
		log.Warnf(ctx, "Unable to publish the status of job %s: %v", msg.ID, err)
	}
}

// process is the queue handler: it runs a message and schedules its retry
// when the job fails and retries are left.
func (s *Scheduler) process(ctx context.Context, body []byte) error {
	msg := &Message{}
	if err := json.Unmarshal(body, msg); err != nil {
		log.Errorf(nil, "Dropping undecodable job message: %v", err)
		return err
	}
	def, ok := s.definition(msg.Name)
	if !ok {
		log.Errorf(msg.ID, "Dropping job %s: not registered", msg.Name)
		return problem.NotFound("job", msg.Name)
	}
	if msg.Expired(s.now()) {
		log.Warnf(msg.ID, "Dropping job %s: older than %.0fs", msg.Name, msg.MaxAge)
		s.setStatus(ctx, msg, StatusExpired, nil, nil)
		metrics.JobExecuted(msg.Name, StatusExpired)
		return nil
	}

	err := s.run(ctx, def, msg)
	if err == nil {
		return nil
	}
	if msg.Attempt >= msg.MaxRetries {
		return err
	}
	msg.Attempt++
	s.setStatus(ctx, msg, StatusRetrying, err, nil)
	delay := s.retry(msg.Attempt)
	log.Infof(msg.ID, "Retrying job %s in %s (attempt %d of %d)", msg.Name, delay, msg.Attempt, msg.MaxRetries)
	time.AfterFunc(delay, func() {
		if err := s.publish(context.Background(), def, msg); err != nil {
			log.Errorf(msg.ID, "Unable to retry job %s: %v", msg.Name, err)
		}
	})
	return err
}

// run executes a message within its own job context. The status is recorded
// when the job starts and when it ends, except for failures with retries left:
// process records those as retrying.
func (s *Scheduler) run(parent context.Context, def *Definition, msg *Message) (err error) {
	ctx := contextx.From(parent).Clone()
	ctx.Set(contextx.JobKey, msg.ID)
	s.setStatus(ctx, msg, StatusRunning, nil, nil)
	log.Debugf(ctx, "Starting job %s (attempt %d)", msg.Name, msg.Attempt)

	defer func() {
		state := StatusCompleted
		if err != nil {
			state = StatusError
			if msg.Attempt < msg.MaxRetries {
				state = StatusRetrying
			}
			log.Errorf(ctx, "Job %s failed: %v", msg.Name, err)
		}
		metrics.JobExecuted(msg.Name, state)
		log.Debugf(ctx, "Job %s %s", msg.Name, state)
		if state != StatusRetrying {
			s.setStatus(ctx, msg, state, err, nil)
		}
	}()

	return s.executor.Run(ctx, msg.Name, def.Timeout, func(jobCtx *contextx.Context) error {
		job := &Job{Message: msg}
		job.progress = func(state string, data map[string]interface{}) {
			s.setStatus(jobCtx, msg, state, nil, data)
		}
		return def.Handler(jobCtx, job)
	})
}

func (s *Scheduler) queues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for _, def := range s.definitions {
		if !seen[def.Queue] {
			seen[def.Queue] = true
			names = append(names, def.Queue)
		}
	}
	sort.Strings(names)
	return names
}

// Consume starts the workers of every queue with registered jobs.
func (s *Scheduler) Consume(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	for _, q := range s.queues() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go func(q string) {
				defer s.wg.Done()
				if err := s.broker.Consume(ctx, q, s.process); err != nil {
					log.Errorf(nil, "Consumer of queue %s stopped: %v", q, err)
				}
			}(q)
		}
		log.Infof(nil, "Consuming queue %s with %d workers", q, s.workers)
	}
}

// Start fires the periodic jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the periodic jobs and the consumers, waiting for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Tracef("cron", "%s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Errorf("cron", "%s %v: %v", msg, keysAndValues, err)
}
