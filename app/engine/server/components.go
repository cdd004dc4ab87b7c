package server

import (
	"context"

	"lifemonitor/app/auth"
	"lifemonitor/app/builds"
	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	"lifemonitor/app/db"
	"lifemonitor/app/engine"
	"lifemonitor/app/github"
	"lifemonitor/app/notification"
	"lifemonitor/app/objects"
	"lifemonitor/app/registry"
	"lifemonitor/app/scheduler"
	"lifemonitor/app/storage"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/service"

	"github.com/pkg/errors"
)

// Components are the services shared by the LifeMonitor processes. App and
// Engine are nil when the GitHub integration is not configured.
type Components struct {
	Config    config.Configuration
	Cache     *cache.Cache
	App       *github.App
	Engine    *engine.Engine
	Resolver  *builds.Resolver
	Syncer    *builds.Synchronizer
	Bus       notification.Bus
	Scheduler *scheduler.Scheduler
	Tasks     *scheduler.Tasks
}

func InitDB(cfg config.DatabaseConfig) error {
	return db.Init(&db.Config{
		Connection:  cfg.Connection,
		Debug:       cfg.Debug,
		PoolSize:    cfg.PoolSize,
		IdleTimeout: cfg.IdleTimeout,
	})
}

// Build opens the database, the cache and the broker of cfg and assembles the
// engine and the scheduler on top of them. Deferred jobs are registered so
// every process can both enqueue and run them.
func Build(ctx context.Context, cfg config.Configuration) (*Components, error) {
	if err := InitDB(cfg.Database); err != nil {
		return nil, errors.Wrap(err, "init database")
	}
	if err := objects.SyncRegistries(contextx.From(ctx), cfg.Registries); err != nil {
		log.Warnf(nil, "Unable to sync the configured registries: %v", err)
	}
	c, err := cache.NewFromConfig(cfg.Cache)
	if err != nil {
		return nil, errors.Wrap(err, "open cache")
	}
	ttl := builds.TTLsFromConfig(cfg.Cache)
	resolver := builds.NewResolver(c, ttl, builds.DefaultFactory)
	comps := &Components{
		Config:   cfg,
		Cache:    c,
		Resolver: resolver,
		Syncer:   builds.NewSynchronizer(c, resolver, ttl, cfg.Sync),
		Bus:      notification.NewBusFromConfig(cfg.Cache, cfg.Notifications),
	}

	if cfg.Github.Configured() {
		app, err := github.NewAppFromConfig(cfg.Github)
		if err != nil {
			return nil, err
		}
		comps.App = app
		comps.Engine = engine.New(engine.AppClients(app), c, engineOptions(ctx, cfg, comps)...)
	} else {
		log.Warnf(nil, "GitHub integration not configured: events will not be processed")
	}

	broker, err := service.GetBroker(cfg.Messaging.Connection, cfg.Messaging.Exchange)
	if err != nil {
		return nil, errors.Wrap(err, "open broker")
	}
	comps.Scheduler = scheduler.New(broker, c,
		scheduler.WithWorkers(cfg.Messaging.Workers),
		scheduler.WithPublisher(comps.Bus),
	)
	comps.Tasks = &scheduler.Tasks{Builds: comps.Syncer, Cache: c}
	if comps.Engine != nil {
		comps.Tasks.Engine = comps.Engine
		comps.Tasks.Installations = comps.App
		comps.Tasks.RegisterDeferred(comps.Scheduler)
	}
	return comps, nil
}

func engineOptions(ctx context.Context, cfg config.Configuration, comps *Components) []engine.Option {
	opts := []engine.Option{
		engine.WithBot(cfg.Github.Bot),
		engine.WithInstance(cfg.API.InstanceName),
		engine.WithRegistries(registry.NewSet(cfg.Registries)),
		engine.WithRefresher(comps.Syncer),
		engine.WithNotifier(notification.NewNotifier(comps.Bus)),
		engine.WithTokens(auth.NewManagerFromConfig(comps.Cache, cfg.Registries)),
	}
	archive, err := storage.NewArchiveFromConfig(ctx, cfg.Storage, comps.Cache)
	if err != nil {
		log.Warnf(nil, "Crate archiving disabled: %v", err)
	} else {
		opts = append(opts, engine.WithArchiver(archive))
	}
	return opts
}
