// Package builds caches test builds fetched from the testing services and keeps
// the cache in step with them.
package builds

import (
	"context"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	ts "lifemonitor/app/testingservice"
)

const (
	OpLastBuild       = "last_build"
	OpLastPassedBuild = "last_passed_build"
	OpLastFailedBuild = "last_failed_build"
	OpBuilds          = "builds"
	OpBuild           = "build"
	OpOutput          = "output"
)

type TTLs struct {
	Default   time.Duration
	LastBuild time.Duration
	Build     time.Duration
}

func TTLsFromConfig(cfg config.CacheConfig) TTLs {
	return TTLs{
		Default:   time.Duration(cfg.DefaultTimeout) * time.Second,
		LastBuild: time.Duration(cfg.LastBuildTimeout) * time.Second,
		Build:     time.Duration(cfg.BuildTimeout) * time.Second,
	}
}

// CachedService decorates a Service with the build cache. Builds still in
// progress are never stored as single builds.
type CachedService struct {
	ts.Service
	cache *cache.Cache
	ttl   TTLs
}

func NewCachedService(svc ts.Service, c *cache.Cache, ttl TTLs) *CachedService {
	return &CachedService{Service: svc, cache: c, ttl: ttl}
}

func (s *CachedService) key(instance ts.Instance, op string, args ...interface{}) string {
	return cache.BuildKey(s.Type(), s.URL(), instance.Resource, op, args...)
}

func (s *CachedService) Unwrap() ts.Service {
	return s.Service
}

func (s *CachedService) build(ctx context.Context, key string, ttl time.Duration,
	fetch func(ctx context.Context) (*ts.Build, error), cacheable func(interface{}) bool) (*ts.Build, error) {
	var b *ts.Build
	err := s.cache.GetOrSet(ctx, key, ttl, &b, func(ctx context.Context) (interface{}, error) {
		return fetch(ctx)
	}, cacheable)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *CachedService) LastBuild(ctx context.Context, instance ts.Instance) (*ts.Build, error) {
	return s.build(ctx, s.key(instance, OpLastBuild), s.ttl.LastBuild, func(ctx context.Context) (*ts.Build, error) {
		return s.Service.LastBuild(ctx, instance)
	}, nil)
}

func (s *CachedService) LastPassedBuild(ctx context.Context, instance ts.Instance) (*ts.Build, error) {
	return s.build(ctx, s.key(instance, OpLastPassedBuild), s.ttl.LastBuild, func(ctx context.Context) (*ts.Build, error) {
		return s.Service.LastPassedBuild(ctx, instance)
	}, nil)
}

func (s *CachedService) LastFailedBuild(ctx context.Context, instance ts.Instance) (*ts.Build, error) {
	return s.build(ctx, s.key(instance, OpLastFailedBuild), s.ttl.LastBuild, func(ctx context.Context) (*ts.Build, error) {
		return s.Service.LastFailedBuild(ctx, instance)
	}, nil)
}

func (s *CachedService) Builds(ctx context.Context, instance ts.Instance, limit int) ([]*ts.Build, error) {
	var list []*ts.Build
	err := s.cache.GetOrSet(ctx, s.key(instance, OpBuilds, limit), s.ttl.Default, &list,
		func(ctx context.Context) (interface{}, error) {
			return s.Service.Builds(ctx, instance, limit)
		}, nil)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func completed(v interface{}) bool {
	b, ok := v.(*ts.Build)
	return ok && b != nil && !b.InProgress()
}

func (s *CachedService) Build(ctx context.Context, instance ts.Instance, id string) (*ts.Build, error) {
	return s.build(ctx, s.key(instance, OpBuild, id), s.ttl.Build, func(ctx context.Context) (*ts.Build, error) {
		return s.Service.Build(ctx, instance, id)
	}, completed)
}

// BuildOutput caches the output of completed builds only.
func (s *CachedService) BuildOutput(ctx context.Context, instance ts.Instance, id string, offset, limit int) (string, error) {
	b, err := s.Build(ctx, instance, id)
	if err != nil {
		return "", err
	}
	if b.InProgress() {
		return s.Service.BuildOutput(ctx, instance, id, offset, limit)
	}
	var out string
	err = s.cache.GetOrSet(ctx, s.key(instance, OpOutput, id, offset, limit), s.ttl.Default, &out,
		func(ctx context.Context) (interface{}, error) {
			return s.Service.BuildOutput(ctx, instance, id, offset, limit)
		}, nil)
	return out, err
}

// Invalidate drops every cached value of instance.
func (s *CachedService) Invalidate(ctx context.Context, instance ts.Instance) error {
	return s.cache.DeletePrefix(ctx, cache.InstanceKey(s.Type(), s.URL(), instance.Resource))
}
