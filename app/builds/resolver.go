package builds

import (
	"fmt"

	"lifemonitor/app/cache"
	"lifemonitor/app/objects"
	ts "lifemonitor/app/testingservice"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/problem"
)

// Factory builds the adapter of a testing service.
type Factory func(kind, url string, credentials *ts.Credentials) (ts.Service, error)

func DefaultFactory(kind, url string, credentials *ts.Credentials) (ts.Service, error) {
	return ts.New(kind, url, credentials)
}

// Resolver maps test instances to their adapters.
type Resolver struct {
	cache   *cache.Cache
	ttl     TTLs
	factory Factory
}

func NewResolver(c *cache.Cache, ttl TTLs, factory Factory) *Resolver {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Resolver{cache: c, ttl: ttl, factory: factory}
}

func InstanceOf(i *objects.TestInstance) ts.Instance {
	return ts.Instance{ID: i.ID, Name: i.Name, Resource: i.Resource}
}

// Service returns the uncached adapter of instance.
func (r *Resolver) Service(ctx *contextx.Context, instance *objects.TestInstance) (ts.Service, error) {
	svc, err := instance.GetTestingService(ctx)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, problem.NotFound("TestingService", instance.TestingServiceID)
	}
	var creds *ts.Credentials
	if svc.TokenKey != "" || svc.TokenSecret != "" {
		creds = &ts.Credentials{Key: svc.TokenKey, Secret: svc.TokenSecret}
	}
	adapter, err := r.factory(svc.Type, svc.URL, creds)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", instance.ID, err)
	}
	return adapter, nil
}

// Cached returns the adapter of instance behind the build cache.
func (r *Resolver) Cached(ctx *contextx.Context, instance *objects.TestInstance) (*CachedService, error) {
	adapter, err := r.Service(ctx, instance)
	if err != nil {
		return nil, err
	}
	return NewCachedService(adapter, r.cache, r.ttl), nil
}

// Lookup is Cached behind the Service interface.
func (r *Resolver) Lookup(ctx *contextx.Context, instance *objects.TestInstance) (ts.Service, error) {
	svc, err := r.Cached(ctx, instance)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
