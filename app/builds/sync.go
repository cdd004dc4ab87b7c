package builds

import (
	"context"
	"sort"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/config"
	"lifemonitor/app/objects"
	ts "lifemonitor/app/testingservice"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/problem"

	"github.com/pkg/errors"
)

// Report summarizes one Sync run.
type Report struct {
	Synced  []string          `json:"synced"`
	Skipped int               `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

type Synchronizer struct {
	cache     *cache.Cache
	resolver  *Resolver
	ttl       TTLs
	interval  time.Duration
	maxBuilds int
	now       func() time.Time
}

func NewSynchronizer(c *cache.Cache, resolver *Resolver, ttl TTLs, cfg config.SyncConfig) *Synchronizer {
	max := cfg.MaxBuildsPerSync
	if max <= 0 {
		max = 10
	}
	return &Synchronizer{
		cache:     c,
		resolver:  resolver,
		ttl:       ttl,
		interval:  cfg.Interval,
		maxBuilds: max,
		now:       time.Now,
	}
}

// Sync refreshes the instances whose builds are older than the sync interval.
// A failing instance is left for the next run.
func (s *Synchronizer) Sync(ctx *contextx.Context) (*Report, error) {
	instances, err := objects.ListTestInstances(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Failed: map[string]string{}}
	now := s.now()
	for _, instance := range instances {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !instance.NeedsSync(now, s.interval) {
			report.Skipped++
			continue
		}
		if err := s.Refresh(ctx, instance); err != nil {
			log.Warnf(ctx, "builds sync: instance %s (%s): %v", instance.ID, instance.Resource, err)
			report.Failed[instance.ID] = err.Error()
			continue
		}
		report.Synced = append(report.Synced, instance.ID)
	}
	log.Infof(ctx, "builds sync: %d synced, %d skipped, %d failed",
		len(report.Synced), report.Skipped, len(report.Failed))
	return report, nil
}

// Refresh fetches the latest builds of instance and publishes them in one
// cache transaction, then records the update time.
func (s *Synchronizer) Refresh(ctx *contextx.Context, instance *objects.TestInstance) error {
	adapter, err := s.resolver.Service(ctx, instance)
	if err != nil {
		return err
	}
	target := InstanceOf(instance)
	key := func(op string, args ...interface{}) string {
		return cache.BuildKey(adapter.Type(), adapter.URL(), instance.Resource, op, args...)
	}

	var previous []*ts.Build
	if _, err := s.cache.Get(ctx, key(OpBuilds, s.maxBuilds), &previous); err != nil {
		previous = nil
	}
	fetched, err := s.list(ctx, adapter, instance, target)
	if err != nil {
		return err
	}
	if fetched, previous, err = s.recheck(ctx, adapter, target, fetched, previous); err != nil {
		return err
	}

	err = s.cache.WithTransaction(ctx, func(tx *cache.Transaction) error {
		latest := merge(fetched, previous, s.maxBuilds)

		for _, b := range fetched {
			if b.InProgress() {
				continue
			}
			var known *ts.Build
			if ok, _ := tx.Get(ctx, key(OpBuild, b.ID), &known); ok && known != nil {
				continue
			}
			if err := tx.Set(key(OpBuild, b.ID), b, s.ttl.Build); err != nil {
				return err
			}
		}
		if err := tx.Set(key(OpBuilds, s.maxBuilds), latest, s.ttl.Default); err != nil {
			return err
		}
		last := ts.LastOf(adapter, latest)
		if err := tx.Set(key(OpLastBuild), last, s.ttl.LastBuild); err != nil {
			return err
		}
		if b := firstWith(latest, ts.StatusPassed); b != nil {
			if err := tx.Set(key(OpLastPassedBuild), b, s.ttl.LastBuild); err != nil {
				return err
			}
		}
		if b := firstWith(latest, ts.StatusFailed); b != nil {
			if err := tx.Set(key(OpLastFailedBuild), b, s.ttl.LastBuild); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "publish builds")
	}
	return instance.MarkBuildsUpdated(ctx, s.now())
}

func (s *Synchronizer) list(ctx context.Context, adapter ts.Service, instance *objects.TestInstance, target ts.Instance) ([]*ts.Build, error) {
	if lister, ok := adapter.(ts.SinceLister); ok && instance.LastBuildsUpdate != nil {
		return lister.BuildsSince(ctx, target, *instance.LastBuildsUpdate, s.maxBuilds)
	}
	return adapter.Builds(ctx, target, s.maxBuilds)
}

// recheck fetches again the builds that were in progress at the previous
// sync and are missing from fetched: a listing by creation date no longer
// returns them once they complete. Builds gone from the service are dropped
// from previous.
func (s *Synchronizer) recheck(ctx context.Context, adapter ts.Service, target ts.Instance,
	fetched, previous []*ts.Build) ([]*ts.Build, []*ts.Build, error) {
	seen := map[string]bool{}
	for _, b := range fetched {
		seen[b.ID] = true
	}
	kept := make([]*ts.Build, 0, len(previous))
	for _, b := range previous {
		if b == nil {
			continue
		}
		if !b.InProgress() || seen[b.ID] {
			kept = append(kept, b)
			continue
		}
		fresh, err := adapter.Build(ctx, target, b.ID)
		if problem.Is(err, problem.KindNotFound) {
			log.Debugf(ctx, "builds sync: build %s of %s is gone", b.ID, target.Resource)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		fetched = append(fetched, fresh)
		kept = append(kept, b)
	}
	return fetched, kept, nil
}

// merge keeps the newest limit builds of both lists; fresh entries win.
func merge(fresh, previous []*ts.Build, limit int) []*ts.Build {
	seen := map[string]bool{}
	result := make([]*ts.Build, 0, len(fresh)+len(previous))
	for _, list := range [][]*ts.Build{fresh, previous} {
		for _, b := range list {
			if b == nil || seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			result = append(result, b)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Number != result[j].Number {
			return result[i].Number > result[j].Number
		}
		return result[i].Timestamp > result[j].Timestamp
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func firstWith(list []*ts.Build, status ts.Status) *ts.Build {
	for _, b := range list {
		if b.Status == status {
			return b
		}
	}
	return nil
}
