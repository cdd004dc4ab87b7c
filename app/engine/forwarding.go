package engine

import (
	"context"
	"time"

	"lifemonitor/app/github"
	"lifemonitor/pkg/contextx"

	"github.com/pkg/errors"
)

const instanceTTL = 5 * time.Minute

// InstanceFor returns the LifeMonitor instance the configuration file of the
// pushed ref names, empty when the ref names none or the event carries no ref.
// Results are cached per ref and revision.
func (e *Engine) InstanceFor(ctx *contextx.Context, event *github.Event) (string, error) {
	switch event.Type {
	case github.EventPush, github.EventCreate:
	default:
		return "", nil
	}
	if event.Repository == nil || event.RefName() == "" || event.Deleted || event.IsBotBranch() {
		return "", nil
	}
	client, err := e.client(event)
	if err != nil {
		return "", err
	}
	key := "instance:" + event.FullName() + "@" + event.RefName()
	if rev := event.Rev(); rev != "" {
		key += ":" + rev
	}
	var instance string
	err = e.cache.GetOrSet(ctx, key, instanceTTL, &instance, func(context.Context) (interface{}, error) {
		repo, err := e.snapshot(ctx, client, event.Repository, event.RefName(), event.Rev())
		if err != nil {
			return nil, err
		}
		if repo.ConfigFile() == "" {
			return "", nil
		}
		cfg, err := repo.Config()
		if err != nil {
			return "", nil
		}
		ref := cfg.RefSettings(event.Branch(), event.Tag())
		if ref == nil {
			return "", nil
		}
		return ref.LifemonitorInstance, nil
	}, nil)
	if err != nil {
		return "", errors.Wrapf(err, "resolve the instance of %s@%s", event.FullName(), event.RefName())
	}
	return instance, nil
}
