package engine

import (
	"testing"

	"lifemonitor/app/github"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceFor(t *testing.T) {
	asserter := assert.New(t)
	env := newTestEnv(t)
	cfg := "push:\n  branches:\n    - name: feature\n      lifemonitor_instance: staging\n"
	env.gh.setTree(env.repo.FullName, "feature", crateTree(t, env.repo.FullName, cfg, "planemo tests"))
	env.gh.setTree(env.repo.FullName, "main", crateTree(t, env.repo.FullName, trackedConfig, "planemo tests"))

	instance, err := env.engine.InstanceFor(env.ctx, env.event(github.EventPush, "refs/heads/feature"))
	require.NoError(t, err)
	asserter.Equal("staging", instance)

	archived := env.gh.archived
	instance, err = env.engine.InstanceFor(env.ctx, env.event(github.EventPush, "refs/heads/feature"))
	require.NoError(t, err)
	asserter.Equal("staging", instance)
	asserter.Equal(archived, env.gh.archived)

	instance, err = env.engine.InstanceFor(env.ctx, env.event(github.EventPush, "refs/heads/main"))
	if asserter.NoError(err) {
		asserter.Empty(instance)
	}

	deleted := env.event(github.EventPush, "refs/heads/feature")
	deleted.Deleted = true
	instance, err = env.engine.InstanceFor(env.ctx, deleted)
	if asserter.NoError(err) {
		asserter.Empty(instance)
	}

	instance, err = env.engine.InstanceFor(env.ctx, env.event(github.EventIssues, ""))
	if asserter.NoError(err) {
		asserter.Empty(instance)
	}
}
