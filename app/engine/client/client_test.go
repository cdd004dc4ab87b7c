package client

import (
	"context"
	"testing"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/scheduler"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	asserter := assert.New(t)

	arg, err := ParseRef("crs4/lifemonitor@main")
	if asserter.NoError(err) {
		asserter.Equal(RefArg{Repository: "crs4/lifemonitor", Ref: "main"}, arg)
	}
	arg, err = ParseRef("crs4/lifemonitor@refs/tags/v1.0.0")
	if asserter.NoError(err) {
		asserter.Equal(RefArg{Repository: "crs4/lifemonitor", Ref: "v1.0.0", Tag: true}, arg)
		asserter.Equal("crs4/lifemonitor@refs/tags/v1.0.0", arg.String())
	}
	arg, err = ParseRef("crs4/lifemonitor@refs/heads/develop")
	if asserter.NoError(err) {
		asserter.Equal("develop", arg.Ref)
		asserter.False(arg.Tag)
	}

	for _, invalid := range []string{"crs4/lifemonitor", "lifemonitor@main", "crs4/lifemonitor@", "/x@main", "a/b/c@main"} {
		_, err = ParseRef(invalid)
		asserter.Error(err, invalid)
	}
}

func TestClient_RegisterWorkflow(t *testing.T) {
	asserter := assert.New(t)
	s := scheduler.New(queue.NewMemory(4), cache.New(cache.NewMemoryBackend()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	defer s.Stop()

	registered := make(chan scheduler.RegisterWorkflowArg, 1)
	s.Register(&scheduler.Definition{
		Name:  scheduler.JobRegisterWorkflow,
		Queue: scheduler.QueueGithub,
		Handler: func(_ *contextx.Context, job *scheduler.Job) error {
			arg := scheduler.RegisterWorkflowArg{}
			if err := job.Arg(0, &arg); err != nil {
				return err
			}
			registered <- arg
			return nil
		},
	})
	s.Consume(ctx)

	clt := NewClient(s)
	clt.poll = 5 * time.Millisecond
	id, err := clt.RegisterWorkflow(ctx, 7, RefArg{Repository: "crs4/lifemonitor", Ref: "v1.0.0", Tag: true}, "alice")
	require.NoError(t, err)

	status, err := clt.Wait(ctx, id)
	if asserter.NoError(err) {
		asserter.Equal(scheduler.StatusCompleted, status.Status)
		asserter.Equal([]string{"alice"}, status.IDs)
	}
	asserter.Equal(scheduler.RegisterWorkflowArg{Installation: 7, Repository: "crs4/lifemonitor", Ref: "v1.0.0", Tag: true}, <-registered)
}
