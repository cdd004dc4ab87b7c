package contextx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCloneCopiesData(t *testing.T) {
	asserter := assert.New(t)
	ctx := NewContext()
	ctx.Set(RequestIDKey, "req-1")
	ctx.SetDB("tx")

	clone := ctx.Clone()
	clone.Set(JobKey, "job-1")

	asserter.Equal("req-1", clone.RequestID())
	asserter.Equal("", ctx.JobID())
	asserter.Nil(clone.GetDB())
}

func TestWithTimeoutKeepsTransaction(t *testing.T) {
	asserter := assert.New(t)
	ctx := NewContext()
	ctx.SetDB("tx")

	child, cancel := ctx.WithTimeout(time.Millisecond)
	defer cancel()
	<-child.Done()

	asserter.Equal("tx", child.GetDB())
	asserter.ErrorIs(child.Err(), context.DeadlineExceeded)
}

func TestFromReusesContext(t *testing.T) {
	asserter := assert.New(t)
	ctx := NewContext()
	asserter.Same(ctx, From(ctx))
	asserter.NotNil(From(context.Background()).GetMap())
}
