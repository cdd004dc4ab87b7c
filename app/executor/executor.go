package executor

import (
	"fmt"
	"runtime/debug"
	"time"

	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
)

// Func is the body of a job.
type Func func(ctx *contextx.Context) error

type Executor interface {
	// Run calls fn, failing it after timeout when timeout is positive. A
	// panicking fn is reported as an error.
	Run(ctx *contextx.Context, name string, timeout time.Duration, fn Func) error
}

type LocalExecutor struct {
}

func (e *LocalExecutor) call(ctx *contextx.Context, name string, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf(ctx, "job %s panicked: %v\n%s", name, r, debug.Stack())
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}

func (e *LocalExecutor) callWithTimeout(ctx *contextx.Context, name string, fn Func, timeout time.Duration) error {
	subCtx, cancel := ctx.WithTimeout(timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- e.call(subCtx, name, fn)
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("run job %s timeout after %s", name, timeout)
	}
}

func (e *LocalExecutor) Run(ctx *contextx.Context, name string, timeout time.Duration, fn Func) error {
	if timeout > 0 {
		return e.callWithTimeout(ctx, name, fn, timeout)
	}
	return e.call(ctx, name, fn)
}

// PoolExecutor runs at most size jobs at a time.
type PoolExecutor struct {
	LocalExecutor
	slots chan struct{}
}

func NewPoolExecutor(size int) *PoolExecutor {
	if size <= 0 {
		size = 1
	}
	return &PoolExecutor{slots: make(chan struct{}, size)}
}

func (e *PoolExecutor) Run(ctx *contextx.Context, name string, timeout time.Duration, fn Func) error {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.slots }()
	return e.LocalExecutor.Run(ctx, name, timeout, fn)
}

func GetExecutor(kind string, size int) Executor {
	switch kind {
	case "local":
		return &LocalExecutor{}
	case "pool":
		return NewPoolExecutor(size)
	default:
		panic("invalid executor type " + kind)
	}
}
