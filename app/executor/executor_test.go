package executor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lifemonitor/pkg/contextx"

	"github.com/stretchr/testify/assert"
)

func TestLocalExecutor_Run(t *testing.T) {
	asserter := assert.New(t)
	exec := GetExecutor("local", 0)
	ctx := contextx.NewContext()

	asserter.NoError(exec.Run(ctx, "ok", 0, func(*contextx.Context) error { return nil }))

	boom := errors.New("boom")
	asserter.ErrorIs(exec.Run(ctx, "failing", 0, func(*contextx.Context) error { return boom }), boom)

	err := exec.Run(ctx, "panicking", 0, func(*contextx.Context) error { panic("bad state") })
	if asserter.Error(err) {
		asserter.Contains(err.Error(), "bad state")
	}

	err = exec.Run(ctx, "slow", 20*time.Millisecond, func(c *contextx.Context) error {
		<-c.Done()
		return c.Err()
	})
	if asserter.Error(err) {
		asserter.Contains(err.Error(), "timeout")
	}
}

func TestPoolExecutor_Bounded(t *testing.T) {
	asserter := assert.New(t)
	exec := GetExecutor("pool", 2)
	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Run(contextx.NewContext(), "job", 0, func(*contextx.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	asserter.LessOrEqual(atomic.LoadInt32(&peak), int32(2))
	asserter.Panics(func() { GetExecutor("remote", 0) })
}
