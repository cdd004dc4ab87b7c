package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PublishConsume(t *testing.T) {
	asserter := assert.New(t)
	broker := NewMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, broker.Publish(ctx, "github", []byte("one")))
	require.NoError(t, broker.Publish(ctx, "github", []byte("two")))
	require.NoError(t, broker.Publish(ctx, "other", []byte("three")))
	asserter.Equal(2, broker.Len("github"))

	var mu sync.Mutex
	var got []string
	go func() {
		_ = broker.Consume(ctx, "github", func(_ context.Context, body []byte) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, string(body))
			return nil
		})
	}()
	asserter.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	asserter.Equal([]string{"one", "two"}, got)
	asserter.Equal(1, broker.Len("other"))

	require.NoError(t, broker.Close())
	asserter.ErrorIs(broker.Publish(ctx, "github", []byte("late")), ErrClosed)
}

func TestMemory_CloseStopsConsumers(t *testing.T) {
	asserter := assert.New(t)
	broker := NewMemory(1)
	ctx := context.Background()

	stopped := make(chan error, 1)
	go func() {
		stopped <- broker.Consume(ctx, "github", func(context.Context, []byte) error { return nil })
	}()
	require.NoError(t, broker.Publish(ctx, "other", []byte("fills the queue")))
	blocked := make(chan error, 1)
	go func() {
		blocked <- broker.Publish(ctx, "other", []byte("waits for room"))
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, broker.Close())
	require.NoError(t, broker.Close())

	select {
	case err := <-stopped:
		asserter.ErrorIs(err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer still running after Close")
	}
	select {
	case err := <-blocked:
		asserter.ErrorIs(err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after Close")
	}
	asserter.ErrorIs(broker.Consume(ctx, "github", nil), ErrClosed)
}
