// Package queue moves job messages between the processes producing them and
// the workers consuming them.
package queue

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Handler processes one message body. Failures are not redelivered by the
// broker; retrying is up to the producer of the message.
type Handler func(ctx context.Context, body []byte) error

type Broker interface {
	Name() string
	Publish(ctx context.Context, queue string, body []byte) error
	// Consume delivers the messages of queue to handler until ctx is done or
	// the broker is closed.
	Consume(ctx context.Context, queue string, handler Handler) error
	Close() error
}

var ErrClosed = errors.New("broker closed")

// Memory is a broker living in the current process.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	closed bool
	done   chan struct{}
	size   int
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1024
	}
	return &Memory{queues: map[string]chan []byte{}, done: make(chan struct{}), size: size}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) queue(name string) (chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	q, ok := m.queues[name]
	if !ok {
		q = make(chan []byte, m.size)
		m.queues[name] = q
	}
	return q, nil
}

func (m *Memory) Publish(ctx context.Context, queue string, body []byte) error {
	q, err := m.queue(queue)
	if err != nil {
		return err
	}
	select {
	case q <- body:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(ctx context.Context, queue string, handler Handler) error {
	q, err := m.queue(queue)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return ErrClosed
		case body := <-q:
			_ = handler(ctx, body)
		}
	}
}

// Len is the number of messages waiting on queue.
func (m *Memory) Len(queue string) int {
	q, err := m.queue(queue)
	if err != nil {
		return 0
	}
	return len(q)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
