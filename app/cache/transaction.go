package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrTransactionClosed = errors.New("cache: transaction closed")

// Transaction buffers writes and publishes them together on Commit.
type Transaction struct {
	cache   *Cache
	mu      sync.Mutex
	entries map[string]Entry
	order   []string
	closed  bool
}

func (c *Cache) Transaction() *Transaction {
	return &Transaction{cache: c, entries: map[string]Entry{}}
}

func (t *Transaction) Set(key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode cache key %s", key)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransactionClosed
	}
	full := t.cache.key(key)
	if _, ok := t.entries[full]; !ok {
		t.order = append(t.order, full)
	}
	t.entries[full] = Entry{Key: full, Value: raw, TTL: ttl}
	return nil
}

// Get reads the pending write for key first, then the cache.
func (t *Transaction) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	t.mu.Lock()
	e, ok := t.entries[t.cache.key(key)]
	t.mu.Unlock()
	if ok {
		return true, json.Unmarshal(e.Value, v)
	}
	return t.cache.Get(ctx, key, v)
}

func (t *Transaction) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransactionClosed
	}
	t.closed = true
	entries := make([]Entry, 0, len(t.order))
	for _, k := range t.order {
		entries = append(entries, t.entries[k])
	}
	t.entries = nil
	return t.cache.backend.SetMulti(ctx, entries)
}

func (t *Transaction) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.entries = nil
	t.order = nil
}

// WithTransaction commits the writes of fn when it succeeds and discards them otherwise.
func (c *Cache) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	tx := c.Transaction()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}
