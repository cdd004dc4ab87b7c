// Package cache is the shared key/value cache used for build results, jobs and
// heartbeats. Values are JSON encoded; locks coalesce concurrent refreshes.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"lifemonitor/app/config"
	"lifemonitor/pkg/log"
)

const (
	lockPrefix = "lock:"

	// Forever keeps a value until it is invalidated.
	Forever time.Duration = 0
)

type Cache struct {
	backend     Backend
	prefix      string
	lockTimeout time.Duration
}

type Option func(*Cache)

func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithLockTimeout bounds both the hold time of a lock and the wait for it.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Cache) { c.lockTimeout = d }
}

func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:     backend,
		prefix:      "lifemonitor:",
		lockTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.lockTimeout <= 0 {
		c.lockTimeout = 30 * time.Second
	}
	return c
}

func NewFromConfig(cfg config.CacheConfig) (*Cache, error) {
	var backend Backend
	switch cfg.Type {
	case "memory":
		backend = NewMemoryBackend()
	default:
		b, err := NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	return New(backend,
		WithPrefix(cfg.Prefix),
		WithLockTimeout(time.Duration(cfg.LockTimeout)*time.Second),
	), nil
}

var (
	defaultCache *Cache
	defaultOnce  sync.Once
)

// Default returns the process wide cache built from the global configuration.
func Default() *Cache {
	defaultOnce.Do(func() {
		c, err := NewFromConfig(config.Config.Cache)
		if err != nil {
			log.Errorf(nil, "cache: %v, falling back to memory backend", err)
			c = New(NewMemoryBackend(), WithPrefix(config.Config.Cache.Prefix))
		}
		defaultCache = c
	})
	return defaultCache
}

// SetDefault replaces the process wide cache.
func SetDefault(c *Cache) {
	defaultOnce.Do(func() {})
	defaultCache = c
}

func (c *Cache) Backend() Backend {
	return c.backend
}

func (c *Cache) key(k string) string {
	if strings.HasPrefix(k, c.prefix) {
		return k
	}
	return c.prefix + k
}

// Get decodes the value stored at key into v and reports whether it was present.
func (c *Cache) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, ok, err := c.backend.Get(ctx, c.key(key))
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "decode cache key %s", key)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode cache key %s", key)
	}
	return c.backend.Set(ctx, c.key(key), raw, ttl)
}

func (c *Cache) Has(ctx context.Context, key string) bool {
	_, ok, err := c.backend.Get(ctx, c.key(key))
	return err == nil && ok
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.backend.Delete(ctx, full...)
}

// DeletePrefix invalidates every key starting with prefix.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	return c.backend.DeletePrefix(ctx, c.key(prefix))
}

// Keys lists the keys under prefix, without the cache prefix.
func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := c.backend.Keys(ctx, c.key(prefix))
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, c.prefix)
	}
	return keys, nil
}

// Lock is a named lock held in the cache backend until Release or expiry.
type Lock struct {
	backend Backend
	name    string
	key     string
	token   string
}

// Release frees the lock if it is still ours.
func (l *Lock) Release() {
	if err := l.backend.Unlock(context.Background(), l.key, l.token); err != nil {
		log.Warnf(nil, "cache: release lock %s: %v", l.name, err)
	}
}

// Held returns ErrLockLost once the lock expired or passed to another holder.
// Holders check it right before publishing what they computed under the lock.
func (l *Lock) Held(ctx context.Context) error {
	ok, err := l.backend.Held(ctx, l.key, l.token)
	if err != nil {
		return errors.Wrapf(err, "check lock %s", l.name)
	}
	if !ok {
		return errors.Wrapf(ErrLockLost, "lock %s", l.name)
	}
	return nil
}

// Lock acquires the named lock, waiting at most the lock timeout.
func (c *Cache) Lock(ctx context.Context, name string) (*Lock, error) {
	return c.LockFor(ctx, name, c.lockTimeout)
}

func (c *Cache) LockFor(ctx context.Context, name string, hold time.Duration) (*Lock, error) {
	l := &Lock{backend: c.backend, name: name, key: c.prefix + lockPrefix + name, token: uuid.NewString()}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = c.lockTimeout

	err := backoff.Retry(func() error {
		ok, err := c.backend.TryLock(ctx, l.key, l.token, hold)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockTimeout
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", name)
	}
	return l, nil
}

// GetOrSet returns the cached value for key, or calls fetch under the key lock.
// Contenders wait for the lock holder and then read the value it stored.
// When cacheable is not nil, only values it accepts are stored. A holder whose
// lock expired during fetch returns its value without storing it.
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, v interface{},
	fetch func(ctx context.Context) (interface{}, error), cacheable func(interface{}) bool) error {
	if ok, err := c.Get(ctx, key, v); err == nil && ok {
		return nil
	}
	lock, err := c.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer lock.Release()

	if ok, err := c.Get(ctx, key, v); err == nil && ok {
		return nil
	}
	value, err := fetch(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode cache key %s", key)
	}
	if cacheable == nil || cacheable(value) {
		stored, err := c.backend.SetIfHeld(ctx, lock.key, lock.token, Entry{Key: c.key(key), Value: raw, TTL: ttl})
		if err != nil {
			log.Warnf(nil, "cache: set %s: %v", key, err)
		} else if !stored {
			log.Warnf(nil, "cache: lock of %s lost while fetching, value not stored", key)
		}
	}
	return json.Unmarshal(raw, v)
}
