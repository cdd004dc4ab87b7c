package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLockTimeout is returned when a lock cannot be acquired in time.
	ErrLockTimeout = errors.New("cache: lock timeout")
	// ErrLockLost is returned when a lock expired or was taken over before its
	// holder published.
	ErrLockLost = errors.New("cache: lock lost")
)

type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Backend stores raw values. A zero TTL keeps the value until it is deleted.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetMulti publishes all entries at once.
	SetMulti(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	// TryLock takes name for hold if it is free; token identifies the holder.
	TryLock(ctx context.Context, name, token string, hold time.Duration) (bool, error)
	Unlock(ctx context.Context, name, token string) error
	// Held reports whether token still holds name.
	Held(ctx context.Context, name, token string) (bool, error)
	// SetIfHeld stores e only while token holds name.
	SetIfHeld(ctx context.Context, name, token string, e Entry) (bool, error)
	Close() error
}
