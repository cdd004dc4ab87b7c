package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// setIfHeldScript writes KEYS[2] only while ARGV[1] holds the lock KEYS[1].
var setIfHeldScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
  redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

type redisBackend struct {
	client *redis.Client
}

func NewRedisBackend(addr, password string, db int) (Backend, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisBackend{client: client}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client) Backend {
	return &redisBackend{client: client}
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisBackend) SetMulti(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, e.Key, e.Value, e.TTL)
		}
		return nil
	})
	return err
}

func (r *redisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (r *redisBackend) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := r.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	return r.Delete(ctx, keys...)
}

func (r *redisBackend) TryLock(ctx context.Context, name, token string, hold time.Duration) (bool, error) {
	return r.client.SetNX(ctx, name, token, hold).Result()
}

func (r *redisBackend) Unlock(ctx context.Context, name, token string) error {
	return unlockScript.Run(ctx, r.client, []string{name}, token).Err()
}

func (r *redisBackend) Held(ctx context.Context, name, token string) (bool, error) {
	holder, err := r.client.Get(ctx, name).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return holder == token, nil
}

func (r *redisBackend) SetIfHeld(ctx context.Context, name, token string, e Entry) (bool, error) {
	n, err := setIfHeldScript.Run(ctx, r.client, []string{name, e.Key}, token, e.Value, e.TTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *redisBackend) Close() error {
	return r.client.Close()
}
