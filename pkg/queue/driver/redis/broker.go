package redis

import (
	"context"
	"errors"
	"time"

	"lifemonitor/pkg/log"
	"lifemonitor/pkg/queue"

	"github.com/redis/go-redis/v9"
)

const pollTimeout = time.Second

// Broker keeps every queue in a redis list: producers push on the left,
// consumers pop from the right.
type Broker struct {
	client *redis.Client
	prefix string
}

// Open connects to a redis:// url. Queue keys are prefixed by namespace.
func Open(url, namespace string) (*Broker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewFromClient(redis.NewClient(opts), namespace), nil
}

func NewFromClient(client *redis.Client, namespace string) *Broker {
	if namespace == "" {
		namespace = "lifemonitor"
	}
	return &Broker{client: client, prefix: namespace + ":queue:"}
}

func (b *Broker) Name() string {
	return "redis"
}

func (b *Broker) key(name string) string {
	return b.prefix + name
}

func (b *Broker) Publish(ctx context.Context, name string, body []byte) error {
	return b.client.LPush(ctx, b.key(name), body).Err()
}

func (b *Broker) Consume(ctx context.Context, name string, handler queue.Handler) error {
	key := b.key(name)
	for {
		if ctx.Err() != nil {
			return nil
		}
		result, err := b.client.BRPop(ctx, pollTimeout, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return nil
			}
			log.Warnf(nil, "Unable to pop from %s: %v", key, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollTimeout):
			}
			continue
		}
		// result is [key, value]
		if err := handler(ctx, []byte(result[1])); err != nil {
			log.Debugf(nil, "message of %s failed: %v", name, err)
		}
	}
}

func (b *Broker) Len(ctx context.Context, name string) (int64, error) {
	return b.client.LLen(ctx, b.key(name)).Result()
}

func (b *Broker) Close() error {
	return b.client.Close()
}
