// Package notification carries messages from the workers to the WebSocket
// sessions of the users: a pub/sub channel feeds a single broadcaster, which
// delivers every message to the target users, rooms or everyone.
package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lifemonitor/app/config"
	"lifemonitor/pkg/log"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Message is the envelope published on the channel. Timestamp and Delay are in seconds.
type Message struct {
	Timestamp   float64     `json:"timestamp"`
	Delay       float64     `json:"delay,omitempty"`
	TargetIDs   []string    `json:"target_ids,omitempty"`
	TargetRooms []string    `json:"target_rooms,omitempty"`
	Payload     interface{} `json:"payload"`
}

func NewMessage(payload interface{}, targetIDs, targetRooms []string) *Message {
	return &Message{
		Timestamp:   toSeconds(time.Now()),
		TargetIDs:   targetIDs,
		TargetRooms: targetRooms,
		Payload:     payload,
	}
}

func (m *Message) Time() time.Time {
	sec := int64(m.Timestamp)
	return time.Unix(sec, int64((m.Timestamp-float64(sec))*float64(time.Second)))
}

func (m *Message) DelayDuration() time.Duration {
	return time.Duration(m.Delay * float64(time.Second))
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Bus is the channel between publishers and the broadcaster.
type Bus interface {
	Publish(ctx context.Context, m *Message) error
	// Listen hands every message to handle until ctx is done.
	Listen(ctx context.Context, handle func(*Message)) error
}

type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode notification message")
	}
	return errors.Wrapf(b.client.Publish(ctx, b.channel, data).Err(), "publish on %s", b.channel)
}

func (b *RedisBus) Listen(ctx context.Context, handle func(*Message)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe to %s", b.channel)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m := &Message{}
			if err := json.Unmarshal([]byte(msg.Payload), m); err != nil {
				log.Warnf(nil, "Discarding malformed notification message: %v", err)
				continue
			}
			handle(m)
		}
	}
}

// LocalBus connects publishers and listeners of the same process.
type LocalBus struct {
	mu        sync.Mutex
	listeners []chan *Message
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(_ context.Context, m *Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.listeners {
		select {
		case l <- m:
		default:
			log.Warnf(nil, "Notification listener is full, message dropped")
		}
	}
	return nil
}

func (b *LocalBus) Listen(ctx context.Context, handle func(*Message)) error {
	ch := make(chan *Message, 64)
	b.mu.Lock()
	b.listeners = append(b.listeners, ch)
	b.mu.Unlock()
	defer b.remove(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-ch:
			handle(m)
		}
	}
}

func (b *LocalBus) remove(ch chan *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// NewBusFromConfig uses redis unless the cache is configured in memory.
func NewBusFromConfig(cacheCfg config.CacheConfig, cfg config.NotificationsConfig) Bus {
	if cacheCfg.Type == "memory" {
		return NewLocalBus()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cacheCfg.RedisAddr,
		Password: cacheCfg.RedisPassword,
		DB:       cacheCfg.RedisDB,
	})
	return NewRedisBus(client, cfg.Channel)
}
