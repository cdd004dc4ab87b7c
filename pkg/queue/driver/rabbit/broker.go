package rabbit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lifemonitor/pkg/log"
	"lifemonitor/pkg/queue"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const (
	defaultHeartbeat    = 10 * time.Second
	defaultLocale       = "en_US"
	defaultProduct      = "lifemonitor"
	defaultVersion      = "0.1"
	defaultDialInterval = 2 * time.Second
	defaultPrefetch     = 1
)

// Broker publishes on a direct exchange; every queue is bound to it with its
// own name as routing key.
type Broker struct {
	ID           string
	url          string
	exchange     string
	dialInterval time.Duration
	prefetch     int

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
	closed   uint32
}

// Open prepares a broker; the connection is established on first use.
func Open(url, exchange string) *Broker {
	return &Broker{
		ID:           uuid.NewString(),
		url:          amqpURL(url),
		exchange:     exchange,
		dialInterval: defaultDialInterval,
		prefetch:     defaultPrefetch,
		declared:     map[string]bool{},
	}
}

func amqpURL(url string) string {
	if strings.HasPrefix(url, "rabbit://") {
		return "amqp://" + strings.TrimPrefix(url, "rabbit://")
	}
	return url
}

func (b *Broker) Name() string {
	return "rabbit"
}

func (b *Broker) IsClosed() bool {
	return atomic.LoadUint32(&b.closed) == 1
}

func (b *Broker) dial(ctx context.Context) (*amqp.Connection, error) {
	cfg := amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    defaultLocale,
		Properties: amqp.Table{
			"product": defaultProduct,
			"version": defaultVersion,
		},
	}
	for {
		if b.IsClosed() {
			return nil, queue.ErrClosed
		}
		conn, err := amqp.DialConfig(b.url, cfg)
		if err == nil {
			log.Debugf(nil, "connection %s connected", b.ID)
			return conn, nil
		}
		log.Errorf(nil, "connection %s connect failed, error: %s", b.ID, err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.dialInterval):
		}
	}
}

// ensureConnection returns the shared connection, dialing again when it was lost.
func (b *Broker) ensureConnection(ctx context.Context) (*amqp.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	b.channel = nil
	b.declared = map[string]bool{}
	return conn, nil
}

func (b *Broker) declare(channel *amqp.Channel, name string) error {
	if b.exchange != "" {
		if err := channel.ExchangeDeclare(b.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return err
		}
	}
	if _, err := channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return err
	}
	if b.exchange != "" {
		return channel.QueueBind(name, name, b.exchange, false, nil)
	}
	return nil
}

func (b *Broker) publishChannel(ctx context.Context, name string) (*amqp.Channel, error) {
	conn, err := b.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel == nil {
		if b.channel, err = conn.Channel(); err != nil {
			return nil, err
		}
	}
	if !b.declared[name] {
		if err = b.declare(b.channel, name); err != nil {
			b.channel = nil
			return nil, err
		}
		b.declared[name] = true
	}
	return b.channel, nil
}

func (b *Broker) Publish(ctx context.Context, name string, body []byte) error {
	msg := amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		Timestamp:       time.Now(),
		Body:            body,
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var channel *amqp.Channel
		if channel, err = b.publishChannel(ctx, name); err != nil {
			continue
		}
		log.Debugf(nil, "connection.publish: sending message to exchange '%s' with routing key '%s'", b.exchange, name)
		if err = channel.Publish(b.exchange, name, false, false, msg); err == nil {
			return nil
		}
		b.mu.Lock()
		b.channel = nil
		b.mu.Unlock()
	}
	return err
}

// Consume serves a queue on a dedicated channel and subscribes again after
// connection losses.
func (b *Broker) Consume(ctx context.Context, name string, handler queue.Handler) error {
	for {
		err := b.consume(ctx, name, handler)
		if ctx.Err() != nil || b.IsClosed() {
			return nil
		}
		log.Warnf(nil, "consume message ended on %s, error: %v", name, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.dialInterval):
		}
	}
}

func (b *Broker) consume(ctx context.Context, name string, handler queue.Handler) error {
	conn, err := b.ensureConnection(ctx)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	if err = b.declare(channel, name); err != nil {
		return err
	}
	if err = channel.Qos(b.prefetch, 0, false); err != nil {
		return err
	}
	consumerTag := name + "-" + uuid.NewString()
	deliveries, err := channel.Consume(name, consumerTag, false, false, false, false, nil)
	if err != nil {
		log.Debugf(nil, "consume channel %s error: %s", consumerTag, err.Error())
		return err
	}
	closed := channel.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			_ = channel.Cancel(consumerTag, false)
			return nil
		case e := <-closed:
			if e == nil {
				return errors.New("channel closed")
			}
			return e
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := handler(ctx, d.Body); err != nil {
				log.Debugf(nil, "message of %s failed: %v", name, err)
			}
			if err := d.Ack(false); err != nil {
				log.Errorf(nil, "ack message failed, error: %s", err.Error())
			}
		}
	}
}

func (b *Broker) Close() error {
	if !atomic.CompareAndSwapUint32(&b.closed, 0, 1) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	log.Debugf(nil, "close connection %s", b.ID)
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}
