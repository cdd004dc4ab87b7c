package driver

import (
	"fmt"
	"net/url"

	"lifemonitor/pkg/queue"
	"lifemonitor/pkg/queue/driver/rabbit"
	redisq "lifemonitor/pkg/queue/driver/redis"
)

// Open returns the broker of a connection string: rabbit:// and amqp://
// reach RabbitMQ, redis:// a redis server and memory:// stays in process.
func Open(urlStr, exchange string) (queue.Broker, error) {
	uri, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	switch uri.Scheme {
	case "rabbit", "amqp", "amqps":
		return rabbit.Open(urlStr, exchange), nil
	case "redis":
		broker, err := redisq.Open(urlStr, exchange)
		if err != nil {
			return nil, err
		}
		return broker, nil
	case "memory":
		return queue.NewMemory(0), nil
	default:
		return nil, fmt.Errorf("unsupported schema %s", uri.Scheme)
	}
}
