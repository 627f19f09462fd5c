package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopstream/shopstream/server/internal/config"
)

// subscriberBuffer is the channel depth handed to each Subscribe caller.
const subscriberBuffer = 64

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("broker: closed")

// Message is one record on a topic. Key is the stream id it was produced
// under; Value is the payload exactly as received.
type Message struct {
	Topic string
	Key   string
	Value []byte
	Time  time.Time
}

// Broker is the streaming platform the gateway bridges to.
type Broker interface {
	// Produce appends value to topic under key.
	Produce(ctx context.Context, topic, key string, value []byte) error

	// Subscribe delivers every message produced to topic after the call
	// returns. The channel is closed when ctx is done or the broker closes.
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend and ends every subscription.
	Close() error
}

// New builds the backend selected by cfg.
func New(cfg config.BrokerConfig) (Broker, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
		})
		return NewRedis(client, cfg.Redis.ChannelPrefix)
	default:
		return nil, fmt.Errorf("broker: unknown backend %q", cfg.Backend)
	}
}
