package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// envelope is the wire form of a Message on a redis channel.
type envelope struct {
	Key   string    `json:"key"`
	Value []byte    `json:"value"`
	Time  time.Time `json:"time"`
}

// Redis fans messages out over redis pub/sub, one channel per topic.
type Redis struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewRedis creates a broker on client. prefix is prepended to topic names
// to form channel names.
func NewRedis(client *redis.Client, prefix string) (*Redis, error) {
	if client == nil {
		return nil, errors.New("broker: redis client is nil")
	}
	return &Redis{
		client: client,
		prefix: prefix,
		subs:   make(map[*redis.PubSub]struct{}),
	}, nil
}

// Channel returns the redis channel carrying topic.
func (r *Redis) Channel(topic string) string {
	return r.prefix + topic
}

// Ping checks that the redis server answers.
func (r *Redis) Ping(ctx context.Context) error {
	if r.isClosed() {
		return ErrClosed
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broker: ping: %w", err)
	}
	return nil
}

func (r *Redis) Produce(ctx context.Context, topic, key string, value []byte) error {
	if r.isClosed() {
		return ErrClosed
	}
	payload, err := json.Marshal(envelope{Key: key, Value: value, Time: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("broker: marshal envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("broker: publish %s: %w", topic, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	ps := r.client.Subscribe(ctx, r.Channel(topic))
	// Wait for the subscription confirmation so no message is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("broker: subscribe %s: %w", topic, err)
	}
	r.subs[ps] = struct{}{}

	out := make(chan Message, subscriberBuffer)
	r.wg.Add(1)
	go r.forward(ctx, topic, ps, out)
	return out, nil
}

func (r *Redis) forward(ctx context.Context, topic string, ps *redis.PubSub, out chan<- Message) {
	defer r.wg.Done()
	defer close(out)
	defer r.release(ps)

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				slog.Warn("broker: undecodable redis message", "topic", topic, "err", err)
				continue
			}
			select {
			case out <- Message{Topic: topic, Key: env.Key, Value: env.Value, Time: env.Time}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Redis) release(ps *redis.PubSub) {
	r.mu.Lock()
	delete(r.subs, ps)
	r.mu.Unlock()
	ps.Close() //nolint:errcheck
}

// Close ends every subscription and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*redis.PubSub, 0, len(r.subs))
	for ps := range r.subs {
		subs = append(subs, ps)
	}
	r.mu.Unlock()

	// Closing a PubSub closes its Go channel, which ends forward.
	for _, ps := range subs {
		ps.Close() //nolint:errcheck
	}
	r.wg.Wait()
	return r.client.Close()
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
