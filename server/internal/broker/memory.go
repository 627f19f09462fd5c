package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Memory is an in-process broker. Messages are not persisted; a subscriber
// that falls a full buffer behind loses messages rather than blocking
// producers.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Message]struct{}
	closed bool
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[chan Message]struct{})}
}

func (m *Memory) Produce(_ context.Context, topic, key string, value []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	msg := Message{Topic: topic, Key: key, Value: value, Time: time.Now()}
	for ch := range m.subs[topic] {
		select {
		case ch <- msg:
		default:
			slog.Warn("broker: subscriber behind, dropping message", "topic", topic, "key", key)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	ch := make(chan Message, subscriberBuffer)
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[chan Message]struct{})
	}
	m.subs[topic][ch] = struct{}{}

	context.AfterFunc(ctx, func() { m.unsubscribe(topic, ch) })
	return ch, nil
}

// Ping reports ErrClosed once the broker is closed.
func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for topic, set := range m.subs {
		for ch := range set {
			close(ch)
		}
		delete(m.subs, topic)
	}
	return nil
}

func (m *Memory) unsubscribe(topic string, ch chan Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subs[topic]
	if !ok {
		return
	}
	if _, ok := set[ch]; ok {
		delete(set, ch)
		close(ch)
	}
	if len(set) == 0 {
		delete(m.subs, topic)
	}
}
