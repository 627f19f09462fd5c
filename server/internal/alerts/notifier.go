package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shopstream/shopstream/server/internal/broker"
	"github.com/shopstream/shopstream/server/internal/config"
)

const (
	webhookTimeout = 10 * time.Second
	maxHistoryLen  = 200
)

// Subscriber is the part of broker.Broker the notifier consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error)
}

// Alert is one message taken off an alert topic.
type Alert struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Stream     string    `json:"stream"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
	Delivered  int       `json:"delivered"` // webhooks that accepted it
}

// Notifier forwards every message on the configured topics to the
// configured webhooks.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	topics   []string
	webhooks []config.WebhookConfig
	cooldown time.Duration
	client   *resty.Client

	mu       sync.Mutex
	lastFire map[string]time.Time // key: "topic:stream"
	history  []Alert
	now      func() time.Time
}

// New creates a Notifier from the gateway alert configuration.
// A Notifier with no topics is valid; Run returns immediately.
func New(cfg config.AlertsConfig) *Notifier {
	return &Notifier{
		topics:   cfg.Topics,
		webhooks: cfg.Webhooks,
		cooldown: cfg.Cooldown,
		client:   resty.New().SetTimeout(webhookTimeout),
		lastFire: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Run consumes every alert topic from sub until ctx is cancelled or the
// broker closes. Webhooks for one topic are delivered in message order.
func (n *Notifier) Run(ctx context.Context, sub Subscriber) error {
	if len(n.topics) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range n.topics {
		g.Go(func() error {
			ch, err := sub.Subscribe(gctx, topic)
			if err != nil {
				return fmt.Errorf("alerts: subscribe %s: %w", topic, err)
			}
			slog.Info("alerts: consuming topic", "topic", topic, "webhooks", len(n.webhooks))
			for m := range ch {
				n.handle(gctx, m)
			}
			return nil
		})
	}
	return g.Wait()
}

// handle records m as an alert and delivers it, unless the same stream
// fired within the cooldown.
func (n *Notifier) handle(ctx context.Context, m broker.Message) {
	now := n.now()
	key := m.Topic + ":" + m.Key

	n.mu.Lock()
	if n.cooldown > 0 && now.Sub(n.lastFire[key]) < n.cooldown {
		n.mu.Unlock()
		slog.Debug("alerts: suppressed by cooldown", "topic", m.Topic, "stream", m.Key)
		return
	}
	n.lastFire[key] = now
	n.mu.Unlock()

	a := Alert{
		ID:         uuid.NewString(),
		Topic:      m.Topic,
		Stream:     m.Key,
		Message:    messageText(m.Value),
		ReceivedAt: now,
	}
	a.Delivered = n.deliver(ctx, a)

	n.mu.Lock()
	n.history = append(n.history, a)
	if len(n.history) > maxHistoryLen {
		n.history = n.history[len(n.history)-maxHistoryLen:]
	}
	n.mu.Unlock()

	slog.Info("alert forwarded",
		"topic", a.Topic,
		"stream", a.Stream,
		"delivered", a.Delivered,
	)
}

// Recent returns copies of the most recent alerts, newest first.
func (n *Notifier) Recent() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Alert, len(n.history))
	for i, a := range n.history {
		out[len(out)-1-i] = a
	}
	return out
}

// messageText renders a broker value for humans: a JSON string is
// unquoted, other JSON is compacted, anything else is used as-is.
func messageText(value []byte) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err == nil {
		return buf.String()
	}
	return string(value)
}
