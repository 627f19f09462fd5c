package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopstream/shopstream/client/internal/wsconn"
)

// Endpoints builds publish endpoint URLs. *resolver.Resolver satisfies it.
type Endpoints interface {
	PublishEndpoint(topic, streamID string) (string, error)
}

// Publisher sends single fire-and-forget messages, one connection per message.
type Publisher struct {
	endpoints Endpoints

	// mu serialises Send so the instance owns at most one open channel.
	mu   sync.Mutex
	conn *wsconn.Conn
}

// New creates a Publisher. connOpts are applied to every channel it opens.
func New(endpoints Endpoints, connOpts ...wsconn.Option) *Publisher {
	return &Publisher{
		endpoints: endpoints,
		conn:      wsconn.New(connOpts...),
	}
}

// Send opens a channel to the publish endpoint for (topic, streamID), emits
// payload as one JSON message and closes the channel. There is no
// acknowledgement and no retry: a returned error means the event was not
// delivered and is informational only.
func (p *Publisher) Send(ctx context.Context, topic, streamID string, payload any) error {
	url, err := p.endpoints.PublishEndpoint(topic, streamID)
	if err != nil {
		return fmt.Errorf("publisher: endpoint: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.Connect(ctx, url); err != nil {
		return fmt.Errorf("publisher: %w", err)
	}

	// Drain control frames so the close handshake can complete.
	observed := make(chan struct{})
	go func() {
		defer close(observed)
		p.conn.Observe(func(wsconn.Event) {}) //nolint:errcheck
	}()

	sendErr := p.conn.Send(payload)
	closeErr := p.conn.Disconnect()
	<-observed

	if sendErr != nil {
		return fmt.Errorf("publisher: send to %s: %w", url, sendErr)
	}
	if closeErr != nil {
		slog.Debug("publisher: close after send", "url", url, "err", closeErr)
	}
	slog.Debug("publisher: message sent", "topic", topic, "stream", streamID)
	return nil
}
