package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopstream/shopstream/client/internal/observe"
	"github.com/shopstream/shopstream/client/internal/wsconn"
)

// Endpoints builds subscribe endpoint URLs. *resolver.Resolver satisfies it.
type Endpoints interface {
	SubscribeEndpoint(topic string) (string, error)
}

// State is the lifecycle of the subscriber's channel.
type State int

const (
	Unconnected State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Subscriber holds one persistent channel to a topic and exposes its inbound
// messages as a feed.
type Subscriber struct {
	endpoints Endpoints
	connOpts  []wsconn.Option
	feedSize  int

	conn *wsconn.Conn
	feed *observe.Subject[json.RawMessage]
	view *observe.Feed[json.RawMessage]

	// opMu serialises Subscribe and Disconnect.
	opMu sync.Mutex

	mu    sync.Mutex
	state State
	topic string
	err   error
	done  chan struct{}
}

// Option customises a Subscriber.
type Option func(*Subscriber)

// WithFeedBuffer sets how many messages a slow feed observer may fall behind
// before it is dropped.
func WithFeedBuffer(n int) Option {
	return func(s *Subscriber) { s.feedSize = n }
}

// WithConnOptions passes options to the underlying channel.
func WithConnOptions(opts ...wsconn.Option) Option {
	return func(s *Subscriber) { s.connOpts = append(s.connOpts, opts...) }
}

// New creates an unconnected Subscriber whose feed starts with a nil message.
func New(endpoints Endpoints, opts ...Option) *Subscriber {
	s := &Subscriber{
		endpoints: endpoints,
		feedSize:  observe.DefaultBufferSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	close(s.done)
	s.conn = wsconn.New(s.connOpts...)
	s.feed = observe.NewSubjectWithBuffer[json.RawMessage](nil, s.feedSize)
	s.view = s.feed.Feed()
	return s
}

// Feed returns the message feed. It is the same feed across reconnects.
func (s *Subscriber) Feed() *observe.Feed[json.RawMessage] {
	return s.view
}

// Subscribe opens a channel to the subscribe endpoint for topic and forwards
// every inbound message to the feed. A channel opened by an earlier call is
// closed first. There is no automatic reconnection.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (*observe.Feed[json.RawMessage], error) {
	url, err := s.endpoints.SubscribeEndpoint(topic)
	if err != nil {
		return s.view, fmt.Errorf("subscriber: endpoint: %w", err)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.teardown()

	if err := s.conn.Connect(ctx, url); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return s.view, fmt.Errorf("subscriber: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.state = Open
	s.topic = topic
	s.err = nil
	s.done = done
	s.mu.Unlock()

	slog.Info("subscriber: channel open", "topic", topic, "url", url)
	go s.run(topic, done)
	return s.view, nil
}

// Disconnect closes the channel. It is a no-op when nothing is open.
func (s *Subscriber) Disconnect() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.teardown()
}

// State returns the channel lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the transport error that closed the channel, if any.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the current channel has ended.
func (s *Subscriber) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// teardown closes the owned channel and waits for its read loop. Callers
// hold opMu.
func (s *Subscriber) teardown() error {
	err := s.conn.Disconnect()
	<-s.Done()
	return err
}

func (s *Subscriber) run(topic string, done chan struct{}) {
	var failed error
	s.conn.Observe(func(e wsconn.Event) { //nolint:errcheck
		switch e.Kind {
		case wsconn.Message:
			s.feed.Next(e.Payload)
		case wsconn.Error:
			failed = e.Err
		case wsconn.Completed:
			slog.Info("subscriber: channel completed", "topic", topic)
		}
	})

	if failed != nil {
		slog.Error("subscriber: channel error", "topic", topic, "err", failed)
		// Release the broken channel; teardown may already have done so.
		s.conn.Disconnect() //nolint:errcheck
	}

	s.mu.Lock()
	s.state = Closed
	if failed != nil {
		s.err = failed
	}
	s.mu.Unlock()
	close(done)
}
