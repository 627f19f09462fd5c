package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the deadline for a single message write.
	writeTimeout = 10 * time.Second

	// closeGrace is how long Disconnect waits for the peer to answer the
	// close frame before dropping the TCP connection.
	closeGrace = time.Second
)

var (
	// ErrNotConnected is returned by Send and Observe without an open channel.
	ErrNotConnected = errors.New("wsconn: not connected")

	// ErrAlreadyObserved is returned by a second Observe on the same channel.
	ErrAlreadyObserved = errors.New("wsconn: channel already observed")

	// ErrInvalidPayload reports an inbound frame that is not JSON.
	ErrInvalidPayload = errors.New("wsconn: inbound payload is not valid JSON")
)

// Conn owns at most one WebSocket channel. The zero value is not usable;
// create one with New.
type Conn struct {
	dialer *websocket.Dialer
	header http.Header

	mu   sync.Mutex
	sess *session
}

// session is one dialled channel.
type session struct {
	ws  *websocket.Conn
	url string

	writeMu   sync.Mutex
	closed    atomic.Bool
	observing atomic.Bool
	readDone  chan struct{}
}

// Option customises a Conn.
type Option func(*Conn)

// WithDialer replaces the default gorilla dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// WithHeader sets extra handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Conn) { c.header = h }
}

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) {
		dialer := *c.dialer
		dialer.HandshakeTimeout = d
		c.dialer = &dialer
	}
}

// New creates an unconnected Conn.
func New(opts ...Option) *Conn {
	c := &Conn{dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials url and takes ownership of the channel. A channel already
// owned is closed first.
func (c *Conn) Connect(ctx context.Context, url string) error {
	ws, resp, err := c.dialer.DialContext(ctx, url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("wsconn: dial %s: %w", url, err)
	}

	c.mu.Lock()
	prev := c.sess
	c.sess = &session{ws: ws, url: url, readDone: make(chan struct{})}
	c.mu.Unlock()

	if prev != nil {
		slog.Warn("wsconn: replacing open channel", "previous", prev.url, "url", url)
		prev.close(websocket.CloseNormalClosure) //nolint:errcheck
	}
	return nil
}

// Disconnect completes the owned channel with a normal-closure frame and
// releases it. It is a no-op when nothing is owned.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.close(websocket.CloseNormalClosure)
}

// Connected reports whether a channel is currently owned.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// URL returns the endpoint of the owned channel, or "".
func (c *Conn) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.url
}

// Send writes v as one JSON text frame.
func (c *Conn) Send(v any) error {
	s := c.current()
	if s == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsconn: marshal payload: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("wsconn: write %s: %w", s.url, err)
	}
	return nil
}

// Observe runs the read loop of the owned channel, passing every inbound
// payload to fn as a Message event. It ends with exactly one Error or
// Completed event and then returns. Observe blocks; run it in its own
// goroutine. fn must not call Disconnect.
func (c *Conn) Observe(fn func(Event)) error {
	s := c.current()
	if s == nil {
		return ErrNotConnected
	}
	if !s.observing.CompareAndSwap(false, true) {
		return ErrAlreadyObserved
	}
	defer close(s.readDone)

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fn(Event{Kind: Completed})
			} else {
				fn(Event{Kind: Error, Err: fmt.Errorf("wsconn: read %s: %w", s.url, err)})
			}
			return nil
		}

		if !json.Valid(data) {
			fn(Event{Kind: Error, Err: ErrInvalidPayload})
			// Terminate the channel; the owner still holds it until Disconnect.
			s.closed.Store(true)
			s.ws.Close()
			return nil
		}
		fn(Event{Kind: Message, Payload: json.RawMessage(data)})
	}
}

func (c *Conn) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// close sends a close frame with code, waits briefly for the read loop to see
// the peer's reply, then drops the connection. Safe to call more than once.
func (s *session) close(code int) error {
	if !s.closed.CompareAndSwap(false, true) {
		s.ws.Close()
		return nil
	}

	msg := websocket.FormatCloseMessage(code, "")
	werr := s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))

	if werr == nil && s.observing.Load() {
		select {
		case <-s.readDone:
		case <-time.After(closeGrace):
		}
	}

	cerr := s.ws.Close()
	switch {
	case werr != nil && !errors.Is(werr, websocket.ErrCloseSent) && !errors.Is(werr, net.ErrClosed):
		return fmt.Errorf("wsconn: close %s: %w", s.url, werr)
	case cerr != nil && !errors.Is(cerr, net.ErrClosed):
		return fmt.Errorf("wsconn: close %s: %w", s.url, cerr)
	}
	return nil
}
