package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopstream/shopstream/server/internal/broker"
	"github.com/shopstream/shopstream/server/internal/metrics"
)

const (
	// defaultPingPeriod controls how often the hub pings subscribers.
	defaultPingPeriod = 30 * time.Second

	// defaultSendBuf is the per-client outgoing message buffer depth.
	defaultSendBuf = 256
)

var errHubClosed = errors.New("gateway: hub closed")

// Hub serves /topic/{topic}: it keeps the set of connected clients per
// topic, runs one broker consumer per topic while the topic has clients,
// and fans every consumed message out to them.
type Hub struct {
	broker     broker.Broker
	metrics    *metrics.Metrics
	sendBuf    int
	pingPeriod time.Duration
	pongWait   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	topics map[string]*topic
}

// topic is the fan-out state of one topic with at least one client.
type topic struct {
	name    string
	clients map[*client]struct{}
	stop    context.CancelFunc
}

// client represents one connected subscribe-endpoint client.
type client struct {
	conn  *websocket.Conn
	topic string
	send  chan []byte

	// closeCode is written before send is closed and read after.
	closeCode int
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithMetrics records fan-out metrics on m.
func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithSendBuffer sets how many messages a client may fall behind before it
// is disconnected.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuf = n
		}
	}
}

// WithPingPeriod sets the keepalive ping interval. A client that does not
// answer within 10/9 of it is dropped.
func WithPingPeriod(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// NewHub creates a Hub consuming from b.
func NewHub(b broker.Broker, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		broker:     b,
		sendBuf:    defaultSendBuf,
		pingPeriod: defaultPingPeriod,
		ctx:        ctx,
		cancel:     cancel,
		topics:     make(map[string]*topic),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.pongWait = h.pingPeriod * 10 / 9
	return h
}

// Run blocks until ctx is cancelled, then closes every client and stops
// every consumer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

// Close disconnects all clients with a going-away frame and waits for the
// consumers to stop. New clients are refused afterwards.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for name, t := range h.topics {
		for c := range t.clients {
			h.removeLocked(t, c, websocket.CloseGoingAway)
		}
		delete(h.topics, name)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

// ServeHTTP upgrades the connection and streams the topic's messages to it
// until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("topic")
	if name == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:      conn,
		topic:     name,
		send:      make(chan []byte, h.sendBuf),
		closeCode: websocket.CloseNormalClosure,
	}
	if err := h.register(c); err != nil {
		slog.Warn("gateway: subscriber refused", "topic", name, "err", err)
		code := websocket.CloseInternalServerErr
		if errors.Is(err, errHubClosed) {
			code = websocket.CloseGoingAway
		}
		writeClose(conn, code, "")
		conn.Close()
		return
	}
	defer h.unregister(c)

	slog.Debug("gateway: subscriber joined", "topic", name, "remote", r.RemoteAddr)
	go c.writePump(h.pingPeriod)
	outcome := c.readPump(h.pongWait) // blocks until connection closes
	h.metrics.ConnectionClosed(metrics.RoleSubscriber, outcome)
}

// Count returns the number of clients connected to topic name.
func (h *Hub) Count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[name]; ok {
		return len(t.clients)
	}
	return 0
}

// Topics returns the client count of every topic that has clients.
func (h *Hub) Topics() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.topics))
	for name, t := range h.topics {
		out[name] = len(t.clients)
	}
	return out
}

// --- internal ---------------------------------------------------------------

// register adds c, starting the topic's consumer if c is its first client.
func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx.Err() != nil {
		return errHubClosed
	}

	t, ok := h.topics[c.topic]
	if !ok {
		ctx, stop := context.WithCancel(h.ctx)
		msgs, err := h.broker.Subscribe(ctx, c.topic)
		if err != nil {
			stop()
			return err
		}
		t = &topic{name: c.topic, clients: make(map[*client]struct{}), stop: stop}
		h.topics[c.topic] = t

		h.wg.Add(1)
		go h.consume(t, msgs)
		slog.Info("gateway: consumer started", "topic", c.topic)
	}
	t.clients[c] = struct{}{}
	h.metrics.SubscriberJoined(c.topic)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[c.topic]; ok {
		h.removeLocked(t, c, websocket.CloseNormalClosure)
	}
}

// removeLocked drops c from t and stops t's consumer once t is empty.
// Callers hold h.mu.
func (h *Hub) removeLocked(t *topic, c *client, code int) {
	if _, ok := t.clients[c]; !ok {
		return
	}
	delete(t.clients, c)
	c.closeCode = code
	close(c.send)
	h.metrics.SubscriberLeft(t.name)

	if len(t.clients) == 0 {
		t.stop()
		delete(h.topics, t.name)
		slog.Info("gateway: consumer stopped", "topic", t.name)
	}
}

// consume forwards broker messages to t until the subscription ends.
func (h *Hub) consume(t *topic, msgs <-chan broker.Message) {
	defer h.wg.Done()
	for m := range msgs {
		h.broadcast(t, frame(m.Value))
	}
}

// broadcast delivers data to t's clients. A consumer whose topic has been
// stopped and replaced delivers nothing, even while its subscription drains.
func (h *Hub) broadcast(t *topic, data []byte) {
	name := t.name
	h.mu.Lock()
	if h.topics[name] != t {
		h.mu.Unlock()
		return
	}
	delivered := 0
	for c := range t.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			// Client's outgoing buffer is full; disconnect it.
			slog.Warn("gateway: slow subscriber dropped", "topic", name, "buffer", cap(c.send))
			h.metrics.Dropped(name)
			h.removeLocked(t, c, websocket.ClosePolicyViolation)
		}
	}
	h.mu.Unlock()

	h.metrics.Delivered(name, delivered)
}

// writePump drains the client's send channel to the connection and pings
// periodically. Runs in its own goroutine per client.
func (c *client) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Removed from the hub: say why, then hang up.
				writeClose(c.conn, c.closeCode, "")
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump processes control frames (pong, close) and detects disconnects.
// It blocks until the connection closes and reports how it ended.
func (c *client) readPump(pongWait time.Duration) string {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return closeOutcome(err)
		}
	}
}
