package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopstream/shopstream/server/internal/broker"
	"github.com/shopstream/shopstream/server/internal/metrics"
	"github.com/shopstream/shopstream/server/internal/store"
)

// PublishHandler serves /topic/{topic}/stream/{stream}: every inbound
// message is produced to the topic keyed by the stream id.
type PublishHandler struct {
	broker  broker.Broker
	store   *store.Store
	metrics *metrics.Metrics
}

// NewPublishHandler creates a handler producing to b and recording activity
// in st. m may be nil.
func NewPublishHandler(b broker.Broker, st *store.Store, m *metrics.Metrics) *PublishHandler {
	return &PublishHandler{broker: b, store: st, metrics: m}
}

func (p *PublishHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic, stream := r.PathValue("topic"), r.PathValue("stream")
	if topic == "" || stream == "" {
		http.Error(w, "topic and stream are required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	defer conn.Close()

	log := slog.With("topic", topic, "stream", stream)
	log.Debug("gateway: publish channel open", "remote", r.RemoteAddr)

	conn.SetReadLimit(maxMessageSize)
	for {
		conn.SetReadDeadline(time.Now().Add(publishIdle)) //nolint:errcheck
		_, data, err := conn.ReadMessage()
		if err != nil {
			outcome := closeOutcome(err)
			if outcome == metrics.OutcomeNormal {
				log.Debug("gateway: publish channel closed")
			} else {
				log.Warn("gateway: publish channel error", "err", err)
			}
			p.metrics.ConnectionClosed(metrics.RolePublisher, outcome)
			return
		}

		if err := p.broker.Produce(r.Context(), topic, stream, data); err != nil {
			log.Error("gateway: produce failed", "err", err)
			writeClose(conn, websocket.CloseInternalServerErr, "produce failed")
			p.metrics.ConnectionClosed(metrics.RolePublisher, metrics.OutcomeError)
			return
		}
		p.store.Touch(topic, stream)
		p.metrics.Published(topic)
	}
}
