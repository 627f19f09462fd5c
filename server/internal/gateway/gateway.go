package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopstream/shopstream/server/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// maxMessageSize bounds one inbound publish message.
	maxMessageSize = 64 << 10

	// publishIdle closes publish channels that send nothing for this long.
	publishIdle = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Allow all origins; the storefront is served from a different host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Routes mounts the publish and subscribe endpoints on mux:
//
//	GET /topic/{topic}/stream/{stream}  publish
//	GET /topic/{topic}                  subscribe
func Routes(mux *http.ServeMux, hub *Hub, pub *PublishHandler) {
	mux.Handle("GET /topic/{topic}/stream/{stream}", pub)
	mux.Handle("GET /topic/{topic}", hub)
}

// frame turns a broker value into a text frame. JSON values pass through
// unchanged; anything else is sent as a JSON string so every frame a
// subscriber receives is valid JSON.
func frame(value []byte) []byte {
	if json.Valid(value) {
		return value
	}
	b, _ := json.Marshal(string(value))
	return b
}

// closeOutcome classifies the error that ended a read loop.
func closeOutcome(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return metrics.OutcomeNormal
	}
	return metrics.OutcomeError
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)) //nolint:errcheck
}
