package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopstream/shopstream/server/internal/alerts"
	"github.com/shopstream/shopstream/server/internal/config"
	"github.com/shopstream/shopstream/server/internal/metrics"
	"github.com/shopstream/shopstream/server/internal/store"
)

// Paths serving the topic names to clients as plain text.
const (
	ClickTopicPath  = "/click_topic"
	OffersTopicPath = "/offers_topic"
)

// pingTimeout bounds the broker health probe.
const pingTimeout = 2 * time.Second

// HubStats reports subscriber counts per topic. *gateway.Hub satisfies it.
type HubStats interface {
	Topics() map[string]int
}

// Pinger is implemented by brokers that can probe their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AlertSource lists recently forwarded alerts. *alerts.Notifier satisfies it.
type AlertSource interface {
	Recent() []alerts.Alert
}

// Deps are the collaborators the API reads from. Only Store is required.
type Deps struct {
	Topics  config.TopicsConfig
	Store   *store.Store
	Hub     HubStats
	Broker  Pinger
	Alerts  AlertSource
	Metrics *metrics.Metrics
}

// Handler serves the topic lookups, /api/v1/* and /metrics.
type Handler struct {
	deps    Deps
	started time.Time
	mux     *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, started: time.Now(), mux: http.NewServeMux()}

	h.mux.HandleFunc(ClickTopicPath, h.topicName(deps.Topics.Click))
	h.mux.HandleFunc(OffersTopicPath, h.topicName(deps.Topics.Offers))
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/topics", h.listTopics)
	h.mux.HandleFunc("/api/v1/streams", h.listStreams)
	h.mux.HandleFunc("/api/v1/streams/", h.getStream) // subtree, extracts {topic}/{stream}
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	if deps.Metrics != nil {
		h.mux.Handle("/metrics", deps.Metrics.Handler())
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// topicName serves one topic name as text/plain with a trailing line feed.
func (h *Handler) topicName(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(name + "\n")) //nolint:errcheck
	}
}

// health returns GET /api/v1/health: broker reachability and traffic totals.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		State:         "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		ActiveStreams: len(h.deps.Store.List("")),
	}

	if h.deps.Broker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.deps.Broker.Ping(ctx); err != nil {
			resp.State = "degraded"
			resp.BrokerError = err.Error()
		}
	}

	if sum, err := h.deps.Metrics.Summary(); err == nil {
		resp.Published = int64(sum.Published)
		resp.Delivered = int64(sum.Delivered)
		resp.Dropped = int64(sum.Dropped)
		resp.Subscribers = int(sum.Subscribers)
	}

	code := http.StatusOK
	if resp.State != "ok" {
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// listTopics returns GET /api/v1/topics: the configured topics plus every
// topic that currently has subscribers.
func (h *Handler) listTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counts := map[string]int{}
	if h.deps.Hub != nil {
		counts = h.deps.Hub.Topics()
	}
	streams := map[string]int{}
	for _, s := range h.deps.Store.List("") {
		streams[s.Topic]++
	}

	roles := map[string]string{
		h.deps.Topics.Click:  "click",
		h.deps.Topics.Offers: "offers",
	}
	names := make(map[string]struct{}, len(roles)+len(counts)+len(streams))
	for n := range roles {
		names[n] = struct{}{}
	}
	for n := range counts {
		names[n] = struct{}{}
	}
	for n := range streams {
		names[n] = struct{}{}
	}

	out := make([]TopicResponse, 0, len(names))
	for n := range names {
		out = append(out, TopicResponse{
			Name:          n,
			Role:          roles[n],
			Subscribers:   counts[n],
			ActiveStreams: streams[n],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	jsonResp(w, http.StatusOK, out)
}

// listStreams returns GET /api/v1/streams[?topic=name]: live streams, most
// recent first.
func (h *Handler) listStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.deps.Store.List(r.URL.Query().Get("topic"))
	out := make([]StreamResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toStreamResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getStream returns GET /api/v1/streams/{topic}/{stream}: one live stream.
func (h *Handler) getStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/streams/")
	if rest == "" {
		// Bare /api/v1/streams/ lists.
		h.listStreams(w, r)
		return
	}
	topic, stream, ok := strings.Cut(rest, "/")
	if !ok || topic == "" || stream == "" {
		jsonErr(w, http.StatusBadRequest, "want /api/v1/streams/{topic}/{stream}")
		return
	}

	for _, e := range h.deps.Store.List(topic) {
		if e.Stream == stream {
			jsonResp(w, http.StatusOK, toStreamResponse(e))
			return
		}
	}
	// Unknown and stale streams are both not found.
	jsonErr(w, http.StatusNotFound, "stream not found")
}

// listAlerts returns GET /api/v1/alerts: recently forwarded alerts, newest
// first.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []alerts.Alert{}
	if h.deps.Alerts != nil {
		out = append(out, h.deps.Alerts.Recent()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toStreamResponse maps a store.Stream to its JSON representation.
func toStreamResponse(s store.Stream) StreamResponse {
	return StreamResponse{
		Topic:     s.Topic,
		Stream:    s.Stream,
		Messages:  s.Messages,
		FirstSeen: s.FirstSeen.UTC().Format(time.RFC3339),
		LastSeen:  s.LastSeen.UTC().Format(time.RFC3339),
	}
}
