package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopstream/shopstream/server/internal/alerts"
	"github.com/shopstream/shopstream/server/internal/api"
	"github.com/shopstream/shopstream/server/internal/config"
	"github.com/shopstream/shopstream/server/internal/metrics"
	"github.com/shopstream/shopstream/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

var topics = config.TopicsConfig{Click: "click-data", Offers: "special-offers"}

type fakeHub map[string]int

func (f fakeHub) Topics() map[string]int { return f }

type fakeAlerts []alerts.Alert

func (f fakeAlerts) Recent() []alerts.Alert { return f }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newStore(streams ...[2]string) *store.Store {
	st := store.New(5 * time.Minute)
	for _, s := range streams {
		st.Touch(s[0], s[1])
	}
	return st
}

func newHandler(st *store.Store) http.Handler {
	return api.New(api.Deps{Topics: topics, Store: st})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- topic names ------------------------------------------------------------

func TestTopicNames(t *testing.T) {
	h := newHandler(newStore())

	cases := map[string]string{
		api.ClickTopicPath:  "click-data\n",
		api.OffersTopicPath: "special-offers\n",
	}
	for path, want := range cases {
		rr := get(t, h, path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status: got %d, want 200", path, rr.Code)
		}
		if got := rr.Body.String(); got != want {
			t.Errorf("%s body: got %q, want %q", path, got, want)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
			t.Errorf("%s Content-Type: got %q", path, ct)
		}
		if o := rr.Header().Get("Access-Control-Allow-Origin"); o != "*" {
			t.Errorf("%s CORS: got %q, want *", path, o)
		}
	}
}

func TestTopicNames_OverRealServer(t *testing.T) {
	srv := httptest.NewServer(newHandler(newStore()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + api.ClickTopicPath)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "click-data" {
		t.Errorf("body: got %q", body)
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_OK(t *testing.T) {
	m := metrics.New()
	m.Published("click-data")
	m.Published("click-data")
	m.Delivered("special-offers", 3)
	m.SubscriberJoined("special-offers")

	h := api.New(api.Deps{
		Topics:  topics,
		Store:   newStore([2]string{"click-data", "u-1"}),
		Broker:  fakePinger{},
		Metrics: m,
	})
	rr := get(t, h, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "ok" {
		t.Errorf("state: got %q, want ok", resp.State)
	}
	if resp.ActiveStreams != 1 {
		t.Errorf("active_streams: got %d, want 1", resp.ActiveStreams)
	}
	if resp.Published != 2 || resp.Delivered != 3 || resp.Subscribers != 1 {
		t.Errorf("totals: got %+v", resp)
	}
}

func TestHealth_BrokerDown(t *testing.T) {
	h := api.New(api.Deps{
		Topics: topics,
		Store:  newStore(),
		Broker: fakePinger{err: errors.New("dial tcp: connection refused")},
	})
	rr := get(t, h, "/api/v1/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}

	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "degraded" {
		t.Errorf("state: got %q, want degraded", resp.State)
	}
	if !strings.Contains(resp.BrokerError, "connection refused") {
		t.Errorf("broker_error: got %q", resp.BrokerError)
	}
}

func TestHealth_NoBrokerNoMetrics(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
}

// --- /api/v1/topics ---------------------------------------------------------

func TestTopics(t *testing.T) {
	h := api.New(api.Deps{
		Topics: topics,
		Store:  newStore([2]string{"click-data", "u-1"}, [2]string{"click-data", "u-2"}),
		Hub:    fakeHub{"special-offers": 2, "alerts": 1},
	})
	rr := get(t, h, "/api/v1/topics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp []api.TopicResponse
	decode(t, rr, &resp)
	if len(resp) != 3 {
		t.Fatalf("len: got %d, want 3 (%+v)", len(resp), resp)
	}

	// Sorted by name.
	want := []api.TopicResponse{
		{Name: "alerts", Subscribers: 1},
		{Name: "click-data", Role: "click", ActiveStreams: 2},
		{Name: "special-offers", Role: "offers", Subscribers: 2},
	}
	for i := range want {
		if resp[i] != want[i] {
			t.Errorf("[%d]: got %+v, want %+v", i, resp[i], want[i])
		}
	}
}

// --- /api/v1/streams --------------------------------------------------------

func TestStreams_List(t *testing.T) {
	st := newStore([2]string{"click-data", "u-1"}, [2]string{"special-offers", "u-1"})
	rr := get(t, newHandler(st), "/api/v1/streams")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.StreamResponse
	decode(t, rr, &resp)
	if len(resp) != 2 {
		t.Fatalf("len: got %d, want 2", len(resp))
	}
}

func TestStreams_FilterByTopic(t *testing.T) {
	st := newStore([2]string{"click-data", "u-1"}, [2]string{"special-offers", "u-1"})
	rr := get(t, newHandler(st), "/api/v1/streams?topic=click-data")

	var resp []api.StreamResponse
	decode(t, rr, &resp)
	if len(resp) != 1 || resp[0].Topic != "click-data" {
		t.Fatalf("got %+v, want one click-data stream", resp)
	}
}

func TestStreams_Empty(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/streams")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body: got %s, want []", body)
	}
}

func TestStreams_Get(t *testing.T) {
	st := newStore([2]string{"click-data", "u-42"}, [2]string{"click-data", "u-42"})
	rr := get(t, newHandler(st), "/api/v1/streams/click-data/u-42")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp api.StreamResponse
	decode(t, rr, &resp)
	if resp.Stream != "u-42" || resp.Messages != 2 {
		t.Errorf("got %+v, want stream u-42 with 2 messages", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.LastSeen); err != nil {
		t.Errorf("last_seen not RFC3339: %q", resp.LastSeen)
	}
}

func TestStreams_GetNotFound(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/streams/click-data/nobody")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("expected error message")
	}
}

func TestStreams_GetMalformed(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/streams/click-data")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

// --- /api/v1/alerts --------------------------------------------------------

func TestAlerts(t *testing.T) {
	h := api.New(api.Deps{
		Topics: topics,
		Store:  newStore(),
		Alerts: fakeAlerts{{ID: "a1", Topic: "fraud", Stream: "u-1", Message: "card testing", Delivered: 1}},
	})
	rr := get(t, h, "/api/v1/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []alerts.Alert
	decode(t, rr, &resp)
	if len(resp) != 1 || resp[0].Message != "card testing" {
		t.Errorf("got %+v", resp)
	}
}

func TestAlerts_NoneConfigured(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/alerts")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body: got %s, want []", body)
	}
}

// --- methods ----------------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	h := newHandler(newStore())
	for _, path := range []string{
		"/api/v1/health",
		"/api/v1/topics",
		"/api/v1/streams",
		"/api/v1/streams/click-data/u-1",
		"/api/v1/alerts",
		api.ClickTopicPath,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, rr.Code)
		}
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Published("click-data")
	h := api.New(api.Deps{Topics: topics, Store: newStore(), Metrics: m})

	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `shopstream_messages_published_total{topic="click-data"} 1`) {
		t.Errorf("exposition missing published counter:\n%s", rr.Body.String())
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/metrics")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
}
