package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopstream/shopstream/server/internal/broker"
	"github.com/shopstream/shopstream/server/internal/config"
)

// --- helpers ----------------------------------------------------------------

// hookServer records every JSON body posted to it.
type hookServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []map[string]interface{}
	got    chan struct{}
}

func newHookServer(t *testing.T, status int) *hookServer {
	t.Helper()
	h := &hookServer{got: make(chan struct{}, 16)}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		json.Unmarshal(raw, &body) //nolint:errcheck
		h.mu.Lock()
		h.bodies = append(h.bodies, body)
		h.mu.Unlock()
		w.WriteHeader(status)
		h.got <- struct{}{}
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *hookServer) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.got:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func (h *hookServer) body(i int) map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bodies[i]
}

func (h *hookServer) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bodies)
}

func webhook(t *testing.T, typ, url string) config.WebhookConfig {
	t.Helper()
	env := "TEST_HOOK_" + typ
	t.Setenv(env, url)
	return config.WebhookConfig{Type: typ, URLEnv: env}
}

func msg(topic, key, value string) broker.Message {
	return broker.Message{Topic: topic, Key: key, Value: []byte(value), Time: time.Now()}
}

// --- delivery ---------------------------------------------------------------

func TestHandle_HTTPWebhookBody(t *testing.T) {
	hook := newHookServer(t, http.StatusOK)
	n := New(config.AlertsConfig{Webhooks: []config.WebhookConfig{webhook(t, "http", hook.URL)}})

	n.handle(context.Background(), msg("fraud", "u-1", `"suspicious basket"`))
	hook.wait(t)

	if got := hook.body(0)["message"]; got != "suspicious basket" {
		t.Errorf("message: got %v, want suspicious basket", got)
	}
}

func TestHandle_SlackAndTeams(t *testing.T) {
	slack := newHookServer(t, http.StatusOK)
	teams := newHookServer(t, http.StatusOK)
	n := New(config.AlertsConfig{Webhooks: []config.WebhookConfig{
		webhook(t, "slack", slack.URL),
		webhook(t, "teams", teams.URL),
	}})

	n.handle(context.Background(), msg("fraud", "u-1", `{"score":0.9}`))
	slack.wait(t)
	teams.wait(t)

	if got := slack.body(0)["text"]; got != `*fraud* {"score":0.9}` {
		t.Errorf("slack text: got %v", got)
	}
	tb := teams.body(0)
	if tb["@type"] != "MessageCard" || tb["title"] != "Shopstream: fraud" {
		t.Errorf("teams card: got %v", tb)
	}
}

func TestHandle_FailedWebhookNotCounted(t *testing.T) {
	ok := newHookServer(t, http.StatusOK)
	bad := newHookServer(t, http.StatusInternalServerError)
	n := New(config.AlertsConfig{Webhooks: []config.WebhookConfig{
		webhook(t, "http", ok.URL),
		webhook(t, "slack", bad.URL),
		{Type: "teams", URLEnv: "TEST_HOOK_UNSET"},
	}})

	n.handle(context.Background(), msg("fraud", "u-1", "plain text"))

	recent := n.Recent()
	if len(recent) != 1 {
		t.Fatalf("recent: got %d, want 1", len(recent))
	}
	if recent[0].Delivered != 1 {
		t.Errorf("delivered: got %d, want 1", recent[0].Delivered)
	}
	if recent[0].Message != "plain text" || recent[0].Stream != "u-1" {
		t.Errorf("alert: got %+v", recent[0])
	}
	if recent[0].ID == "" {
		t.Error("alert id is empty")
	}
}

// --- cooldown ---------------------------------------------------------------

func TestHandle_Cooldown(t *testing.T) {
	hook := newHookServer(t, http.StatusOK)
	n := New(config.AlertsConfig{
		Webhooks: []config.WebhookConfig{webhook(t, "http", hook.URL)},
		Cooldown: time.Minute,
	})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	n.handle(ctx, msg("fraud", "u-1", `"a"`))
	n.handle(ctx, msg("fraud", "u-1", `"b"`)) // suppressed
	n.handle(ctx, msg("fraud", "u-2", `"c"`)) // other stream
	now = now.Add(2 * time.Minute)
	n.handle(ctx, msg("fraud", "u-1", `"d"`))

	if got := hook.count(); got != 3 {
		t.Fatalf("webhook calls: got %d, want 3", got)
	}
	recent := n.Recent()
	if recent[0].Message != "d" || recent[2].Message != "a" {
		t.Errorf("recent order: got %q .. %q, want d .. a", recent[0].Message, recent[2].Message)
	}
}

func TestRecent_CappedAtHistoryLen(t *testing.T) {
	n := New(config.AlertsConfig{})
	for i := 0; i < maxHistoryLen+10; i++ {
		n.handle(context.Background(), msg("fraud", "u", "x"))
	}
	if got := len(n.Recent()); got != maxHistoryLen {
		t.Errorf("len: got %d, want %d", got, maxHistoryLen)
	}
}

// --- Run --------------------------------------------------------------------

func TestRun_ForwardsBrokerMessages(t *testing.T) {
	hook := newHookServer(t, http.StatusOK)
	n := New(config.AlertsConfig{
		Topics:   []string{"fraud"},
		Webhooks: []config.WebhookConfig{webhook(t, "http", hook.URL)},
	})

	b := broker.NewMemory()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, b) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers("fraud") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notifier never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := b.Produce(ctx, "special-offers", "u-1", []byte(`"ignored"`)); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if err := b.Produce(ctx, "fraud", "u-1", []byte(`"card testing"`)); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	hook.wait(t)
	if got := hook.body(0)["message"]; got != "card testing" {
		t.Errorf("message: got %v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := hook.count(); got != 1 {
		t.Errorf("webhook calls: got %d, want 1", got)
	}
}

func TestRun_NoTopics(t *testing.T) {
	n := New(config.AlertsConfig{})
	if err := n.Run(context.Background(), broker.NewMemory()); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRun_SubscribeError(t *testing.T) {
	b := broker.NewMemory()
	b.Close()
	n := New(config.AlertsConfig{Topics: []string{"fraud"}})
	if err := n.Run(context.Background(), b); err == nil {
		t.Error("expected error from closed broker")
	}
}

// --- messageText ------------------------------------------------------------

func TestMessageText(t *testing.T) {
	cases := map[string]string{
		`"hello"`:         "hello",
		`{ "a" : 1 }`:     `{"a":1}`,
		`not json at all`: "not json at all",
		`42`:              "42",
	}
	for in, want := range cases {
		if got := messageText([]byte(in)); got != want {
			t.Errorf("messageText(%q): got %q, want %q", in, got, want)
		}
	}
}
