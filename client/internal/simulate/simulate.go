package simulate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shopstream/shopstream/client/internal/config"
	"github.com/shopstream/shopstream/client/internal/event"
)

// Sender publishes one payload to a topic stream. *publisher.Publisher
// satisfies it.
type Sender interface {
	Send(ctx context.Context, topic, streamID string, payload any) error
}

var genders = []string{"F", "M", "U"}

// userAgents mirrors the spread of browsers seen on the storefront.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
}

// Stats counts the outcome of a run.
type Stats struct {
	Sent   int64
	Failed int64
}

// Simulator publishes synthetic click events at a fixed rate.
type Simulator struct {
	sender   Sender
	address  event.AddressResolver
	limiter  *rate.Limiter
	count    int
	products []string
	users    []event.User
	rng      *rand.Rand

	sent   atomic.Int64
	failed atomic.Int64
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithUsers replaces the generated user pool.
func WithUsers(users ...event.User) Option {
	return func(s *Simulator) { s.users = users }
}

// WithSeed makes event generation deterministic, including the IDs of the
// generated user pool.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// New creates a Simulator from cfg.
func New(sender Sender, address event.AddressResolver, cfg config.SimulateConfig, opts ...Option) (*Simulator, error) {
	if len(cfg.Products) == 0 {
		return nil, errors.New("simulate: no products configured")
	}
	s := &Simulator{
		sender:   sender,
		address:  address,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		count:    cfg.Count,
		products: cfg.Products,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.users) == 0 {
		s.users = s.randomUsers(8)
	}
	return s, nil
}

// Run publishes events to topic until the configured count is reached or
// ctx is cancelled. Individual send failures are counted, not returned.
func (s *Simulator) Run(ctx context.Context, topic string) (Stats, error) {
	ip, err := s.address.PublicAddress(ctx)
	if err != nil {
		return s.Stats(), fmt.Errorf("simulate: %w", err)
	}

	for i := 0; s.count == 0 || i < s.count; i++ {
		// Wait fails only when ctx ends, or would end, before the next token.
		if err := s.limiter.Wait(ctx); err != nil {
			slog.Debug("simulate: stopping", "reason", err)
			break
		}

		e := s.next(ip)
		if err := s.sender.Send(ctx, topic, e.StreamID(), e); err != nil {
			s.failed.Add(1)
			slog.Warn("simulate: event not delivered", "user", e.UserID, "err", err)
			continue
		}
		s.sent.Add(1)
	}

	st := s.Stats()
	slog.Info("simulate: run finished", "topic", topic, "sent", st.Sent, "failed", st.Failed)
	return st, nil
}

// Stats returns the counters so far.
func (s *Simulator) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load()}
}

func (s *Simulator) next(ip string) event.ClickEvent {
	u := s.users[s.rng.IntN(len(s.users))]
	product := s.products[s.rng.IntN(len(s.products))]
	agent := userAgents[s.rng.IntN(len(userAgents))]
	return event.NewClickEvent(u, ip, agent, product)
}

func (s *Simulator) randomUsers(n int) []event.User {
	users := make([]event.User, n)
	for i := range users {
		users[i] = event.User{
			UserID: s.userID(),
			Age:    18 + s.rng.IntN(60),
			Gender: genders[s.rng.IntN(len(genders))],
		}
	}
	return users
}

// userID draws a version 4 UUID from s.rng.
func (s *Simulator) userID() string {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], s.rng.Uint64())
	binary.LittleEndian.PutUint64(b[8:], s.rng.Uint64())
	id, err := uuid.NewRandomFromReader(bytes.NewReader(b[:]))
	if err != nil {
		// A 16-byte reader cannot run short.
		panic(err)
	}
	return id.String()
}
