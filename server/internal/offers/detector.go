package offers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopstream/shopstream/server/internal/broker"
	"github.com/shopstream/shopstream/server/internal/config"
	"github.com/shopstream/shopstream/server/internal/metrics"
)

// Offers handed out by gender.
const (
	OfferMale   = "offer1"
	OfferFemale = "offer2"
)

const (
	categoryClothing = "clothing"
	categoryShoes    = "shoes"
)

var errIncomplete = errors.New("offers: click lacks user, product, gender or age")

// Broker is the part of broker.Broker the detector uses.
type Broker interface {
	Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error)
	Produce(ctx context.Context, topic, key string, value []byte) error
}

// Offer is the payload produced to the offers topic.
type Offer struct {
	UserID string `json:"userId"`
	Offer  string `json:"offer"`
}

type state int

const (
	stateInit state = iota
	stateClothesVisited
	stateShoesVisited
	stateOffer
)

var stateNames = [...]string{"init", "clothes_visited", "shoes_visited", "offer"}

func (s state) String() string { return stateNames[s] }

// click is the part of a click event the detector reads.
type click struct {
	UserID    string
	ProductID string
	Category  string
	Gender    string // first letter, upper case
	Age       int
	At        time.Time
}

// visit is one click that moved a shopper forward.
type visit struct {
	product string
	at      time.Time
}

type shopper struct {
	state    state
	visits   []visit
	lastSeen time.Time
}

// Detector runs the per-shopper state machine over the click topic.
//
// Detector is safe for concurrent use.
type Detector struct {
	clickTopic  string
	offersTopic string
	window      time.Duration
	catalog     map[string]string
	metrics     *metrics.Metrics

	mu       sync.Mutex
	shoppers map[string]*shopper
	now      func() time.Time
}

// Option customises a Detector.
type Option func(*Detector)

// WithMetrics counts produced offers as published on the offers topic.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// New creates a Detector reading topics.Click and writing topics.Offers.
func New(topics config.TopicsConfig, cfg config.OffersConfig, opts ...Option) *Detector {
	window := cfg.Window
	if window <= 0 {
		window = config.DefaultOfferWindow
	}
	d := &Detector{
		clickTopic:  topics.Click,
		offersTopic: topics.Offers,
		window:      window,
		catalog:     cfg.EffectiveCatalog(),
		shoppers:    make(map[string]*shopper),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes the click topic from b until ctx is cancelled or the broker
// closes, producing an offer each time a shopper completes the pattern.
func (d *Detector) Run(ctx context.Context, b Broker) error {
	msgs, err := b.Subscribe(ctx, d.clickTopic)
	if err != nil {
		return fmt.Errorf("offers: subscribe %q: %w", d.clickTopic, err)
	}
	slog.Info("offers: detector started", "click_topic", d.clickTopic, "offers_topic", d.offersTopic, "window", d.window)

	interval := d.window / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if n := d.Evict(now); n > 0 {
				slog.Debug("offers: forgot idle shoppers", "count", n)
			}
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := d.handle(ctx, b, m); err != nil {
				if errors.Is(err, broker.ErrClosed) {
					return nil
				}
				slog.Warn("offers: offer not produced", "user", m.Key, "err", err)
			}
		}
	}
}

// Evict forgets shoppers idle for longer than the window and returns how
// many were removed.
func (d *Detector) Evict(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := now.Add(-d.window)
	removed := 0
	for id, s := range d.shoppers {
		if !s.lastSeen.After(cutoff) {
			delete(d.shoppers, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of shoppers with state.
func (d *Detector) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shoppers)
}

func (d *Detector) handle(ctx context.Context, b Broker, m broker.Message) error {
	c, err := d.parse(m)
	if err != nil {
		slog.Debug("offers: click ignored", "key", m.Key, "err", err)
		return nil
	}

	offer, ok := d.observe(c)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(Offer{UserID: c.UserID, Offer: offer})
	if err != nil {
		return err
	}
	if err := b.Produce(ctx, d.offersTopic, c.UserID, payload); err != nil {
		return err
	}
	d.metrics.Published(d.offersTopic)
	slog.Info("offers: offer triggered", "user", shortID(c.UserID), "offer", offer)
	return nil
}

// observe advances c's shopper and returns the offer when it completes the
// pattern.
func (d *Detector) observe(c click) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.shoppers[c.UserID]
	if !ok {
		s = &shopper{}
		d.shoppers[c.UserID] = s
	}
	s.lastSeen = c.At

	if n := len(s.visits); n > 0 && s.visits[n-1].product == c.ProductID {
		return "", false
	}

	next, ok := d.transition(s, c)
	if !ok {
		s.reset()
		return "", false
	}
	s.state = next
	s.visits = append(s.visits, visit{product: c.ProductID, at: c.At})
	slog.Debug("offers: shopper advanced",
		"user", shortID(c.UserID),
		"state", next.String(),
		"product", c.ProductID,
		"category", c.Category,
	)

	if next != stateOffer {
		return "", false
	}
	s.reset()
	if c.Gender == "M" {
		return OfferMale, true
	}
	return OfferFemale, true
}

// transition returns the state c moves s to, if any.
func (d *Detector) transition(s *shopper, c click) (state, bool) {
	if len(s.visits) > 0 && c.At.Sub(s.visits[0].at) >= d.window {
		slog.Debug("offers: shopper window expired", "user", shortID(c.UserID))
		return stateInit, false
	}

	switch s.state {
	case stateInit:
		if c.Category == categoryClothing && eligible(c) {
			return stateClothesVisited, true
		}
	case stateClothesVisited:
		switch c.Category {
		case categoryShoes:
			return stateShoesVisited, true
		case categoryClothing:
			return stateClothesVisited, true
		}
	case stateShoesVisited:
		if c.Category == categoryClothing {
			if c.ProductID != s.visits[0].product {
				return stateOffer, true
			}
			return stateClothesVisited, true
		}
	}
	return stateInit, false
}

func (s *shopper) reset() {
	s.state = stateInit
	s.visits = nil
}

// eligible reports whether the shopper's demographics qualify for an offer.
func eligible(c click) bool {
	switch c.Gender {
	case "M":
		return c.Age >= 35 && c.Age <= 45
	case "F":
		return c.Age >= 25 && c.Age <= 35
	}
	return false
}

// rawClick is a click event as published. Age arrives as text from browsers
// and as a number from enriched sources.
type rawClick struct {
	UserID    string          `json:"userId"`
	ProductID string          `json:"productId"`
	Category  string          `json:"category"`
	Gender    string          `json:"gender"`
	Age       json.RawMessage `json:"age"`
}

// parse decodes m's value, which is a JSON object or a JSON string holding
// one. The stream key stands in for a missing userId.
func (d *Detector) parse(m broker.Message) (click, error) {
	doc := m.Value
	var s string
	if err := json.Unmarshal(doc, &s); err == nil {
		doc = []byte(s)
	}
	var r rawClick
	if err := json.Unmarshal(doc, &r); err != nil {
		return click{}, fmt.Errorf("offers: decode click: %w", err)
	}

	c := click{
		UserID:    r.UserID,
		ProductID: r.ProductID,
		Category:  strings.ToLower(r.Category),
		At:        m.Time,
	}
	if c.UserID == "" {
		c.UserID = m.Key
	}
	if c.Category == "" {
		c.Category = d.catalog[c.ProductID]
	}
	if r.Gender != "" {
		c.Gender = strings.ToUpper(r.Gender[:1])
	}
	age, ok := parseAge(r.Age)
	if c.UserID == "" || c.ProductID == "" || c.Gender == "" || !ok {
		return click{}, errIncomplete
	}
	c.Age = age
	if c.At.IsZero() {
		c.At = d.now()
	}
	return c, nil
}

func parseAge(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// shortID returns the last four characters of id for logs.
func shortID(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[len(id)-4:]
}
