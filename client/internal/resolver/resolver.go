package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/shopstream/shopstream/client/internal/config"
	"github.com/shopstream/shopstream/client/internal/observe"
)

// Relative paths serving the topic names as plain text.
const (
	ClickTopicPath  = "click_topic"
	OffersTopicPath = "offers_topic"
)

// ErrTopicUnresolved marks a topic name that is neither configured nor
// obtainable from the remote lookup.
var ErrTopicUnresolved = errors.New("resolver: topic unresolved")

// Resolver holds the process-wide topic names and derives gateway endpoints.
// Topic names are Cells: configured names are resolved at construction,
// missing ones are looked up once in the background.
type Resolver struct {
	cfg    *config.Config
	client *resty.Client

	click  *observe.Cell[string]
	offers *observe.Cell[string]

	wg sync.WaitGroup
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the resty client used for topic lookups.
func WithHTTPClient(c *resty.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// New creates a Resolver for cfg and starts a lookup for every topic name
// the configuration leaves empty. ctx bounds those lookups.
func New(ctx context.Context, cfg *config.Config, opts ...Option) *Resolver {
	r := &Resolver{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = resty.New().
			SetBaseURL(cfg.TopicsBaseURL).
			SetTimeout(cfg.LookupTimeout)
	}

	r.click = r.topicCell(ctx, cfg.ClickTopic, ClickTopicPath)
	r.offers = r.topicCell(ctx, cfg.OffersTopic, OffersTopicPath)
	return r
}

// ClickTopic is the topic click events are published to.
func (r *Resolver) ClickTopic() *observe.Cell[string] { return r.click }

// OffersTopic is the topic offers are received from.
func (r *Resolver) OffersTopic() *observe.Cell[string] { return r.offers }

// Token returns the configured access token untouched.
func (r *Resolver) Token() string { return r.cfg.Token }

// Wait blocks until every background lookup has finished.
func (r *Resolver) Wait() { r.wg.Wait() }

func (r *Resolver) topicCell(ctx context.Context, static, path string) *observe.Cell[string] {
	if static != "" {
		return observe.ResolvedCell(static)
	}

	cell := observe.NewCell("")
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.lookup(ctx, cell, path)
	}()
	return cell
}

// lookup settles cell from the remote path. Failures leave the topic
// unresolved for good; there is no retry.
func (r *Resolver) lookup(ctx context.Context, cell *observe.Cell[string], path string) {
	name, err := r.fetchTopic(ctx, path)
	if err != nil {
		slog.Warn("resolver: topic lookup failed", "path", path, "err", err)
		cell.Fail(fmt.Errorf("%w: %w", ErrTopicUnresolved, err))
		return
	}
	slog.Debug("resolver: topic resolved", "path", path, "topic", name)
	cell.Settle(name)
}

func (r *Resolver) fetchTopic(ctx context.Context, path string) (string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		Get(path)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode())
	}

	name := stripLineFeed(resp.String())
	if name == "" {
		return "", fmt.Errorf("get %s: empty body", path)
	}
	return name, nil
}

// stripLineFeed removes a single trailing line feed.
func stripLineFeed(s string) string {
	return strings.TrimSuffix(s, "\n")
}
