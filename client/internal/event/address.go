package event

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shopstream/shopstream/client/internal/config"
)

// ErrNoAddress is returned when no public address could be determined.
var ErrNoAddress = errors.New("event: public address unavailable")

// AddressResolver yields the caller's public IP address.
type AddressResolver interface {
	PublicAddress(ctx context.Context) (string, error)
}

// Static always returns the same address.
type Static string

func (s Static) PublicAddress(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoAddress
	}
	return string(s), nil
}

// HTTPLookup asks a plain-text "what is my IP" service.
type HTTPLookup struct {
	client *resty.Client
	url    string
}

// NewHTTPLookup creates a lookup against url bounded by timeout.
func NewHTTPLookup(url string, timeout time.Duration) *HTTPLookup {
	return &HTTPLookup{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

// PublicAddress performs one GET and returns the trimmed body.
func (h *HTTPLookup) PublicAddress(ctx context.Context) (string, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/plain").
		Get(h.url)
	if err != nil {
		return "", fmt.Errorf("event: address lookup: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("event: address lookup: %w: status %d", ErrNoAddress, resp.StatusCode())
	}

	ip := strings.TrimSpace(resp.String())
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("event: address lookup: %w: %q is not an IP", ErrNoAddress, ip)
	}
	return ip, nil
}

// NewAddressResolver picks the resolver for cfg: a static address when one
// is configured, an HTTP lookup otherwise.
func NewAddressResolver(cfg config.AddressConfig) AddressResolver {
	if cfg.Static != "" {
		return Static(cfg.Static)
	}
	return NewHTTPLookup(cfg.LookupURL, cfg.Timeout)
}
