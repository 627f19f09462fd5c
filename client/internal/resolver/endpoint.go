package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrBaseUnresolved is returned when no workspace address is configured
	// and none can be extracted from the page address.
	ErrBaseUnresolved = errors.New("resolver: workspace address unresolved")

	// ErrStreamRequired is returned for a publish endpoint without stream id.
	ErrStreamRequired = errors.New("resolver: stream id required")
)

// Role selects the gateway service a connection targets.
type Role int

const (
	Publisher Role = iota
	Subscriber
)

func (r Role) String() string {
	switch r {
	case Publisher:
		return "publisher"
	case Subscriber:
		return "subscriber"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// BaseAddress returns the configured workspace address, or the one extracted
// from the page address.
func (r *Resolver) BaseAddress() (string, error) {
	if r.cfg.WorkspaceURL != "" {
		return r.cfg.WorkspaceURL, nil
	}
	return extractBase(r.cfg.Page.HostPattern, r.cfg.Page.Prefix, r.cfg.Page.URL)
}

// BuildURL returns scheme://{service}-{base} for role, or the configured
// local override for that role.
func (r *Resolver) BuildURL(role Role) (string, error) {
	gw := r.cfg.Gateway

	var service, override string
	switch role {
	case Publisher:
		service, override = gw.PublisherService, gw.PublishURL
	case Subscriber:
		service, override = gw.SubscriberService, gw.SubscribeURL
	default:
		return "", fmt.Errorf("resolver: unknown %s", role)
	}

	if override != "" {
		return strings.TrimRight(override, "/"), nil
	}

	base, err := r.BaseAddress()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s-%s", gw.Scheme, service, base), nil
}

// PublishEndpoint returns {publisher}/topic/{topic}/stream/{streamID}.
func (r *Resolver) PublishEndpoint(topic, streamID string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("%w: empty topic name", ErrTopicUnresolved)
	}
	if streamID == "" {
		return "", ErrStreamRequired
	}
	base, err := r.BuildURL(Publisher)
	if err != nil {
		return "", err
	}
	return base + "/topic/" + url.PathEscape(topic) + "/stream/" + url.PathEscape(streamID), nil
}

// SubscribeEndpoint returns {subscriber}/topic/{topic}.
func (r *Resolver) SubscribeEndpoint(topic string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("%w: empty topic name", ErrTopicUnresolved)
	}
	base, err := r.BuildURL(Subscriber)
	if err != nil {
		return "", err
	}
	return base + "/topic/" + url.PathEscape(topic), nil
}

// extractBase finds the page origin with hostPattern and returns the part of
// it following prefix.
func extractBase(hostPattern, prefix, pageURL string) (string, error) {
	re, err := regexp.Compile(hostPattern)
	if err != nil {
		return "", fmt.Errorf("%w: host pattern: %w", ErrBaseUnresolved, err)
	}

	origin := re.FindString(pageURL)
	if origin == "" {
		return "", fmt.Errorf("%w: page address %q does not match %q", ErrBaseUnresolved, pageURL, hostPattern)
	}

	i := strings.Index(origin, prefix)
	if prefix == "" || i < 0 {
		return "", fmt.Errorf("%w: %q has no %q segment", ErrBaseUnresolved, origin, prefix)
	}
	base := origin[i+len(prefix):]
	if base == "" {
		return "", fmt.Errorf("%w: empty address after %q", ErrBaseUnresolved, prefix)
	}
	return base, nil
}
