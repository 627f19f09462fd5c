package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the gateway configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultClickTopic    = "click-data"
	DefaultOffersTopic   = "special-offers"
	DefaultBackend       = "memory"
	DefaultRedisAddr     = "localhost:6379"
	DefaultChannelPrefix = "shopstream:"
	DefaultStreamTTL     = 15 * time.Minute
	DefaultSendBuffer    = 256
	DefaultPingInterval  = 30 * time.Second
	DefaultAuthHeader    = "x-shopstream-token"
	DefaultOfferWindow   = 30 * time.Minute
)

// DefaultCatalog maps the storefront's product IDs to their categories.
var DefaultCatalog = map[string]string{
	"1": "clothing",
	"2": "clothing",
	"3": "clothing",
	"4": "clothing",
	"5": "shoes",
	"6": "shoes",
	"7": "accessories",
	"8": "accessories",
}

// Config holds the gateway configuration parsed from the `gateway:` section
// of the config file.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
}

// GatewayConfig holds all gateway settings.
type GatewayConfig struct {
	// HTTPPort serves the WebSocket endpoints, the topic lookups and the
	// REST API (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Topics are the names handed to clients by GET /click_topic and
	// GET /offers_topic.
	Topics TopicsConfig `yaml:"topics"`

	// Auth guards the WebSocket and API endpoints.
	Auth AuthConfig `yaml:"auth"`

	// Broker selects the streaming platform backend.
	Broker BrokerConfig `yaml:"broker"`

	// Streams controls active-stream retention.
	Streams StreamsConfig `yaml:"streams"`

	// Subscriber tunes the per-client fan-out.
	Subscriber SubscriberConfig `yaml:"subscriber"`

	// Alerts forwards selected topics to webhooks.
	Alerts AlertsConfig `yaml:"alerts"`

	// Offers drives the behaviour detector that feeds Topics.Offers.
	Offers OffersConfig `yaml:"offers"`
}

// TopicsConfig names the two well-known topics.
type TopicsConfig struct {
	Click  string `yaml:"click"`
	Offers string `yaml:"offers"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: token | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// token. Used when Mode == "token".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header carrying the token. Browsers cannot set
	// headers on a WebSocket handshake, so the "token" query parameter is
	// accepted as well. Defaults to "x-shopstream-token".
	Header string `yaml:"header"`
}

// Key returns the expected token resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// BrokerConfig selects and configures the message backend.
type BrokerConfig struct {
	// Backend is one of: memory | redis.
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis pub/sub backend.
type RedisConfig struct {
	Addr string `yaml:"addr"`

	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	DB int `yaml:"db"`

	// ChannelPrefix is prepended to topic names to form channel names.
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Password returns the redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// StreamsConfig controls active-stream retention.
type StreamsConfig struct {
	// TTL is how long a stream stays listed after its last message.
	// Default: 15m.
	TTL time.Duration `yaml:"ttl"`
}

// SubscriberConfig tunes subscribe-endpoint clients.
type SubscriberConfig struct {
	// SendBuffer is the number of messages queued per client before it is
	// considered slow and disconnected.
	SendBuffer int `yaml:"send_buffer"`

	// PingInterval is the keepalive ping period.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// AlertsConfig lists topics whose messages are forwarded to webhooks.
type AlertsConfig struct {
	Topics   []string        `yaml:"topics"`
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// Cooldown suppresses repeat notifications for the same topic and
	// stream within the window. Zero forwards every message.
	Cooldown time.Duration `yaml:"cooldown"`
}

// OffersConfig controls the special-offer detector.
type OffersConfig struct {
	// Enabled runs the detector against Topics.Click (default true).
	Enabled bool `yaml:"enabled"`

	// Window bounds how long after a shopper's first qualifying click the
	// rest of the browsing pattern must follow. Default: 30m.
	Window time.Duration `yaml:"window"`

	// Catalog maps product IDs to categories for clicks that carry no
	// category of their own. Replaces DefaultCatalog when set.
	Catalog map[string]string `yaml:"catalog"`
}

// EffectiveCatalog returns the configured catalog, or DefaultCatalog.
func (o OffersConfig) EffectiveCatalog() map[string]string {
	if len(o.Catalog) > 0 {
		return o.Catalog
	}
	return DefaultCatalog
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("gateway config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("gateway config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			HTTPPort: DefaultHTTPPort,
			Topics: TopicsConfig{
				Click:  DefaultClickTopic,
				Offers: DefaultOffersTopic,
			},
			Broker: BrokerConfig{
				Backend: DefaultBackend,
				Redis: RedisConfig{
					Addr:          DefaultRedisAddr,
					ChannelPrefix: DefaultChannelPrefix,
				},
			},
			Streams: StreamsConfig{TTL: DefaultStreamTTL},
			Subscriber: SubscriberConfig{
				SendBuffer:   DefaultSendBuffer,
				PingInterval: DefaultPingInterval,
			},
			Offers: OffersConfig{
				Enabled: true,
				Window:  DefaultOfferWindow,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	g := cfg.Gateway
	if g.HTTPPort <= 0 || g.HTTPPort > 65535 {
		return fmt.Errorf("gateway.http_port %d is out of range [1, 65535]", g.HTTPPort)
	}
	if g.Topics.Click == "" || g.Topics.Offers == "" {
		return fmt.Errorf("gateway.topics.click and gateway.topics.offers are required")
	}
	switch g.Auth.Mode {
	case "token", "none", "":
	default:
		return fmt.Errorf("gateway.auth.mode %q unknown: want token|none", g.Auth.Mode)
	}
	switch g.Broker.Backend {
	case "memory":
	case "redis":
		if g.Broker.Redis.Addr == "" {
			return fmt.Errorf("gateway.broker.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("gateway.broker.backend %q unknown: want memory|redis", g.Broker.Backend)
	}
	if g.Streams.TTL < 0 {
		return fmt.Errorf("gateway.streams.ttl must not be negative")
	}
	if g.Subscriber.SendBuffer <= 0 {
		return fmt.Errorf("gateway.subscriber.send_buffer must be positive")
	}
	if g.Subscriber.PingInterval <= 0 {
		return fmt.Errorf("gateway.subscriber.ping_interval must be positive")
	}
	if g.Alerts.Cooldown < 0 {
		return fmt.Errorf("gateway.alerts.cooldown must not be negative")
	}
	if g.Offers.Enabled && g.Offers.Window <= 0 {
		return fmt.Errorf("gateway.offers.window must be positive")
	}
	for i, w := range g.Alerts.Webhooks {
		switch w.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("gateway.alerts.webhooks[%d].type %q unknown: want teams|slack|http", i, w.Type)
		}
	}
	return nil
}
