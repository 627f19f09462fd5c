package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScheme            = "wss"
	DefaultPublisherService  = "web-socket-publisher"
	DefaultSubscriberService = "web-socket-subscriber"
	DefaultPagePrefix        = "demo-webshop-frontend-"
	DefaultPageHostPattern   = `(.*quix\.io)`
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultLookupTimeout     = 10 * time.Second
	DefaultFeedBuffer        = 256
	DefaultLookupURL         = "https://api.ipify.org"
	DefaultSimulateRate      = 2.0
	DefaultSimulateBurst     = 1
	DefaultSimulateCount     = 10
)

// Topic names baked in at build time, e.g.
//
//	go build -ldflags "-X github.com/shopstream/shopstream/client/internal/config.BuildClickTopic=click-data"
//
// They seed the defaults; the config file and environment override them.
var (
	BuildClickTopic  string
	BuildOffersTopic string
)

// Environment variables consulted by Load after the config file.
const (
	EnvWorkspaceURL  = "WORKSPACE_URL"
	EnvPageURL       = "PAGE_URL"
	EnvClickTopic    = "CLICK_TOPIC"
	EnvOffersTopic   = "OFFERS_TOPIC"
	EnvTopicsBaseURL = "TOPICS_BASE_URL"
	EnvToken         = "SHOPSTREAM_TOKEN"
)

// Config is the client configuration.
type Config struct {
	// WorkspaceURL is the deployment base address, e.g.
	// orgname-projectname-env.deployments.quix.io. When empty the address is
	// derived from Page.URL.
	WorkspaceURL string `yaml:"workspace_url"`

	// ClickTopic and OffersTopic are the logical topic names. Empty values
	// are looked up remotely from TopicsBaseURL.
	ClickTopic  string `yaml:"click_topic"`
	OffersTopic string `yaml:"offers_topic"`

	// TopicsBaseURL is the origin the relative click_topic / offers_topic
	// paths are resolved against.
	TopicsBaseURL string `yaml:"topics_base_url"`

	// LookupTimeout bounds each one-shot topic lookup request.
	LookupTimeout time.Duration `yaml:"lookup_timeout"`

	// Token is the ungated access token. It is carried as-is and never
	// interpreted by the client.
	Token string `yaml:"token"`

	Page     PageConfig     `yaml:"page"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Address  AddressConfig  `yaml:"address"`
	Simulate SimulateConfig `yaml:"simulate"`
}

// PageConfig describes how the workspace address is extracted from the
// address the client was served from.
type PageConfig struct {
	// URL is the page address, e.g.
	// https://demo-webshop-frontend-acme-shop-prod.deployments.quix.io/products/3
	URL string `yaml:"url"`

	// HostPattern is a regexp whose first match is the page origin.
	HostPattern string `yaml:"host_pattern"`

	// Prefix is the frontend deployment prefix; everything after it in the
	// origin is the workspace address.
	Prefix string `yaml:"prefix"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	// Scheme is ws or wss.
	Scheme string `yaml:"scheme"`

	// PublisherService and SubscriberService are the deployment names
	// prefixed to the workspace address for each role.
	PublisherService  string `yaml:"publisher_service"`
	SubscriberService string `yaml:"subscriber_service"`

	// PublishURL and SubscribeURL replace the derived role base URL when
	// set, e.g. ws://localhost:8080 for a local gateway.
	PublishURL   string `yaml:"publish_url"`
	SubscribeURL string `yaml:"subscribe_url"`

	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// FeedBuffer is the per-observer depth of the subscriber feed.
	FeedBuffer int `yaml:"feed_buffer"`
}

// AddressConfig configures how the caller's public IP is determined.
type AddressConfig struct {
	// Static, when set, is used verbatim and no lookup is made.
	Static string `yaml:"static"`

	// LookupURL returns the caller's IP as a plain-text body.
	LookupURL string `yaml:"lookup_url"`

	// Timeout bounds the lookup request.
	Timeout time.Duration `yaml:"timeout"`
}

// SimulateConfig controls the synthetic clickstream producer.
type SimulateConfig struct {
	// Rate is the number of events per second.
	Rate float64 `yaml:"rate"`

	// Burst is the limiter burst size.
	Burst int `yaml:"burst"`

	// Count is the number of events to publish; 0 runs until cancelled.
	Count int `yaml:"count"`

	// Products is the catalog of product IDs clicks are drawn from.
	Products []string `yaml:"products"`
}

// Load reads the YAML config file at path, then applies environment
// overrides. An empty path skips the file and uses defaults only.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		ClickTopic:    BuildClickTopic,
		OffersTopic:   BuildOffersTopic,
		LookupTimeout: DefaultLookupTimeout,
		Page: PageConfig{
			HostPattern: DefaultPageHostPattern,
			Prefix:      DefaultPagePrefix,
		},
		Gateway: GatewayConfig{
			Scheme:            DefaultScheme,
			PublisherService:  DefaultPublisherService,
			SubscriberService: DefaultSubscriberService,
			HandshakeTimeout:  DefaultHandshakeTimeout,
			FeedBuffer:        DefaultFeedBuffer,
		},
		Address: AddressConfig{
			LookupURL: DefaultLookupURL,
			Timeout:   DefaultLookupTimeout,
		},
		Simulate: SimulateConfig{
			Rate:     DefaultSimulateRate,
			Burst:    DefaultSimulateBurst,
			Count:    DefaultSimulateCount,
			Products: []string{"1", "2", "3", "4", "5", "6", "7", "8"},
		},
	}
}

// applyEnv overrides cfg with any non-empty environment variables.
func applyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		EnvWorkspaceURL:  &cfg.WorkspaceURL,
		EnvPageURL:       &cfg.Page.URL,
		EnvClickTopic:    &cfg.ClickTopic,
		EnvOffersTopic:   &cfg.OffersTopic,
		EnvTopicsBaseURL: &cfg.TopicsBaseURL,
		EnvToken:         &cfg.Token,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// validate checks structural constraints.
func validate(cfg *Config) error {
	switch cfg.Gateway.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("gateway.scheme %q unknown: want ws|wss", cfg.Gateway.Scheme)
	}
	if cfg.Gateway.PublisherService == "" {
		return fmt.Errorf("gateway.publisher_service is required")
	}
	if cfg.Gateway.SubscriberService == "" {
		return fmt.Errorf("gateway.subscriber_service is required")
	}
	if cfg.Gateway.HandshakeTimeout <= 0 {
		return fmt.Errorf("gateway.handshake_timeout must be positive")
	}
	if cfg.Gateway.FeedBuffer <= 0 {
		return fmt.Errorf("gateway.feed_buffer must be positive")
	}
	if cfg.LookupTimeout <= 0 {
		return fmt.Errorf("lookup_timeout must be positive")
	}
	if _, err := regexp.Compile(cfg.Page.HostPattern); err != nil {
		return fmt.Errorf("page.host_pattern: %w", err)
	}
	if cfg.Simulate.Rate <= 0 {
		return fmt.Errorf("simulate.rate must be positive")
	}
	if cfg.Simulate.Burst <= 0 {
		return fmt.Errorf("simulate.burst must be positive")
	}
	if cfg.Simulate.Count < 0 {
		return fmt.Errorf("simulate.count must not be negative")
	}
	if len(cfg.Simulate.Products) == 0 {
		return fmt.Errorf("simulate.products must not be empty")
	}
	return nil
}
