package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shopstream/shopstream/server/internal/alerts"
	"github.com/shopstream/shopstream/server/internal/api"
	"github.com/shopstream/shopstream/server/internal/auth"
	"github.com/shopstream/shopstream/server/internal/broker"
	"github.com/shopstream/shopstream/server/internal/config"
	"github.com/shopstream/shopstream/server/internal/gateway"
	"github.com/shopstream/shopstream/server/internal/metrics"
	"github.com/shopstream/shopstream/server/internal/offers"
	"github.com/shopstream/shopstream/server/internal/store"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("shopstream-gateway failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "WebSocket topic gateway for the shopstream client",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&o.configPath, "config", "config.yaml", "path to config file (built-in defaults when empty)")
	cmd.Flags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "info", "debug|info|warn|error")
	return cmd
}

func run(ctx context.Context, o *options) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("shopstream-gateway starting", "config", o.configPath)

	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return err
		}
	}
	g := cfg.Gateway

	slog.Info("config loaded",
		"http_port", g.HTTPPort,
		"click_topic", g.Topics.Click,
		"offers_topic", g.Topics.Offers,
		"broker", g.Broker.Backend,
		"auth_mode", g.Auth.Mode,
		"stream_ttl", g.Streams.TTL,
		"alert_topics", len(g.Alerts.Topics),
		"offers", g.Offers.Enabled,
	)

	b, err := broker.New(g.Broker)
	if err != nil {
		return err
	}
	defer b.Close()

	st := store.New(g.Streams.TTL)
	m := metrics.New()
	hub := gateway.NewHub(b,
		gateway.WithMetrics(m),
		gateway.WithSendBuffer(g.Subscriber.SendBuffer),
		gateway.WithPingPeriod(g.Subscriber.PingInterval),
	)
	notifier := alerts.New(g.Alerts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", g.HTTPPort),
		Handler:           newHandler(g, b, st, hub, notifier, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		st.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		return notifier.Run(ctx, b)
	})
	if g.Offers.Enabled {
		detector := offers.New(g.Topics, g.Offers, offers.WithMetrics(m))
		eg.Go(func() error {
			return detector.Run(ctx, b)
		})
	}
	eg.Go(func() error {
		slog.Info("HTTP server listening", "port", g.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.Info("shopstream-gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// newHandler assembles the WebSocket endpoints, the topic lookups, the REST
// API and /metrics behind the optional token gate. Probes, metrics and the
// topic-name lookups stay open.
func newHandler(
	g config.GatewayConfig,
	b broker.Broker,
	st *store.Store,
	hub *gateway.Hub,
	notifier *alerts.Notifier,
	m *metrics.Metrics,
) http.Handler {
	mux := http.NewServeMux()
	gateway.Routes(mux, hub, gateway.NewPublishHandler(b, st, m))
	mux.Handle("/", api.New(api.Deps{
		Topics:  g.Topics,
		Store:   st,
		Hub:     hub,
		Broker:  b,
		Alerts:  notifier,
		Metrics: m,
	}))

	guard := auth.Middleware(g.Auth.Mode, g.Auth.EffectiveHeader(), g.Auth.Key())
	return auth.Exempt(guard, mux,
		"/metrics",
		"/api/v1/health",
		api.ClickTopicPath,
		api.OffersTopicPath,
	)
}
