package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shopstream/shopstream/client/internal/config"
	"github.com/shopstream/shopstream/client/internal/observe"
	"github.com/shopstream/shopstream/client/internal/resolver"
	"github.com/shopstream/shopstream/client/internal/wsconn"
)

// app carries the flags and configuration shared by every command.
type app struct {
	configPath string
	envFile    string
	logLevel   string

	cfg *config.Config
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("shopclient failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "shopclient",
		Short:             "Publish clicks to and receive offers from the shopstream gateway",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file (defaults only when empty)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "debug|info|warn|error")

	root.AddCommand(
		a.publishCmd(),
		a.subscribeCmd(),
		a.topicsCmd(),
		a.simulateCmd(),
		a.statsCmd(),
	)
	return root
}

// setup loads the env file, installs the terminal logger and reads config.
func (a *app) setup(*cobra.Command, []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", a.envFile, err)
		}
	}

	level, err := charmlog.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           level,
	})
	slog.SetDefault(slog.New(logger))

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) resolver(ctx context.Context) *resolver.Resolver {
	return resolver.New(ctx, a.cfg)
}

// tokenHeader carries the opaque access token on the handshake when one is
// configured. The gateway ignores it unless its token gate is enabled.
const tokenHeader = "x-shopstream-token"

func (a *app) connOptions() []wsconn.Option {
	opts := []wsconn.Option{wsconn.WithHandshakeTimeout(a.cfg.Gateway.HandshakeTimeout)}
	if a.cfg.Token != "" {
		h := http.Header{}
		h.Set(tokenHeader, a.cfg.Token)
		opts = append(opts, wsconn.WithHeader(h))
	}
	return opts
}

// awaitTopic blocks until a topic name is known, bounded by the lookup
// timeout.
func (a *app) awaitTopic(ctx context.Context, name string, cell *observe.Cell[string]) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.LookupTimeout)
	defer cancel()
	topic, err := cell.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("%s topic: %w", name, err)
	}
	return topic, nil
}
