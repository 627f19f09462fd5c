package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shopstream/shopstream/client/internal/config"
	"github.com/shopstream/shopstream/client/internal/event"
	"github.com/shopstream/shopstream/client/internal/publisher"
	"github.com/shopstream/shopstream/client/internal/resolver"
	"github.com/shopstream/shopstream/client/internal/simulate"
	"github.com/shopstream/shopstream/client/internal/stats"
	"github.com/shopstream/shopstream/client/internal/subscriber"
)

func (a *app) publishCmd() *cobra.Command {
	var (
		user      event.User
		productID string
		userAgent string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one product-view click event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if user.UserID == "" {
				user.UserID = uuid.NewString()
			}

			r := a.resolver(ctx)
			topic, err := a.awaitTopic(ctx, "click", r.ClickTopic())
			if err != nil {
				return err
			}
			ip, err := event.NewAddressResolver(a.cfg.Address).PublicAddress(ctx)
			if err != nil {
				return err
			}

			e := event.NewClickEvent(user, ip, userAgent, productID)
			p := publisher.New(r, a.connOptions()...)
			if err := p.Send(ctx, topic, e.StreamID(), e); err != nil {
				slog.Warn("click not delivered", "user", e.UserID, "product", productID, "err", err)
				return err
			}
			slog.Info("click published", "topic", topic, "user", e.UserID, "product", productID)
			return nil
		},
	}
	cmd.Flags().StringVar(&user.UserID, "user", "", "user id, also the stream id (random when empty)")
	cmd.Flags().IntVar(&user.Age, "age", 30, "user age")
	cmd.Flags().StringVar(&user.Gender, "gender", "U", "user gender")
	cmd.Flags().StringVar(&productID, "product", "1", "viewed product id")
	cmd.Flags().StringVar(&userAgent, "user-agent", "shopclient", "user agent reported with the click")
	return cmd
}

func (a *app) subscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Print offers as they arrive until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if a.configPath != "" {
				go func() {
					err := config.Watch(ctx, a.configPath, func(*config.Config) {
						slog.Info("config changed; restart to apply it to the open channel")
					})
					if err != nil {
						slog.Warn("config watch stopped", "err", err)
					}
				}()
			}

			r := a.resolver(ctx)
			topic, err := a.awaitTopic(ctx, "offers", r.OffersTopic())
			if err != nil {
				return err
			}

			s := subscriber.New(r,
				subscriber.WithFeedBuffer(a.cfg.Gateway.FeedBuffer),
				subscriber.WithConnOptions(a.connOptions()...),
			)
			feed, err := s.Subscribe(ctx, topic)
			if err != nil {
				return err
			}
			defer s.Disconnect() //nolint:errcheck

			return printOffers(ctx, feed.Subscribe(ctx), s, os.Stdout)
		},
	}
	return cmd
}

// errFeedDropped is returned when the offer feed closes this observer's
// channel while the command is still running.
var errFeedDropped = errors.New("subscribe: offer feed dropped this observer")

// channel is the part of *subscriber.Subscriber printOffers watches.
type channel interface {
	Done() <-chan struct{}
	Err() error
}

// printOffers writes each decodable offer from msgs to w as one JSON line
// until ctx ends or the channel closes.
func printOffers(ctx context.Context, msgs <-chan json.RawMessage, ch channel, w io.Writer) error {
	out := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return ch.Err()
		case raw, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("offer feed closed; this observer fell too far behind")
				return errFeedDropped
			}
			offer, err := event.DecodeOffer(raw)
			if errors.Is(err, event.ErrEmptyOffer) {
				continue
			}
			if err != nil {
				slog.Warn("undecodable offer", "err", err)
				continue
			}
			if err := out.Encode(offer.Raw); err != nil {
				return fmt.Errorf("subscribe: write offer: %w", err)
			}
		}
	}
}

func (a *app) topicsCmd() *cobra.Command {
	var streamID string
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Print the resolved topic names and gateway endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r := a.resolver(ctx)

			click, clickErr := a.awaitTopic(ctx, "click", r.ClickTopic())
			offers, offersErr := a.awaitTopic(ctx, "offers", r.OffersTopic())
			fmt.Printf("click topic:   %s\n", orError(click, clickErr))
			fmt.Printf("offers topic:  %s\n", orError(offers, offersErr))

			if clickErr == nil {
				pub, err := r.PublishEndpoint(click, streamID)
				fmt.Printf("publish URL:   %s\n", orError(pub, err))
			}
			if offersErr == nil {
				sub, err := r.SubscribeEndpoint(offers)
				fmt.Printf("subscribe URL: %s\n", orError(sub, err))
			}
			for _, role := range []resolver.Role{resolver.Publisher, resolver.Subscriber} {
				u, err := r.BuildURL(role)
				fmt.Printf("%-15s%s\n", role.String()+" base:", orError(u, err))
			}
			return errors.Join(clickErr, offersErr)
		},
	}
	cmd.Flags().StringVar(&streamID, "stream", "example-user", "stream id shown in the publish URL")
	return cmd
}

func (a *app) simulateCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish a synthetic clickstream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r := a.resolver(ctx)
			topic, err := a.awaitTopic(ctx, "click", r.ClickTopic())
			if err != nil {
				return err
			}

			simCfg := a.cfg.Simulate
			if cmd.Flags().Changed("count") {
				simCfg.Count = count
			}
			sim, err := simulate.New(
				publisher.New(r, a.connOptions()...),
				event.NewAddressResolver(a.cfg.Address),
				simCfg,
			)
			if err != nil {
				return err
			}
			st, err := sim.Run(ctx, topic)
			if err != nil {
				return err
			}
			fmt.Printf("sent %d, failed %d\n", st.Sent, st.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", config.DefaultSimulateCount, "events to publish; 0 runs until interrupted")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	var (
		baseURL string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-topic traffic from the gateway's metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL == "" {
				baseURL = a.cfg.TopicsBaseURL
			}
			if baseURL == "" {
				return errors.New("stats: no gateway URL; set topics_base_url or --url")
			}
			var header map[string]string
			if a.cfg.Token != "" {
				header = map[string]string{tokenHeader: a.cfg.Token}
			}

			snap, err := stats.New(baseURL, header).Scrape(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			fmt.Printf("%-20s %10s %10s %8s %11s\n", "TOPIC", "PUBLISHED", "DELIVERED", "DROPPED", "SUBSCRIBERS")
			for _, t := range snap.Topics {
				fmt.Printf("%-20s %10.0f %10.0f %8.0f %11.0f\n", t.Name, t.Published, t.Delivered, t.Dropped, t.Subscribers)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "gateway HTTP origin (default: topics_base_url)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

func orError(v string, err error) string {
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return v
}
