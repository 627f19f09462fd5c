package alerts

import (
	"context"
	"fmt"
	"log/slog"
)

// deliver posts a to every configured target and returns how many accepted
// it. Errors are logged but do not affect the caller.
func (n *Notifier) deliver(ctx context.Context, a Alert) int {
	delivered := 0
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(ctx, url, a)
		case "teams":
			err = n.sendTeams(ctx, url, a)
		case "http":
			err = n.sendHTTP(ctx, url, a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"topic", a.Topic,
				"err", err,
			)
			continue
		}
		delivered++
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "topic", a.Topic)
	}
	return delivered
}

func (n *Notifier) sendSlack(ctx context.Context, url string, a Alert) error {
	return n.post(ctx, url, map[string]string{
		"text": fmt.Sprintf("*%s* %s", a.Topic, a.Message),
	})
}

func (n *Notifier) sendTeams(ctx context.Context, url string, a Alert) error {
	return n.post(ctx, url, map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "FFAB40",
		"summary":    a.Topic,
		"title":      fmt.Sprintf("Shopstream: %s", a.Topic),
		"text":       a.Message,
	})
}

// sendHTTP posts the bare {"message": ...} body generic workflow webhooks
// expect.
func (n *Notifier) sendHTTP(ctx context.Context, url string, a Alert) error {
	return n.post(ctx, url, map[string]string{"message": a.Message})
}

func (n *Notifier) post(ctx context.Context, url string, payload interface{}) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}
