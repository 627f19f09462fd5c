// Package config loads the gateway configuration from the `gateway:` section
// of a YAML file.
//
// Config fields:
//   - HTTPPort: port for WebSocket endpoints and the API (default 8080)
//   - Topics.Click/Offers: names served by /click_topic and /offers_topic
//   - Auth.Mode: "token" or "none"
//   - Auth.KeyEnv: environment variable holding the expected token
//   - Auth.Header: header name (default "x-shopstream-token")
//   - Broker.Backend: "memory" or "redis"
//   - Streams.TTL: how long an idle stream stays listed (default 15m)
//   - Subscriber.SendBuffer: per-client queue depth (default 256)
//   - Alerts.Topics/Webhooks: topics forwarded to slack/teams/http hooks
//   - Alerts.Cooldown: repeat suppression per topic and stream (default off)
//
// Load(path) applies defaults before unmarshalling, then validates. Secrets
// are referenced by environment variable name, never stored in the file.
package config
