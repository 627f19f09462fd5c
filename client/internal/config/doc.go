// Package config loads and watches the client configuration.
//
// Sources, lowest precedence first:
//   - build-time topic names (BuildClickTopic / BuildOffersTopic via -ldflags)
//   - the YAML file passed to Load (optional)
//   - environment variables WORKSPACE_URL, PAGE_URL, CLICK_TOPIC,
//     OFFERS_TOPIC, TOPICS_BASE_URL, SHOPSTREAM_TOKEN (a .env file is loaded
//     into the environment by the CLI before Load)
//
// Top-level types:
//   - Config: workspace_url, click_topic, offers_topic, topics_base_url,
//     lookup_timeout, token, page, gateway, address, simulate
//   - PageConfig: page url plus the host pattern / frontend prefix used to
//     extract the workspace address when workspace_url is empty
//   - GatewayConfig: scheme (ws|wss), publisher/subscriber service names,
//     local publish_url / subscribe_url overrides, handshake timeout
//   - AddressConfig: static IP or plain-text lookup URL
//   - SimulateConfig: rate, burst, count and product catalog for simulate
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on write and
// re-adds the watch after atomic-save renames.
package config
