// Package broker adapts the streaming platform behind the gateway.
//
// A Broker produces keyed messages to topics and hands out per-topic
// subscriptions. Two backends exist:
//
//   - Memory: in-process fan-out, for local runs and tests.
//   - Redis: go-redis pub/sub, one channel per topic ({prefix}{topic}), each
//     message carried as a JSON envelope {key, value, time}.
//
// Neither backend replays history: a subscriber sees only what is produced
// after it subscribed.
package broker
