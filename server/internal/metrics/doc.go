// Package metrics exposes gateway traffic as Prometheus metrics:
//
//	shopstream_messages_published_total{topic}
//	shopstream_messages_delivered_total{topic}
//	shopstream_subscribers_dropped_total{topic}
//	shopstream_subscribers{topic}
//	shopstream_connections_closed_total{role,outcome}
//
// Summary() rolls the families up for the REST API.
package metrics
