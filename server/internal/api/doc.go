// Package api implements the gateway's plain HTTP surface.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /click_topic                      click topic name, text/plain, trailing "\n"
//	GET /offers_topic                     offers topic name, text/plain, trailing "\n"
//	GET /api/v1/health                    broker reachability and traffic totals
//	GET /api/v1/topics                    configured and subscribed topics
//	GET /api/v1/streams[?topic=]          live publish streams, most recent first
//	GET /api/v1/streams/{topic}/{stream}  one live stream; 404 if unknown or stale
//	GET /api/v1/alerts                    recently forwarded alerts, newest first
//	GET /metrics                          Prometheus exposition (when Metrics is set)
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Health answers 503 while the broker is unreachable.
package api
