package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string `json:"state"` // ok | degraded
	BrokerError   string `json:"broker_error,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveStreams int    `json:"active_streams"`
	Subscribers   int    `json:"subscribers"`
	Published     int64  `json:"published"`
	Delivered     int64  `json:"delivered"`
	Dropped       int64  `json:"dropped"`
}

// TopicResponse is one entry in GET /api/v1/topics.
type TopicResponse struct {
	Name          string `json:"name"`
	Role          string `json:"role,omitempty"` // click | offers for the configured topics
	Subscribers   int    `json:"subscribers"`
	ActiveStreams int    `json:"active_streams"`
}

// StreamResponse is one entry in GET /api/v1/streams or
// GET /api/v1/streams/{topic}/{stream}.
type StreamResponse struct {
	Topic     string `json:"topic"`
	Stream    string `json:"stream"`
	Messages  int64  `json:"messages"`
	FirstSeen string `json:"first_seen"` // RFC3339
	LastSeen  string `json:"last_seen"`  // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
