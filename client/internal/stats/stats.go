package stats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const defaultScrapeTimeout = 10 * time.Second

// Gateway metric names we read.
const (
	metricPublished   = "shopstream_messages_published_total"
	metricDelivered   = "shopstream_messages_delivered_total"
	metricDropped     = "shopstream_subscribers_dropped_total"
	metricSubscribers = "shopstream_subscribers"
	metricConnections = "shopstream_connections_closed_total"
)

// Topic holds the traffic counters for one topic. Counters are raw totals
// since gateway start, not rates.
type Topic struct {
	Name        string  `json:"name"`
	Published   float64 `json:"published"`
	Delivered   float64 `json:"delivered"`
	Dropped     float64 `json:"dropped"`
	Subscribers float64 `json:"subscribers"`
}

// Snapshot is the normalized output of one scrape.
type Snapshot struct {
	ScrapedAt time.Time `json:"scraped_at"`

	// Topics is sorted by name.
	Topics []Topic `json:"topics"`

	// Closed counts finished connections keyed "role/outcome", e.g.
	// "publisher/normal".
	Closed map[string]float64 `json:"closed"`
}

// Scraper reads one gateway's metrics endpoint.
type Scraper struct {
	client *resty.Client
	url    string
}

// New creates a Scraper for the gateway at baseURL. header is attached to
// every request and may be nil.
func New(baseURL string, header map[string]string) *Scraper {
	return &Scraper{
		client: resty.New().SetTimeout(defaultScrapeTimeout).SetHeaders(header),
		url:    strings.TrimRight(baseURL, "/") + "/metrics",
	}
}

// Scrape fetches and parses the exposition.
func (s *Scraper) Scrape(ctx context.Context) (*Snapshot, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain))).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("stats: http get: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stats: unexpected status %d", resp.StatusCode())
	}

	mfs, err := parseMetrics(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return fold(mfs), nil
}

// fold turns metric families into a Snapshot.
func fold(mfs map[string]*dto.MetricFamily) *Snapshot {
	byTopic := map[string]*Topic{}
	topic := func(name string) *Topic {
		t, ok := byTopic[name]
		if !ok {
			t = &Topic{Name: name}
			byTopic[name] = t
		}
		return t
	}

	for name, v := range byLabel(mfs[metricPublished], "topic") {
		topic(name).Published = v
	}
	for name, v := range byLabel(mfs[metricDelivered], "topic") {
		topic(name).Delivered = v
	}
	for name, v := range byLabel(mfs[metricDropped], "topic") {
		topic(name).Dropped = v
	}
	for name, v := range byLabel(mfs[metricSubscribers], "topic") {
		topic(name).Subscribers = v
	}

	snap := &Snapshot{
		ScrapedAt: time.Now().UTC(),
		Topics:    make([]Topic, 0, len(byTopic)),
		Closed:    make(map[string]float64),
	}
	for _, t := range byTopic {
		snap.Topics = append(snap.Topics, *t)
	}
	sort.Slice(snap.Topics, func(i, j int) bool { return snap.Topics[i].Name < snap.Topics[j].Name })

	if mf := mfs[metricConnections]; mf != nil {
		for _, m := range mf.GetMetric() {
			key := labelValue(m, "role") + "/" + labelValue(m, "outcome")
			snap.Closed[key] += value(m)
		}
	}
	return snap
}

// parseMetrics decodes a Prometheus text exposition from r into metric
// families. A partial result with a non-fatal parse warning is still
// returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// byLabel sums mf's samples grouped by the value of label.
// Returns an empty map if mf is nil.
func byLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := map[string]float64{}
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		out[labelValue(m, label)] += value(m)
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// value reads a counter, gauge or untyped sample.
func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}
