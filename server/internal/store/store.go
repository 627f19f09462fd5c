package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Key identifies one stream on one topic.
type Key struct {
	Topic  string
	Stream string
}

// Stream is the activity recorded for a Key.
type Stream struct {
	Topic     string    `json:"topic"`
	Stream    string    `json:"stream"`
	Messages  int64     `json:"messages"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store is a thread-safe in-memory record of recently active publish
// streams. A background goroutine (Run) evicts streams idle for longer
// than the TTL.
type Store struct {
	mu   sync.RWMutex
	data map[Key]*Stream
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[Key]*Stream),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Touch records one message on (topic, stream).
func (s *Store) Touch(topic, stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := Key{Topic: topic, Stream: stream}
	e, ok := s.data[k]
	if !ok {
		e = &Stream{Topic: topic, Stream: stream, FirstSeen: now}
		s.data[k] = e
	}
	e.Messages++
	e.LastSeen = now
}

// Get returns a copy of the stream record and whether it exists. The
// record may be stale if the TTL has elapsed.
func (s *Store) Get(topic, stream string) (Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[Key{Topic: topic, Stream: stream}]
	if !ok {
		return Stream{}, false
	}
	return *e, true
}

// List returns copies of the live streams on topic, most recent first. An
// empty topic lists every topic. Stale entries not yet evicted are excluded.
func (s *Store) List(topic string) []Stream {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Stream, 0, len(s.data))
	for k, e := range s.data {
		if topic != "" && k.Topic != topic {
			continue
		}
		if e.LastSeen.After(cutoff) {
			out = append(out, *e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Stream < out[j].Stream
	})
	return out
}

// Count returns the total number of streams held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes streams whose LastSeen is older than now minus TTL.
// It returns the number removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for k, e := range s.data {
		if !e.LastSeen.After(cutoff) {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop, ticking at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted idle streams", "count", n)
			}
		}
	}
}
