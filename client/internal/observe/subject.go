package observe

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultBufferSize is the per-subscriber channel depth used by NewSubject.
const DefaultBufferSize = 64

// Subject is a thread-safe last-value replay stream.
type Subject[T any] struct {
	mu      sync.Mutex
	last    T
	subs    map[chan T]struct{}
	done    bool
	bufSize int
}

// NewSubject creates a Subject seeded with initial.
func NewSubject[T any](initial T) *Subject[T] {
	return NewSubjectWithBuffer(initial, DefaultBufferSize)
}

// NewSubjectWithBuffer creates a Subject whose subscriber channels hold up to
// size values. Sizes below 1 are raised to 1 so the replayed value always fits.
func NewSubjectWithBuffer[T any](initial T, size int) *Subject[T] {
	if size < 1 {
		size = 1
	}
	return &Subject[T]{
		last:    initial,
		subs:    make(map[chan T]struct{}),
		bufSize: size,
	}
}

// Next records v as the latest value and delivers it to every subscriber.
// It is a no-op after Complete.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.last = v

	for ch := range s.subs {
		select {
		case ch <- v:
		default:
			delete(s.subs, ch)
			close(ch)
			slog.Warn("observe: subscriber buffer full, dropping subscriber",
				"buffer_cap", s.bufSize)
		}
	}
}

// Subscribe returns a channel that yields the latest value followed by every
// later value. The channel is closed when ctx is done, when the subject
// completes, or when the subscriber falls a full buffer behind.
func (s *Subject[T]) Subscribe(ctx context.Context) <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, s.bufSize)
	ch <- s.last

	if s.done || ctx.Err() != nil {
		close(ch)
		return ch
	}

	s.subs[ch] = struct{}{}
	context.AfterFunc(ctx, func() { s.unsubscribe(ch) })
	return ch
}

// Value returns the most recent value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Count returns the number of live subscribers.
func (s *Subject[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Complete closes all subscriber channels. Further Next calls are ignored.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// Completed reports whether Complete has been called.
func (s *Subject[T]) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Feed returns a read-only view of s.
func (s *Subject[T]) Feed() *Feed[T] {
	return &Feed[T]{subject: s}
}

func (s *Subject[T]) unsubscribe(ch chan T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Feed is the observe-only side of a Subject handed to callers.
type Feed[T any] struct {
	subject *Subject[T]
}

// Subscribe is Subject.Subscribe.
func (f *Feed[T]) Subscribe(ctx context.Context) <-chan T {
	return f.subject.Subscribe(ctx)
}

// Value is Subject.Value.
func (f *Feed[T]) Value() T {
	return f.subject.Value()
}
