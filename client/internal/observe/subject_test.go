package observe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](ch <-chan T) []T {
	var out []T
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func TestSubject_ReplaysInitialValue(t *testing.T) {
	s := NewSubject("initial")
	ch := s.Subscribe(context.Background())

	assert.Equal(t, "initial", <-ch)
	s.Complete()
	assert.Empty(t, drain(ch))
}

func TestSubject_PreservesOrder(t *testing.T) {
	s := NewSubject(0)
	ch := s.Subscribe(context.Background())

	for i := 1; i <= 10; i++ {
		s.Next(i)
	}
	s.Complete()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, drain(ch))
}

func TestSubject_LateSubscriberSeesLatest(t *testing.T) {
	s := NewSubject("a")
	s.Next("b")
	s.Next("c")

	ch := s.Subscribe(context.Background())
	s.Next("d")
	s.Complete()

	assert.Equal(t, []string{"c", "d"}, drain(ch))
	assert.Equal(t, "d", s.Value())
}

func TestSubject_SubscribeAfterComplete(t *testing.T) {
	s := NewSubject(1)
	s.Next(2)
	s.Complete()
	s.Next(3)

	assert.Equal(t, []int{2}, drain(s.Subscribe(context.Background())))
	assert.True(t, s.Completed())
}

func TestSubject_ContextCancelUnsubscribes(t *testing.T) {
	s := NewSubject(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	require.Equal(t, 1, s.Count())

	cancel()

	assert.Equal(t, []int{0}, drain(ch))
	assert.Equal(t, 0, s.Count())
}

func TestSubject_CancelledContextSubscribe(t *testing.T) {
	s := NewSubject("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, []string{"x"}, drain(s.Subscribe(ctx)))
	assert.Equal(t, 0, s.Count())
}

func TestSubject_SlowSubscriberDropped(t *testing.T) {
	s := NewSubjectWithBuffer(0, 2)
	slow := s.Subscribe(context.Background())

	// buffer holds the replayed 0 and 1; 2 overflows.
	s.Next(1)
	s.Next(2)

	assert.Equal(t, []int{0, 1}, drain(slow))
	assert.Equal(t, 0, s.Count())
}

func TestSubject_MultipleSubscribersShareValues(t *testing.T) {
	s := NewSubject("")
	a := s.Subscribe(context.Background())
	b := s.Subscribe(context.Background())

	s.Next("m1")
	s.Next("m2")
	s.Complete()

	assert.Equal(t, []string{"", "m1", "m2"}, drain(a))
	assert.Equal(t, []string{"", "m1", "m2"}, drain(b))
}

func TestFeed_ReadOnlyView(t *testing.T) {
	s := NewSubject(0)
	f := s.Feed()
	ch := f.Subscribe(context.Background())
	s.Next(7)
	s.Complete()

	assert.Equal(t, 7, f.Value())
	assert.Equal(t, []int{0, 7}, drain(ch))
}
