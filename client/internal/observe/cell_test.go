package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_SettleNotifiesWatcherOnce(t *testing.T) {
	c := NewCell("")
	ch := c.Watch(context.Background())

	require.True(t, c.Settle("special-offers"))
	require.False(t, c.Settle("other"))

	assert.Equal(t, []string{"", "special-offers"}, drain(ch))

	v, state, err := c.Get()
	assert.Equal(t, "special-offers", v)
	assert.Equal(t, Resolved, state)
	assert.NoError(t, err)
}

func TestCell_WatchAfterSettle(t *testing.T) {
	c := NewCell("")
	c.Settle("click-data")

	assert.Equal(t, []string{"click-data"}, drain(c.Watch(context.Background())))
}

func TestCell_Fail(t *testing.T) {
	cause := errors.New("lookup failed")
	c := NewCell("")
	ch := c.Watch(context.Background())

	require.True(t, c.Fail(cause))
	assert.False(t, c.Settle("late"))
	assert.False(t, c.Fail(errors.New("again")))

	assert.Equal(t, []string{""}, drain(ch))
	_, state, err := c.Get()
	assert.Equal(t, Failed, state)
	assert.ErrorIs(t, err, cause)
}

func TestCell_ResolvedCell(t *testing.T) {
	c := ResolvedCell("static-topic")

	assert.Equal(t, Resolved, c.State())
	assert.Equal(t, "static-topic", c.Value())
	assert.Equal(t, []string{"static-topic"}, drain(c.Watch(context.Background())))

	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static-topic", v)
}

func TestCell_WaitBlocksUntilSettled(t *testing.T) {
	c := NewCell("")
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Settle("resolved")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "resolved", v)
}

func TestCell_WaitReturnsFailure(t *testing.T) {
	cause := errors.New("boom")
	c := NewCell(0)
	c.Fail(cause)

	_, err := c.Wait(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestCell_WaitContextDone(t *testing.T) {
	c := NewCell("")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, ErrNotSettled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Pending, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())
}
