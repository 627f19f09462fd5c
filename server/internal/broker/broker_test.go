package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopstream/shopstream/server/internal/config"
)

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "channel closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func waitClosed(t *testing.T, ch <-chan Message) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

// backends runs fn against every Broker implementation.
func backends(t *testing.T, fn func(t *testing.T, b Broker)) {
	t.Run("memory", func(t *testing.T) {
		b := NewMemory()
		defer b.Close()
		fn(t, b)
	})
	t.Run("redis", func(t *testing.T) {
		s := miniredis.RunT(t)
		b, err := NewRedis(redis.NewClient(&redis.Options{Addr: s.Addr()}), "test:")
		require.NoError(t, err)
		defer b.Close()
		fn(t, b)
	})
}

func TestBroker_ProduceSubscribe(t *testing.T) {
	backends(t, func(t *testing.T, b Broker) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := b.Subscribe(ctx, "click-data")
		require.NoError(t, err)

		require.NoError(t, b.Produce(ctx, "click-data", "u-1", []byte(`{"productId":"1"}`)))
		require.NoError(t, b.Produce(ctx, "click-data", "u-2", []byte(`not json`)))
		require.NoError(t, b.Produce(ctx, "other", "u-3", []byte(`{}`)))

		m1 := recv(t, ch)
		assert.Equal(t, "click-data", m1.Topic)
		assert.Equal(t, "u-1", m1.Key)
		assert.JSONEq(t, `{"productId":"1"}`, string(m1.Value))
		assert.False(t, m1.Time.IsZero())

		m2 := recv(t, ch)
		assert.Equal(t, "u-2", m2.Key)
		assert.Equal(t, "not json", string(m2.Value))

		select {
		case m := <-ch:
			t.Fatalf("unexpected message from another topic: %+v", m)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestBroker_FanOut(t *testing.T) {
	backends(t, func(t *testing.T, b Broker) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := b.Subscribe(ctx, "special-offers")
		require.NoError(t, err)
		c, err := b.Subscribe(ctx, "special-offers")
		require.NoError(t, err)

		require.NoError(t, b.Produce(ctx, "special-offers", "u-1", []byte(`"10% off"`)))
		assert.Equal(t, "u-1", recv(t, a).Key)
		assert.Equal(t, "u-1", recv(t, c).Key)
	})
}

func TestBroker_CancelEndsSubscription(t *testing.T) {
	backends(t, func(t *testing.T, b Broker) {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := b.Subscribe(ctx, "click-data")
		require.NoError(t, err)
		cancel()
		waitClosed(t, ch)
	})
}

func TestBroker_CloseEndsSubscriptions(t *testing.T) {
	backends(t, func(t *testing.T, b Broker) {
		ch, err := b.Subscribe(context.Background(), "click-data")
		require.NoError(t, err)

		require.NoError(t, b.Close())
		waitClosed(t, ch)

		assert.ErrorIs(t, b.Produce(context.Background(), "click-data", "k", nil), ErrClosed)
		_, err = b.Subscribe(context.Background(), "click-data")
		assert.ErrorIs(t, err, ErrClosed)
		assert.NoError(t, b.Close())
	})
}

func TestMemory_Subscribers(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Subscribe(ctx, "click-data")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscribers("click-data"))

	cancel()
	waitClosed(t, ch)
	assert.Equal(t, 0, m.Subscribers("click-data"))
}

func TestRedis_ChannelName(t *testing.T) {
	s := miniredis.RunT(t)
	r, err := NewRedis(redis.NewClient(&redis.Options{Addr: s.Addr()}), "shop:")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "shop:click-data", r.Channel("click-data"))
}

func TestNewRedis_NilClient(t *testing.T) {
	_, err := NewRedis(nil, "x")
	assert.Error(t, err)
}

func TestNew_Backends(t *testing.T) {
	b, err := New(config.BrokerConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)
	b.Close()

	s := miniredis.RunT(t)
	b, err = New(config.BrokerConfig{Backend: "redis", Redis: config.RedisConfig{Addr: s.Addr(), ChannelPrefix: "p:"}})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, b)
	b.Close()

	_, err = New(config.BrokerConfig{Backend: "kafka"})
	assert.Error(t, err)
}

func TestBroker_Ping(t *testing.T) {
	backends(t, func(t *testing.T, b Broker) {
		assert.NoError(t, b.Ping(context.Background()))
		require.NoError(t, b.Close())
		assert.ErrorIs(t, b.Ping(context.Background()), ErrClosed)
	})
}

func TestRedis_PingUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	r, err := NewRedis(redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1}), "p:")
	require.NoError(t, err)
	defer r.Close()

	s.Close()
	assert.Error(t, r.Ping(context.Background()))
}
