package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openChannel is a channel that never ends on its own.
type openChannel struct {
	done chan struct{}
	err  error
}

func newOpenChannel() *openChannel { return &openChannel{done: make(chan struct{})} }

func (c *openChannel) Done() <-chan struct{} { return c.done }
func (c *openChannel) Err() error            { return c.err }

func TestPrintOffers_FeedDroppedIsAnError(t *testing.T) {
	msgs := make(chan json.RawMessage, 2)
	msgs <- json.RawMessage(`null`)
	msgs <- json.RawMessage(`{"userId":"u-1","offer":"offer1"}`)
	close(msgs)

	var out bytes.Buffer
	err := printOffers(context.Background(), msgs, newOpenChannel(), &out)

	require.ErrorIs(t, err, errFeedDropped)
	assert.JSONEq(t, `{"userId":"u-1","offer":"offer1"}`, out.String())
}

func TestPrintOffers_CancelledIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msgs := make(chan json.RawMessage)
	close(msgs)

	assert.NoError(t, printOffers(ctx, msgs, newOpenChannel(), &bytes.Buffer{}))
}

func TestPrintOffers_ChannelEndReportsItsError(t *testing.T) {
	ch := newOpenChannel()
	ch.err = errors.New("gateway went away")
	close(ch.done)

	err := printOffers(context.Background(), make(chan json.RawMessage), ch, &bytes.Buffer{})
	assert.EqualError(t, err, "gateway went away")
}

func TestPrintOffers_SkipsUndecodable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs := make(chan json.RawMessage, 2)
	msgs <- json.RawMessage(`{"broken":`)
	msgs <- json.RawMessage(`"{\"userId\":\"u-2\",\"offer\":\"offer2\"}"`)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- printOffers(ctx, msgs, newOpenChannel(), &out) }()

	close(msgs)
	err := <-done
	require.ErrorIs(t, err, errFeedDropped)
	assert.JSONEq(t, `{"userId":"u-2","offer":"offer2"}`, out.String())
}
