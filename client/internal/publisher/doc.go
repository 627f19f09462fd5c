// Package publisher emits one-shot messages to a topic stream.
//
// Send(ctx, topic, streamID, payload) opens a channel to
// {publisher}/topic/{topic}/stream/{streamID}, writes payload once and closes.
// Nothing is pooled or reused between calls, nothing is retried.
package publisher
