// Package subscriber keeps a persistent channel to a topic and republishes
// what arrives on it as an observe.Feed.
//
// The feed is seeded with a nil message so an observer attached before the
// first delivery sees an explicit "nothing yet". A transport error is logged,
// recorded in Err() and closes the channel; the feed stays subscribable but
// receives nothing until Subscribe is called again. Nothing reconnects on its
// own.
package subscriber
