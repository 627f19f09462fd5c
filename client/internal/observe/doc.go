// Package observe provides the continuously-observable values shared by the
// client: a last-value replay Subject and the settled-once Cell built on it.
//
// Subject[T] is seeded with an initial value. Subscribe(ctx) returns a
// buffered channel that immediately yields the most recent value, then every
// value passed to Next in order. A subscriber that falls a full buffer behind
// is dropped (its channel is closed) so Next never blocks the producer.
// Complete() closes every subscriber channel; late subscribers still receive
// the final value before their channel closes.
//
// Cell[T] wraps a Subject for configuration values that arrive at most once:
//
//	Pending  --Settle(v)--> Resolved
//	Pending  --Fail(err)--> Failed
//
// Both transitions freeze the cell and complete its Subject, so a watcher
// attached before resolution sees the default, then the resolved value
// exactly once, then a closed channel.
package observe
