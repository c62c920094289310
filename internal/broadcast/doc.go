// Package broadcast provides a latest-value replaying broadcaster with a
// per-identity subscriber registry.
//
// A new subscriber immediately receives the most recently published value,
// then every later value in publish order. Subscriptions are grouped by an
// identity string so that one consumer can drop all of its subscriptions
// with a single Unsubscribe call.
//
// Design decision: each subscription is drained by its own goroutine from
// an unbounded queue rather than a buffered channel. A buffered channel
// would force a choice between blocking the publisher and dropping values
// when a consumer is slow; status streams are low volume, so an unbounded
// queue keeps both publishers and ordering guarantees simple.
package broadcast
