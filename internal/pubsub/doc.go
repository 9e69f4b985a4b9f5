// Package pubsub is an in-process topic bus with per-subscriber mailboxes.
//
// Publish never blocks on subscribers: each subscriber owns an unbounded queue
// drained by its own goroutine, so a slow handler delays only itself. Events
// published to a topic are delivered to each of its subscribers in publish
// order. Unsubscribing is idempotent; once it returns no new handler call
// starts for that subscription.
package pubsub
