// Package retention decides which records of a bounded log survive.
//
// Apply is pure: it looks only at timestamps and sequence numbers and returns
// the indices to keep in chronological order. Age eviction runs first and
// removes records strictly older than MaxAge. Count eviction then keeps the
// MaxCount most recent survivors. Records with equal timestamps are ordered by
// their sequence number, so eviction among them is deterministic.
package retention
