// Package ledger implements the per-session message ledger.
//
// # Overview
//
// A Store holds a single ordered list of records. Every record belongs to one
// stream (a session) and may carry a correlation id (a query). Sequence numbers
// are store-wide and ascending; after every eviction pass the survivors are
// renumbered 1..N in chronological order.
//
// Every mutation follows the same path under one write lock:
//
//	validate -> mutate -> retention -> persist -> notify
//
// so a subscriber that observes an event can always read the record back, and
// a record is on disk before anyone is told about it. Persistence failures are
// logged and counted; they never fail the mutation.
//
// # Usage
//
//	st, _ := ledger.Open(ctx, ledger.Options{MaxRecords: 10000, Backend: backend})
//	rec, _ := st.Append(ctx, "session-1", json.RawMessage(`{"role":"user"}`))
//	page := st.ListSince(0, 100, "session-1")
//	unsub := st.Subscribe("session-1", func(ev ledger.Event) { ... })
//	defer unsub()
//
// Records returned by the Store share payload bytes with the store and must be
// treated as read-only.
package ledger
