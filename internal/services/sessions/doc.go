// Package sessions is the transport-facing facade over the ledger store.
// HTTP and gRPC handlers call it for appends, pages, clears and live tails.
//
// Tail
//   - Subscribes before replaying the backlog, so nothing appended in between
//     is lost. Records seen during replay are skipped when they arrive live.
//   - Each tail owns a writer goroutine draining a bounded queue
//     (LEDGER_SUB_BUF). A subscriber that lets the queue fill is closed with
//     ErrSlowConsumer instead of stalling the store.
//   - LEDGER_SUB_FLUSH_MS sets an optional flush window. Small windows
//     (2-5ms) coalesce network writes without noticeable latency.
//   - Filter is an optional CEL expression over sequence, ts_ms, size, text,
//     json, session_id, query_id and now_ms.
package sessions
