// Package itemtime derives a display timestamp for a ledger payload.
//
// The first rule that yields a value wins:
//
//  1. an explicit "timestamp" field (strings are returned verbatim, numbers
//     are read as epoch milliseconds)
//  2. "startTimeUnixNano" on the payload; its first 13 digits are read as
//     epoch milliseconds
//  3. "startTimeUnixNano" on the first element of "spans" (later spans are
//     never consulted)
//  4. the current time
//
// Results are ISO-8601 UTC with millisecond precision, for example
// 2024-01-15T11:30:00.000Z. A nano value that is not an integer is skipped
// and the next rule applies.
package itemtime
