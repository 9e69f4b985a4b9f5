// Package snapshot persists the ledger's record set.
//
// Two ledger.Backend implementations are provided.
//
// FileBackend writes the whole ordered record array to one file, choosing the
// encoding from the file name:
//   - *.json  pretty-printed JSON array (default)
//   - *.cbor  deterministic CBOR
//   - either with a trailing .zst is zstd-compressed
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers see either the old or the new snapshot. Parent
// directories are created on demand. A missing file loads as an empty set.
//
// PebbleBackend stores one key per record in a Pebble database:
//
//	ledger/e/{seq_be8}  frame(header=CBOR metadata, payload=message JSON)
//	ledger/m            record count (8 bytes BE)
//
// Frames are varint headerLen | header | payload | crc32c(header|payload).
// Save replaces the keyspace in a single batch.
package snapshot
