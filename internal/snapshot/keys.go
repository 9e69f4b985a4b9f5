package snapshot

import "encoding/binary"

// Keyspace:
// - ledger/m              record count
// - ledger/e/{seq_be8}    one frame per record

var (
	keyPrefix   = []byte("ledger/")
	metaKey     = []byte("ledger/m")
	entryPrefix = []byte("ledger/e/")
)

func entryKey(seq uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	return binary.BigEndian.AppendUint64(k, seq)
}

func seqFromKey(k []byte) (uint64, bool) {
	if len(k) != len(entryPrefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(k[len(entryPrefix):]), true
}
