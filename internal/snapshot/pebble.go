package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
	pebblestore "github.com/remiverdiesen/agents-at-scale/internal/storage/pebble"
)

// recordHeader is the CBOR-encoded metadata of one stored record.
type recordHeader struct {
	ID            string `cbor:"1,keyasint,omitempty"`
	StreamKey     string `cbor:"2,keyasint"`
	CorrelationID string `cbor:"3,keyasint,omitempty"`
	Sequence      uint64 `cbor:"4,keyasint"`
	TimestampNs   int64  `cbor:"5,keyasint"`
}

// PebbleBackend stores records in a Pebble database.
type PebbleBackend struct {
	db *pebblestore.DB
}

// NewPebbleBackend wraps an open database. The caller keeps ownership of db.
func NewPebbleBackend(db *pebblestore.DB) *PebbleBackend {
	return &PebbleBackend{db: db}
}

// Load reads every record in key order. Frames failing their checksum are
// skipped.
func (b *PebbleBackend) Load(ctx context.Context) ([]ledger.Record, error) {
	var out []ledger.Record
	err := b.db.ScanPrefix(entryPrefix, func(key, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seq, ok := seqFromKey(key)
		if !ok {
			return nil
		}
		fr, ok := decodeFrame(value)
		if !ok {
			return nil
		}
		var h recordHeader
		if err := cbor.Unmarshal(fr.Header, &h); err != nil {
			return fmt.Errorf("snapshot: decode header for seq %d: %w", seq, err)
		}
		out = append(out, ledger.Record{
			ID:            h.ID,
			StreamKey:     h.StreamKey,
			CorrelationID: h.CorrelationID,
			Sequence:      h.Sequence,
			Timestamp:     time.Unix(0, h.TimestampNs).UTC(),
			Payload:       json.RawMessage(fr.Payload),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save replaces the stored records in one batch.
func (b *PebbleBackend) Save(ctx context.Context, records []ledger.Record) error {
	return b.db.ReplacePrefix(ctx, keyPrefix, func(batch *pebble.Batch) error {
		for _, r := range records {
			header, err := cborEnc.Marshal(recordHeader{
				ID:            r.ID,
				StreamKey:     r.StreamKey,
				CorrelationID: r.CorrelationID,
				Sequence:      r.Sequence,
				TimestampNs:   r.Timestamp.UnixNano(),
			})
			if err != nil {
				return err
			}
			if err := batch.Set(entryKey(r.Sequence), encodeFrame(header, r.Payload), nil); err != nil {
				return err
			}
		}
		var meta [8]byte
		binary.BigEndian.PutUint64(meta[:], uint64(len(records)))
		return batch.Set(metaKey, meta[:], nil)
	})
}

// Count returns the record count written by the last Save.
func (b *PebbleBackend) Count() (uint64, error) {
	v, err := b.db.Get(metaKey)
	if err != nil {
		return 0, err
	}
	if len(v) < 8 {
		return 0, fmt.Errorf("snapshot: short meta value")
	}
	return binary.BigEndian.Uint64(v[:8]), nil
}
