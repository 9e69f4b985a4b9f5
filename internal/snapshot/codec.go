package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
)

// Format is the on-disk encoding of a file snapshot.
type Format int

const (
	FormatJSON Format = iota
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// DetectFormat derives the encoding and compression from a file name.
func DetectFormat(path string) (Format, bool) {
	name := strings.ToLower(filepath.Base(path))
	compressed := strings.HasSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".zst")
	if strings.HasSuffix(name, ".cbor") {
		return FormatCBOR, compressed
	}
	return FormatJSON, compressed
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode

	// zstd encoder and decoder are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeRecords(records []ledger.Record, format Format) ([]byte, error) {
	if records == nil {
		records = []ledger.Record{}
	}
	switch format {
	case FormatCBOR:
		return cborEnc.Marshal(records)
	case FormatJSON:
		return json.MarshalIndent(records, "", "  ")
	default:
		return nil, fmt.Errorf("snapshot: unsupported format %s", format)
	}
}

func decodeRecords(data []byte, format Format) ([]ledger.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out []ledger.Record
	switch format {
	case FormatCBOR:
		if err := cborDec.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("snapshot: decode cbor: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("snapshot: decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("snapshot: unsupported format %s", format)
	}
	return out, nil
}

func compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/3))
}

func decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd decompress: %w", err)
	}
	return out, nil
}
