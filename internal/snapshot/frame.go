package snapshot

import (
	"encoding/binary"
	"hash/crc32"
)

// Frame encoding: varint headerLen | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeFrame(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

type frame struct {
	Header  []byte
	Payload []byte
}

func decodeFrame(b []byte) (frame, bool) {
	if len(b) < 1+4 {
		return frame{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return frame{}, false
	}
	if uint64(n)+hlen+4 > uint64(len(b)) {
		return frame{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return frame{}, false
	}
	return frame{Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...)}, true
}
