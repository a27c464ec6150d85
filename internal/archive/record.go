package archive

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"

	"github.com/rzbill/linelog/internal/device"
)

// Value encoding: varint headerLen | header | payload | crc32c(header|payload)
// Header: released_at_ms_be8 | reason

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var errCorrupt = errors.New("archive: corrupt record")

func encodeHeader(at time.Time, reason device.Reason) []byte {
	h := make([]byte, 8, 8+len(reason))
	binary.BigEndian.PutUint64(h, uint64(at.UnixMilli()))
	return append(h, reason...)
}

func decodeHeader(h []byte) (time.Time, device.Reason, error) {
	if len(h) < 8 {
		return time.Time{}, "", errCorrupt
	}
	ms := int64(binary.BigEndian.Uint64(h[:8]))
	return time.UnixMilli(ms), device.Reason(h[8:]), nil
}

func encodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// decodeRecord returns copies of header and payload.
func decodeRecord(b []byte) (header, payload []byte, err error) {
	if len(b) < 1+4 {
		return nil, nil, errCorrupt
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || len(b)-n-4 < 0 || uint64(len(b)-n-4) < hlen {
		return nil, nil, errCorrupt
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, errCorrupt
	}
	return append([]byte(nil), header...), append([]byte(nil), payload...), nil
}
