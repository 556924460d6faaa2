package herisson

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Wire framing shared by the stream-oriented transports (tcp, file, shm).
// Each frame is a fixed header followed by the payload, all big-endian.
const (
	wireMagic   uint32 = 0x4852534E // "HRSN"
	wireVersion uint32 = 1

	wireHeaderSize = 48

	// maxWirePayload bounds the payload size a receiver will accept,
	// so a corrupt length field cannot trigger an absurd allocation.
	maxWirePayload = 64 << 20
)

// appendWireHeader appends the wire encoding of h to dst and returns the
// extended slice. The payload follows immediately on the wire.
func appendWireHeader(dst []byte, h FrameHeaders) []byte {
	var b [wireHeaderSize]byte
	binary.BigEndian.PutUint32(b[0:], wireMagic)
	binary.BigEndian.PutUint32(b[4:], wireVersion)
	binary.BigEndian.PutUint32(b[8:], uint32(h.MediaFormat))
	binary.BigEndian.PutUint32(b[12:], uint32(h.Sampling))
	binary.BigEndian.PutUint32(b[16:], uint32(h.Width))
	binary.BigEndian.PutUint32(b[20:], uint32(h.Height))
	binary.BigEndian.PutUint32(b[24:], uint32(h.Depth))
	binary.BigEndian.PutUint32(b[28:], uint32(h.MediaSize))
	binary.BigEndian.PutUint64(b[32:], uint64(h.PTS))
	binary.BigEndian.PutUint64(b[40:], uint64(h.FrameIndex))
	return append(dst, b[:]...)
}

// decodeWireHeader parses a wire header from b. h.MediaSize carries the
// payload length that follows.
func decodeWireHeader(b []byte) (FrameHeaders, error) {
	var h FrameHeaders
	if len(b) < wireHeaderSize {
		return h, fmt.Errorf("herisson: short wire header (%d bytes)", len(b))
	}
	if magic := binary.BigEndian.Uint32(b[0:]); magic != wireMagic {
		return h, fmt.Errorf("herisson: bad wire magic %#08x", magic)
	}
	if v := binary.BigEndian.Uint32(b[4:]); v != wireVersion {
		return h, fmt.Errorf("herisson: unsupported wire version %d", v)
	}
	h.MediaFormat = MediaFormat(binary.BigEndian.Uint32(b[8:]))
	h.Sampling = SamplingFormat(binary.BigEndian.Uint32(b[12:]))
	h.Width = int(binary.BigEndian.Uint32(b[16:]))
	h.Height = int(binary.BigEndian.Uint32(b[20:]))
	h.Depth = int(binary.BigEndian.Uint32(b[24:]))
	h.MediaSize = int(binary.BigEndian.Uint32(b[28:]))
	h.PTS = int64(binary.BigEndian.Uint64(b[32:]))
	h.FrameIndex = int64(binary.BigEndian.Uint64(b[40:]))
	if h.MediaSize < 0 || h.MediaSize > maxWirePayload {
		return h, fmt.Errorf("herisson: wire payload size %d out of range", h.MediaSize)
	}
	return h, nil
}

// readWireFrame reads one header+payload unit from r. The payload lands in
// *scratch, which grows as needed and is reused across calls.
func readWireFrame(r io.Reader, scratch *[]byte) (FrameHeaders, []byte, error) {
	var hb [wireHeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return FrameHeaders{}, nil, err
	}
	h, err := decodeWireHeader(hb[:])
	if err != nil {
		return FrameHeaders{}, nil, err
	}
	if cap(*scratch) < h.MediaSize {
		*scratch = make([]byte, h.MediaSize)
	}
	buf := (*scratch)[:h.MediaSize]
	if _, err := io.ReadFull(r, buf); err != nil {
		return FrameHeaders{}, nil, fmt.Errorf("herisson: truncated wire payload: %w", err)
	}
	return h, buf, nil
}
