package wire

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFrameSize bounds a single payload. Anything larger is a protocol
// violation and the connection must be closed rather than resynchronized.
const DefaultMaxFrameSize = 1 << 20

const headerSize = 4

// ErrFrameTooLarge is returned when a frame header declares a payload larger
// than the decoder's configured maximum.
type ErrFrameTooLarge struct {
	Declared uint32
	Max      uint32
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds maximum of %d", e.Declared, e.Max)
}

// Encode prepends a 4-byte big-endian length header to the payload.
// Framing operates on raw bytes so multi-byte text split across network
// chunks can never corrupt message boundaries.
func Encode(payload []byte) []byte {
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame
}

// Decoder reassembles length-prefixed payloads from an arbitrary stream of
// chunks. It is owned by exactly one connection's read loop and is not safe
// for concurrent use.
type Decoder struct {
	buf []byte
	max uint32
}

func NewDecoder(maxFrameSize uint32) *Decoder {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{max: maxFrameSize}
}

// Feed appends a chunk and returns every fully-assembled payload, in order.
// Chunk boundaries never have to align with frame boundaries: incomplete
// frames stay buffered until later chunks complete them.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)

	var payloads [][]byte
	for {
		if len(d.buf) < headerSize {
			return payloads, nil
		}
		declared := binary.BigEndian.Uint32(d.buf[:headerSize])
		if declared > d.max {
			return payloads, &ErrFrameTooLarge{Declared: declared, Max: d.max}
		}
		total := headerSize + int(declared)
		if len(d.buf) < total {
			return payloads, nil
		}
		payload := make([]byte, declared)
		copy(payload, d.buf[headerSize:total])
		payloads = append(payloads, payload)
		d.buf = d.buf[total:]
	}
}

// Buffered reports how many bytes of incomplete frame are pending.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
