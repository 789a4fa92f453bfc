package pipeline

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Framer implements the length-framer/length-prepender stage pair common to
// every non-WebSocket protocol (spec §4.5): a 2-byte big-endian length
// field (lengthFieldOffset=0, lengthFieldLength=2, lengthAdjustment=0)
// counting the bytes that follow it, stripped from the frame it hands
// onward (initialBytesToStrip=2).
type Framer struct {
	MaxFrame int
}

// ReadFrame reads one length-prefixed frame from r, returning the bytes
// after the 2-byte header.
func (f Framer) ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("framer: reading length header: %w", err)
	}
	n := int(binary.BigEndian.Uint16(header[:]))
	if f.MaxFrame > 0 && n > f.MaxFrame {
		return nil, fmt.Errorf("framer: frame length %d exceeds max %d", n, f.MaxFrame)
	}
	frame := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, fmt.Errorf("framer: reading frame body: %w", err)
		}
	}
	return frame, nil
}

// WriteFrame writes payload to w preceded by its 2-byte big-endian length.
func (f Framer) WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("framer: payload %d bytes exceeds 16-bit length field", len(payload))
	}
	if f.MaxFrame > 0 && len(payload) > f.MaxFrame {
		return fmt.Errorf("framer: payload %d bytes exceeds max %d", len(payload), f.MaxFrame)
	}
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("framer: writing length header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("framer: writing frame body: %w", err)
	}
	return nil
}
