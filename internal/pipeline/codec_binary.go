package pipeline

import (
	"fmt"

	"github.com/zealnet/server/internal/buffer"
	"github.com/zealnet/server/internal/event"
)

// BinaryCodec implements the plain-binary wire encoding (spec §4.1.1):
// [opcode:1 | payload:N]. The payload is handed to the application as a
// reference-counted buffer.Buffer wrapping the frame's payload bytes.
type BinaryCodec struct{}

func (BinaryCodec) Decode(frame []byte) (event.Event, error) {
	if len(frame) < 1 {
		return event.Event{}, fmt.Errorf("binary codec: frame too short for opcode")
	}
	opcode := frame[0]
	payload := buffer.Wrap(frame[1:])
	return newEventForOpcode(opcode, payload), nil
}

func (BinaryCodec) Encode(e event.Event) ([]byte, error) {
	var payload []byte
	switch p := e.Payload().(type) {
	case nil:
	case *buffer.Buffer:
		payload = p.Bytes()
	case string:
		payload = []byte(p)
	default:
		return nil, fmt.Errorf("binary codec: cannot encode payload of type %T", p)
	}
	out := make([]byte, 1+len(payload))
	out[0] = byte(e.Type())
	copy(out[1:], payload)
	return out, nil
}
