package pipeline

import "github.com/zealnet/server/internal/event"

// WSCodec implements the binary-WebSocket wire encoding (spec §4.1.3): each
// WebSocket binary message carries [opcode:1 | payload], using Inner
// (BinaryCodec or JSONCodec) for the payload shape. On decode, an opcode
// equal to NETWORK_MESSAGE is rewritten to SESSION_MESSAGE for backward
// compatibility with older clients that predate the NETWORK_MESSAGE split.
type WSCodec struct {
	Inner Codec
}

func (c WSCodec) Decode(frame []byte) (event.Event, error) {
	e, err := c.Inner.Decode(frame)
	if err != nil {
		return event.Event{}, err
	}
	if e.Type() == event.NetworkMessage {
		e = event.NewForSession(event.SessionMessage, e.Payload(), sessionIDOf(e))
	}
	return e, nil
}

func (c WSCodec) Encode(e event.Event) ([]byte, error) {
	return c.Inner.Encode(e)
}

func sessionIDOf(e event.Event) string {
	id, _ := e.Session().ID()
	return id
}
