package pipeline

import "github.com/zealnet/server/internal/event"

// Codec pairs the decode/encode halves of one wire encoding (spec §4.1).
type Codec interface {
	Decode(frame []byte) (event.Event, error)
	Encode(e event.Event) ([]byte, error)
}

// newEventForOpcode builds an Event tagged with opcode, routing
// NETWORK_MESSAGE through its dedicated constructor since event.New rejects
// that type at construction.
func newEventForOpcode(opcode byte, payload any) event.Event {
	typ := event.Type(opcode)
	if typ == event.NetworkMessage {
		return event.NewNetworkMessage(payload)
	}
	return event.New(typ, payload)
}
