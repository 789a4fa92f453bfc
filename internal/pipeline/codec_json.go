package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/zealnet/server/internal/event"
)

// JSONCodec implements the JSON wire encoding (spec §4.1.2):
// [opcode:1 | utf8 JSON text of payload]. An empty text after the opcode
// decodes to a nil payload ("none source").
type JSONCodec struct{}

func (JSONCodec) Decode(frame []byte) (event.Event, error) {
	if len(frame) < 1 {
		return event.Event{}, fmt.Errorf("json codec: frame too short for opcode")
	}
	opcode := frame[0]
	text := frame[1:]

	var payload any
	if len(text) > 0 {
		var m map[string]any
		if err := json.Unmarshal(text, &m); err != nil {
			return event.Event{}, fmt.Errorf("json codec: decoding payload: %w", err)
		}
		payload = m
	}
	return newEventForOpcode(opcode, payload), nil
}

func (JSONCodec) Encode(e event.Event) ([]byte, error) {
	var text []byte
	if e.Payload() != nil {
		encoded, err := json.Marshal(e.Payload())
		if err != nil {
			return nil, fmt.Errorf("json codec: encoding payload: %w", err)
		}
		text = encoded
	}
	out := make([]byte, 1+len(text))
	out[0] = byte(e.Type())
	copy(out[1:], text)
	return out, nil
}
