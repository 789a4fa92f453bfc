package pipeline

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zealnet/server/internal/buffer"
	"github.com/zealnet/server/internal/event"
)

const (
	sbeHeaderLen  = 8
	sbeSchemaID   = 1
	sbeSchemaVers = 1
)

// SBECodec implements the SBE-style framed binary encoding (spec §4.1.4):
// an 8-byte little-endian header {blockLength, templateId, schemaId,
// version} followed by blockLength bytes. templateId & 0xFF is the event
// type. A schemaId/version mismatch is logged but not fatal; a declared
// blockLength exceeding the remaining bytes truncates the payload with a
// warning rather than failing the decode.
type SBECodec struct{}

func (SBECodec) Decode(frame []byte) (event.Event, error) {
	if len(frame) < sbeHeaderLen {
		return event.Event{}, fmt.Errorf("sbe codec: frame shorter than header (%d bytes)", len(frame))
	}
	blockLength := binary.LittleEndian.Uint16(frame[0:2])
	templateID := binary.LittleEndian.Uint16(frame[2:4])
	schemaID := binary.LittleEndian.Uint16(frame[4:6])
	version := binary.LittleEndian.Uint16(frame[6:8])

	if schemaID != sbeSchemaID || version != sbeSchemaVers {
		slog.Warn("sbe codec: schema/version mismatch",
			"schema_id", schemaID, "version", version,
			"expected_schema_id", sbeSchemaID, "expected_version", sbeSchemaVers)
	}

	body := frame[sbeHeaderLen:]
	n := int(blockLength)
	if n > len(body) {
		slog.Warn("sbe codec: declared blockLength exceeds remaining bytes, truncating",
			"declared", n, "available", len(body))
		n = len(body)
	}

	opcode := byte(templateID & 0xFF)
	payload := buffer.Wrap(body[:n])
	return newEventForOpcode(opcode, payload), nil
}

// Encode serializes the payload as: the raw bytes of a buffer payload, the
// UTF-8 bytes of a string payload, otherwise JSON, falling back to the
// payload's string form if JSON encoding fails (spec §4.1.4).
func (SBECodec) Encode(e event.Event) ([]byte, error) {
	body, err := sbeEncodeBody(e.Payload())
	if err != nil {
		return nil, err
	}
	if len(body) > 0xFFFF {
		return nil, fmt.Errorf("sbe codec: block of %d bytes exceeds 16-bit blockLength field", len(body))
	}

	out := make([]byte, sbeHeaderLen+len(body))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(body)))
	binary.LittleEndian.PutUint16(out[2:4], uint16(e.Type()))
	binary.LittleEndian.PutUint16(out[4:6], sbeSchemaID)
	binary.LittleEndian.PutUint16(out[6:8], sbeSchemaVers)
	copy(out[sbeHeaderLen:], body)
	return out, nil
}

func sbeEncodeBody(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case *buffer.Buffer:
		return p.Bytes(), nil
	case string:
		return []byte(p), nil
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return []byte(fmt.Sprint(p)), nil
		}
		return encoded, nil
	}
}
