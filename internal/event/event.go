// Package event defines the tagged event value that flows through the
// dispatcher: a type tag, an opaque payload, and a timestamp (spec §3).
package event

import "time"

// Type is the closed set of event type tags carried on the wire (spec §6).
// Values are single bytes so they fit directly into the binary/SBE opcode
// byte; ANY is a sentinel used only for handler registration, never sent.
type Type uint8

const (
	LogIn        Type = 0x01
	LogInSuccess Type = 0x02
	LogInFailure Type = 0x03
	LogOut       Type = 0x04
	SessionMessage Type = 0x33
	NetworkMessage Type = 0x34
	Disconnect     Type = 0x36
	GameEnter      Type = 0x40
	GameLeave      Type = 0x41
	Start          Type = 0x50
	Stop           Type = 0x51
	Exception      Type = 0xF0
	Any            Type = 0xFF
)

func (t Type) String() string {
	switch t {
	case LogIn:
		return "LOG_IN"
	case LogInSuccess:
		return "LOG_IN_SUCCESS"
	case LogInFailure:
		return "LOG_IN_FAILURE"
	case LogOut:
		return "LOG_OUT"
	case SessionMessage:
		return "SESSION_MESSAGE"
	case NetworkMessage:
		return "NETWORK_MESSAGE"
	case Disconnect:
		return "DISCONNECT"
	case GameEnter:
		return "GAME_ENTER"
	case GameLeave:
		return "GAME_LEAVE"
	case Start:
		return "START"
	case Stop:
		return "STOP"
	case Exception:
		return "EXCEPTION"
	case Any:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}

// SessionKey identifies the session an event should be routed to for shard
// affinity purposes (spec §4.2 "session-bound handler target"). Events with
// no session context (zero value, ok=false) fan out to every shard instead.
type SessionKey struct {
	id string
	ok bool
}

// NewSessionKey wraps a session id as a routing key.
func NewSessionKey(id string) SessionKey {
	return SessionKey{id: id, ok: true}
}

// ID returns the underlying session id and whether a key is actually present.
func (k SessionKey) ID() (string, bool) {
	return k.id, k.ok
}

// Event is the tagged, timestamped message the dispatcher routes.
type Event struct {
	typ       Type
	payload   any
	timestamp time.Time
	session   SessionKey
}

// New creates an Event of the given type carrying payload, timestamped now.
// NETWORK_MESSAGE events must be built with NewNetworkMessage instead — this
// constructor rejects that type to preserve the "cannot re-type" invariant
// at construction time, not just on mutation.
func New(typ Type, payload any) Event {
	if typ == NetworkMessage {
		panic("event: use NewNetworkMessage to build a NETWORK_MESSAGE event")
	}
	return Event{typ: typ, payload: payload, timestamp: time.Now()}
}

// NewForSession creates an Event routed to a specific session's shard. A
// NETWORK_MESSAGE type is built through NewNetworkMessage.
func NewForSession(typ Type, payload any, session string) Event {
	var e Event
	if typ == NetworkMessage {
		e = NewNetworkMessage(payload)
	} else {
		e = New(typ, payload)
	}
	e.session = NewSessionKey(session)
	return e
}

// NewNetworkMessage creates an Event whose type is permanently NETWORK_MESSAGE
// (spec §3). There is no setter for Type — the field is fixed at construction.
func NewNetworkMessage(payload any) Event {
	return Event{typ: NetworkMessage, payload: payload, timestamp: time.Now()}
}

// Type returns the event's type tag. It never changes after construction.
func (e Event) Type() Type { return e.typ }

// Payload returns the event's opaque payload, or nil if none was set.
func (e Event) Payload() any { return e.payload }

// Timestamp returns when the event was constructed.
func (e Event) Timestamp() time.Time { return e.timestamp }

// Session returns the routing key set by NewForSession, if any.
func (e Event) Session() SessionKey { return e.session }

// IsNetworkMessage reports whether e was built as a NetworkEvent.
func (e Event) IsNetworkMessage() bool { return e.typ == NetworkMessage }
