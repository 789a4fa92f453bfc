package dispatch

import (
	"context"

	"github.com/zealnet/server/internal/event"
)

// Handler is the contract the dispatcher depends on: a type tag plus a
// payload-accepting callable (spec §9 "the dispatcher depends on an
// EventHandler contract, not on any concrete session type").
type Handler interface {
	// EventType returns the type this handler wants to receive. A handler
	// registered with EventType()==event.Any receives every event type.
	EventType() event.Type
	// Handle processes one event. Panics are recovered by the shard and
	// turned into a logged HandlerFault; they never interrupt the
	// remaining handlers for the same event (spec §4.2).
	Handle(ctx context.Context, e event.Event)
}

// SessionScoped is the capability interface session handlers implement so
// the dispatcher can route their registration to a single shard by session
// hash instead of fanning out to every shard (spec §4.2, §9 "Shard routing
// is an Optional<SessionKey> queried via a separate capability check").
type SessionScoped interface {
	Handler
	SessionID() string
}

// asSessionScoped is the capability check spec §9 calls for.
func asSessionScoped(h Handler) (SessionScoped, bool) {
	s, ok := h.(SessionScoped)
	return s, ok
}
