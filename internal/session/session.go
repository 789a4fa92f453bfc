// Package session implements per-connection session state (spec §4.3): id,
// status, attributes, handler set, sender, and timestamps, plus the
// PlayerSession variant that additionally carries a player/game/protocol
// reference.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zealnet/server/internal/dispatch"
	"github.com/zealnet/server/internal/event"
)

// Status is the session lifecycle state (spec §3).
type Status int32

const (
	NotConnected Status = iota
	Connecting
	Connected
	Closed
)

func (s Status) String() string {
	switch s {
	case NotConnected:
		return "NOT_CONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Sender is the capability a session uses to push bytes back down its
// connection. Implementations live in internal/server, one per wire
// transport (TCP, WebSocket); the session only ever sees this interface.
type Sender interface {
	Send(payload []byte) error
	Writable() bool
	Close() error
}

// Session is per-connection state shared by every protocol this server
// speaks. It is safe for concurrent use: Close is idempotent and guarded by
// its own mutex, attribute and handler mutation is safe concurrently with
// OnEvent (spec §4.3).
type Session struct {
	id         string
	dispatcher *dispatch.Dispatcher

	status        atomic.Int32
	creationTime  time.Time
	lastReadWrite atomic.Int64 // unix nanoseconds
	writable      atomic.Bool
	shuttingDown  atomic.Bool

	closeMu sync.Mutex

	attrsMu sync.RWMutex
	attrs   map[string]any

	handlersMu sync.Mutex
	handlers   []dispatch.Handler

	sender Sender
}

// New creates a session in NOT_CONNECTED status bound to d for event
// delivery. Callers transition to Connected once the handshake completes.
func New(id string, d *dispatch.Dispatcher) *Session {
	s := &Session{
		id:           id,
		dispatcher:   d,
		creationTime: time.Now(),
		attrs:        make(map[string]any),
	}
	s.status.Store(int32(NotConnected))
	s.writable.Store(true)
	return s
}

// ID returns the session's unique id, as minted by internal/idgen.
func (s *Session) ID() string { return s.id }

// Status returns the current lifecycle status.
func (s *Session) Status() Status { return Status(s.status.Load()) }

// SetStatus transitions the session to s. Once CLOSED is reached it is
// terminal — this method does not allow reopening a closed session (spec §3
// invariant i: "once status=CLOSED no further events are delivered").
func (s *Session) SetStatus(status Status) {
	if s.Status() == Closed {
		return
	}
	s.status.Store(int32(status))
}

// CreationTime returns when the session was constructed.
func (s *Session) CreationTime() time.Time { return s.creationTime }

// LastReadWriteTime returns the last time Touch was called.
func (s *Session) LastReadWriteTime() time.Time {
	ns := s.lastReadWrite.Load()
	if ns == 0 {
		return s.creationTime
	}
	return time.Unix(0, ns)
}

// Touch records read/write activity. Per spec §3 invariant iv, the
// timestamp is monotonically non-decreasing while CONNECTED; Touch is a
// no-op once the session is no longer connected so a late-arriving write
// from a draining connection cannot resurrect its idle clock.
func (s *Session) Touch() {
	if s.Status() != Connected {
		return
	}
	now := time.Now().UnixNano()
	for {
		cur := s.lastReadWrite.Load()
		if now <= cur {
			return
		}
		if s.lastReadWrite.CompareAndSwap(cur, now) {
			return
		}
	}
}

// Writable reports whether the session's sender currently accepts writes
// (backpressure signal from the underlying connection, spec §5).
func (s *Session) Writable() bool { return s.writable.Load() }

// SetWritable updates the writability flag. Called by the connection's
// writer loop when the channel's writability changes.
func (s *Session) SetWritable(w bool) { s.writable.Store(w) }

// ShuttingDown reports whether Close has begun (spec §3 invariant ii).
func (s *Session) ShuttingDown() bool { return s.shuttingDown.Load() }

// Attribute returns the opaque attribute stored under key, or ok=false.
func (s *Session) Attribute(key string) (any, bool) {
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

// SetAttribute stores an opaque value under key.
func (s *Session) SetAttribute(key string, value any) {
	s.attrsMu.Lock()
	defer s.attrsMu.Unlock()
	s.attrs[key] = value
}

// RemoveAttribute deletes key, if present.
func (s *Session) RemoveAttribute(key string) {
	s.attrsMu.Lock()
	defer s.attrsMu.Unlock()
	delete(s.attrs, key)
}

// Sender returns the currently attached MessageSender, or nil if none has
// been attached yet.
func (s *Session) Sender() Sender {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	return s.sender
}

// SetSender attaches the MessageSender bound to this session's underlying
// connection. The TCP and WebSocket listeners call it once, right after the
// connection is accepted and before login starts; the login upgrade does not
// attach a sender of its own.
func (s *Session) SetSender(sender Sender) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.sender = sender
}

// AddHandler registers h both locally (for bookkeeping/listing/close) and
// on the dispatcher. Mutation is rejected once the session is CLOSED (spec
// §3 invariant iii).
func (s *Session) AddHandler(h dispatch.Handler) error {
	if s.Status() == Closed {
		return fmt.Errorf("session %s: cannot add handler, session closed", s.id)
	}
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, h)
	s.handlersMu.Unlock()
	s.dispatcher.AddHandler(h)
	return nil
}

// RemoveHandler unregisters h both locally and from the dispatcher.
func (s *Session) RemoveHandler(h dispatch.Handler) {
	s.handlersMu.Lock()
	for i, existing := range s.handlers {
		if existing == h {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			break
		}
	}
	s.handlersMu.Unlock()
	s.dispatcher.RemoveHandler(h)
}

// Handlers returns a snapshot of the currently registered handlers.
func (s *Session) Handlers() []dispatch.Handler {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	out := make([]dispatch.Handler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

// OnEvent publishes e to the dispatcher, routed to this session's shard so
// the session's own handlers (and any-type handlers) get a chance to run
// (spec §4.3). A closed session drops the event instead of publishing it.
func (s *Session) OnEvent(e event.Event) {
	if s.Status() == Closed {
		return
	}
	s.dispatcher.FireEvent(event.NewForSession(e.Type(), e.Payload(), s.id))
}

// Close transitions the session through shuttingDown -> CLOSED, removes its
// handlers from the dispatcher, and closes its sender. Idempotent and safe
// for concurrent callers (spec §3 invariant ii, §4.3).
func (s *Session) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if !s.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	s.status.Store(int32(Closed))

	s.dispatcher.RemoveHandlersForSession(s.id)

	s.handlersMu.Lock()
	sender := s.sender
	s.handlersMu.Unlock()

	if sender != nil {
		return sender.Close()
	}
	return nil
}
