// Package game implements the Game container (spec §4.7): a session set
// supporting broadcast, idempotent connect/disconnect, and the weak
// back-reference session.GameRef expects from a PlayerSession.
package game

import (
	"sync"

	"github.com/zealnet/server/internal/dispatch"
	"github.com/zealnet/server/internal/event"
	"github.com/zealnet/server/internal/session"
)

// LoginHook is invoked once a session has joined (spec §4.6 step 5
// "game.onLogin(session)"). Left as an injectable function so callers can
// wire domain-specific post-login behavior without Game importing it.
type LoginHook func(ps *session.PlayerSession)

// Game holds the set of connected PlayerSessions for one game instance.
// Membership mutation is idempotent and safe for concurrent use.
type Game struct {
	name       string
	dispatcher *dispatch.Dispatcher
	onLogin    LoginHook

	mu       sync.RWMutex
	sessions map[string]*session.PlayerSession
}

// New creates a named Game publishing to d.
func New(name string, d *dispatch.Dispatcher, onLogin LoginHook) *Game {
	return &Game{
		name:       name,
		dispatcher: d,
		onLogin:    onLogin,
		sessions:   make(map[string]*session.PlayerSession),
	}
}

// Name identifies this game instance (session.GameRef).
func (g *Game) Name() string { return g.name }

// ConnectSession adds ps to the membership set and binds the weak
// back-reference (spec §4.7 "connectSession... idempotent"). A session
// already present is left untouched.
func (g *Game) ConnectSession(ps *session.PlayerSession) {
	g.mu.Lock()
	if _, exists := g.sessions[ps.ID()]; !exists {
		g.sessions[ps.ID()] = ps
		ps.SetGame(g)
	}
	g.mu.Unlock()
}

// OnLogin runs the configured post-login hook, if any (spec §4.6 step 5).
func (g *Game) OnLogin(ps *session.PlayerSession) {
	if g.onLogin != nil {
		g.onLogin(ps)
	}
}

// DisconnectSession removes ps from the membership set (session.GameRef).
// Idempotent: removing an absent session is a no-op.
func (g *Game) DisconnectSession(ps *session.PlayerSession) {
	g.mu.Lock()
	delete(g.sessions, ps.ID())
	g.mu.Unlock()
}

// Send routes e to the dispatcher (spec §4.7 "send(event)").
func (g *Game) Send(e event.Event) {
	g.dispatcher.FireEvent(e)
}

// SendBroadcast fans a NetworkEvent out to every session currently in the
// set, iterating a consistent point-in-time snapshot so a concurrent
// connect/disconnect cannot corrupt the broadcast (spec §4.7
// "sendBroadcast(networkEvent)").
func (g *Game) SendBroadcast(payload any) {
	for _, ps := range g.snapshot() {
		ps.OnEvent(event.NewNetworkMessage(payload))
	}
}

// Sessions returns a consistent snapshot of the current membership.
func (g *Game) Sessions() []*session.PlayerSession {
	return g.snapshot()
}

func (g *Game) snapshot() []*session.PlayerSession {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*session.PlayerSession, 0, len(g.sessions))
	for _, ps := range g.sessions {
		out = append(out, ps)
	}
	return out
}

// Close disconnects every session currently in the set (spec §4.7 "close:
// disconnect all").
func (g *Game) Close() {
	for _, ps := range g.snapshot() {
		_ = ps.Close()
	}
}
