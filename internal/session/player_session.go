package session

import "sync"

// Player is left opaque by design — the business-level representation of a
// connected character/account is a consumer concern (spec §1 Non-goals:
// "the business-level game rules... their internal logic is opaque").
type Player any

// GameRef is the weak back-reference a PlayerSession holds to its Game
// (spec §9 "Cyclic relationships: PlayerSession <-> Game is represented as a
// weak back-reference... avoids ownership cycles and concurrent-close
// races"). internal/game.Game implements this; internal/session never
// imports internal/game.
type GameRef interface {
	Name() string
	DisconnectSession(ps *PlayerSession)
}

// Protocol is the pipeline-installing strategy bound to a PlayerSession
// (spec §4.5). internal/pipeline.Protocol implements this.
type Protocol interface {
	Name() string
}

// PlayerSession is a Session additionally bound to a Player, a Game, and a
// Protocol (spec §3).
type PlayerSession struct {
	*Session

	mu       sync.RWMutex
	player   Player
	game     GameRef
	protocol Protocol

	leaveOnce sync.Once
}

// NewPlayerSession wraps an existing Session as a PlayerSession.
func NewPlayerSession(base *Session) *PlayerSession {
	return &PlayerSession{Session: base}
}

// Player returns the bound player value, or nil before EnterWorld-equivalent
// assignment.
func (ps *PlayerSession) Player() Player {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.player
}

// SetPlayer binds the player value.
func (ps *PlayerSession) SetPlayer(p Player) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.player = p
}

// Game returns the weakly-held game reference, or nil if not yet joined.
func (ps *PlayerSession) Game() GameRef {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.game
}

// SetGame binds the game reference. Called by Game.ConnectSession.
func (ps *PlayerSession) SetGame(g GameRef) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.game = g
}

// Protocol returns the pipeline-installing strategy bound at login.
func (ps *PlayerSession) Protocol() Protocol {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.protocol
}

// SetProtocol binds the protocol strategy.
func (ps *PlayerSession) SetProtocol(p Protocol) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.protocol = p
}

// Close closes the underlying Session and, exactly once, signals the bound
// Game to remove this session from its membership set (spec §3: "Removal
// from a Game's session set happens exactly once, during close()").
func (ps *PlayerSession) Close() error {
	err := ps.Session.Close()
	ps.leaveOnce.Do(func() {
		ps.mu.RLock()
		g := ps.game
		ps.mu.RUnlock()
		if g != nil {
			g.DisconnectSession(ps)
		}
	})
	return err
}
