// Package login implements the pre-game login state machine (spec §4.6):
// AWAIT_LOGIN -> VERIFYING -> AUTHENTICATED -> UPGRADED, terminal FAILED.
package login

import (
	"context"
	"fmt"

	"github.com/zealnet/server/internal/event"
	"github.com/zealnet/server/internal/registry"
	"github.com/zealnet/server/internal/session"
)

// State is the login state machine's current phase.
type State int32

const (
	AwaitLogin State = iota
	Verifying
	Authenticated
	Upgraded
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitLogin:
		return "AWAIT_LOGIN"
	case Verifying:
		return "VERIFYING"
	case Authenticated:
		return "AUTHENTICATED"
	case Upgraded:
		return "UPGRADED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// CredentialsVerifier authenticates the payload of a LOG_IN event, returning
// the Credentials identity on success. An error or a false ok means
// authentication failed (spec §4.6 step 2 "Any exception or none result").
type CredentialsVerifier interface {
	Verify(ctx context.Context, payload any) (registry.Credentials, bool, error)
}

// TokenMinter mints the opaque bearer token sent with LOG_IN_SUCCESS (spec
// §4.6 step 4). internal/login/token.go's AESGCMMinter is the concrete
// implementation.
type TokenMinter interface {
	Mint(randomKey string) (string, error)
}

// GameJoiner is the narrow slice of internal/game.Game the login flow needs
// (spec §4.6 step 5): connecting a freshly authenticated session and
// notifying the game of the login.
type GameJoiner interface {
	ConnectSession(ps *session.PlayerSession)
	OnLogin(ps *session.PlayerSession)
}

// ProtocolApplier installs the post-login pipeline chain on ps (spec §4.6
// step 5, "protocol.applyProtocol(session)"). internal/pipeline.ApplyProtocol
// satisfies this once partially applied to a concrete Protocol.
type ProtocolApplier func(ps *session.PlayerSession)

// PresenceAnnouncer publishes cross-node login/logout presence (SPEC_FULL.md
// §12). Optional: a nil announcer means no cluster presence is configured.
// internal/cluster.PresencePublisher satisfies this structurally.
type PresenceAnnouncer interface {
	AnnounceLogin(randomKey string)
	AnnounceLogout(randomKey string)
}

// Attempt drives one connection's login state machine. It is not
// goroutine-safe; one Attempt belongs to exactly one connection's own
// execution context, matching the pipeline's single-owner discipline.
type Attempt struct {
	state State

	verifier CredentialsVerifier
	minter   TokenMinter
	registry *registry.Registry
	game     GameJoiner
	applyTo  ProtocolApplier
	presence PresenceAnnouncer

	base *session.Session
}

// NewAttempt starts a login attempt in AWAIT_LOGIN for base. presence may be
// nil if no cluster presence publisher is configured.
func NewAttempt(base *session.Session, verifier CredentialsVerifier, minter TokenMinter, reg *registry.Registry, game GameJoiner, applyTo ProtocolApplier, presence PresenceAnnouncer) *Attempt {
	return &Attempt{
		state:    AwaitLogin,
		verifier: verifier,
		minter:   minter,
		registry: reg,
		game:     game,
		applyTo:  applyTo,
		presence: presence,
		base:     base,
	}
}

// State returns the attempt's current phase.
func (a *Attempt) State() State { return a.state }

// outcome pairs a response event with whether the connection closes
// afterward.
type outcome struct {
	respond event.Event
	close   bool
}

// HandleEvent advances the state machine on one decoded event (spec §4.6
// steps 1-6). The caller is responsible for sending respond (a zero Event
// means there is nothing to send) and closing the connection if shouldClose
// is true.
func (a *Attempt) HandleEvent(ctx context.Context, e event.Event) (respond event.Event, shouldClose bool, err error) {
	switch a.state {
	case AwaitLogin:
		return a.handleAwaitLogin(ctx, e)
	case Verifying, Authenticated, Upgraded, Failed:
		// A second LOG_IN on an already-progressed connection is a no-op at
		// the protocol level (spec §4.6 edge case): the login-handler stage
		// is removed from the pipeline once UPGRADED, so this path is only
		// reachable for a crafted frame arriving before that swap lands.
		return event.Event{}, false, nil
	default:
		return event.Event{}, true, fmt.Errorf("login: attempt in unknown state %v", a.state)
	}
}

func (a *Attempt) handleAwaitLogin(ctx context.Context, e event.Event) (event.Event, bool, error) {
	if e.Type() != event.LogIn {
		a.state = Failed
		return event.New(event.LogInFailure, nil), true, nil
	}

	a.state = Verifying
	creds, ok, err := a.verifier.Verify(ctx, e.Payload())
	if err != nil || !ok {
		a.state = Failed
		return event.New(event.LogInFailure, nil), true, nil
	}

	ps := session.NewPlayerSession(a.base)
	old := a.registry.Replace(creds, ps)
	// the registry already performed LOG_OUT + cleanup on old, if any; a
	// displaced sibling connection is an implicit logout of this randomKey.
	if old != nil && a.presence != nil {
		a.presence.AnnounceLogout(creds.RandomKey)
	}

	token, err := a.minter.Mint(creds.RandomKey)
	if err != nil {
		a.state = Failed
		return event.New(event.LogInFailure, nil), true, nil
	}

	a.state = Authenticated
	if a.presence != nil {
		a.presence.AnnounceLogin(creds.RandomKey)
	}
	a.finishUpgrade(ps)
	return event.New(event.LogInSuccess, token), false, nil
}

// finishUpgrade installs the protocol's app chain, joins the game and reaches
// UPGRADED (spec §4.6 step 5). It runs inside handleAwaitLogin, before the
// LOG_IN_SUCCESS event is returned, so all of this is done before the caller
// writes the response frame and whether or not that write succeeds. It has
// no failure path.
func (a *Attempt) finishUpgrade(ps *session.PlayerSession) {
	if a.applyTo != nil {
		a.applyTo(ps)
	}
	if a.game != nil {
		a.game.ConnectSession(ps)
		a.game.OnLogin(ps)
	}
	a.state = Upgraded
}
