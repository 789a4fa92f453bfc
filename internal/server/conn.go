// Package server implements the accept-loop listeners and ServerManager
// orchestration (spec §4.7): TCP, HTTP, and WebSocket, each gated by a
// config boolean, plus the Sender implementations session.Session writes
// through.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zealnet/server/internal/dispatch"
	"github.com/zealnet/server/internal/event"
	"github.com/zealnet/server/internal/game"
	"github.com/zealnet/server/internal/idgen"
	"github.com/zealnet/server/internal/login"
	"github.com/zealnet/server/internal/pipeline"
	"github.com/zealnet/server/internal/registry"
	"github.com/zealnet/server/internal/session"
)

// Deps are the shared collaborators every listener wires a connection to.
type Deps struct {
	Dispatcher      *dispatch.Dispatcher
	Registry        *registry.Registry
	Game            *game.Game
	Verifier        login.CredentialsVerifier
	Minter          login.TokenMinter
	IDGen           *idgen.Generator
	Limiter         *Limiter
	MetricsGatherer prometheus.Gatherer
	Presence        login.PresenceAnnouncer
}

// outboundWriter is the session-scoped dispatch.Handler that turns a
// NETWORK_MESSAGE or SESSION_MESSAGE event published to this session's
// shard back into wire bytes (spec §4.5's app-chain encoder, driven from
// the dispatcher side rather than the read loop).
type outboundWriter struct {
	sessionID  string
	eventType  event.Type
	pl         *pipeline.Pipeline
	writeFrame func([]byte) error
}

func (o *outboundWriter) EventType() event.Type { return o.eventType }
func (o *outboundWriter) SessionID() string     { return o.sessionID }

func (o *outboundWriter) Handle(_ context.Context, e event.Event) {
	frame, err := o.pl.EncodeEvent(e)
	if err != nil {
		slog.Warn("server: encoding outbound event failed", "session", o.sessionID, "error", err)
		return
	}
	if err := o.writeFrame(frame); err != nil {
		slog.Warn("server: writing outbound frame failed", "session", o.sessionID, "error", err)
	}
}

// registerOutboundHandlers binds ps's shard to frames written back down
// writeFrame whenever a NETWORK_MESSAGE or SESSION_MESSAGE event is
// published to it.
func registerOutboundHandlers(ps *session.PlayerSession, pl *pipeline.Pipeline, writeFrame func([]byte) error) {
	for _, typ := range [...]event.Type{event.NetworkMessage, event.SessionMessage} {
		h := &outboundWriter{sessionID: ps.ID(), eventType: typ, pl: pl, writeFrame: writeFrame}
		if err := ps.AddHandler(h); err != nil {
			slog.Warn("server: registering outbound handler failed", "session", ps.ID(), "error", err)
		}
	}
}

// appInboundHandler is the terminal app-handler stage every post-login
// protocol installs: touch the session's activity clock and publish the
// decoded event to the dispatcher for registered business handlers (out of
// scope here; spec §1 Non-goals).
func appInboundHandler(s *session.Session, e event.Event) error {
	s.Touch()
	s.OnEvent(e)
	return nil
}

// newLoginHandler adapts a login.Attempt's HandleEvent into a
// pipeline.Handler, encoding and writing any response frame the attempt
// produces and surfacing its close/failure signal as an error so the
// caller's read loop tears the connection down (spec §4.6 steps 1-6).
func newLoginHandler(attempt *login.Attempt, pl *pipeline.Pipeline, writeFrame func([]byte) error) pipeline.Handler {
	return func(s *session.Session, e event.Event) error {
		respond, shouldClose, err := attempt.HandleEvent(context.Background(), e)
		if err != nil {
			return err
		}
		if respond.Payload() != nil || respond.Type() == event.LogInFailure || respond.Type() == event.LogInSuccess {
			frame, encErr := pl.EncodeEvent(respond)
			if encErr != nil {
				return encErr
			}
			if writeErr := writeFrame(frame); writeErr != nil {
				return writeErr
			}
		}
		if shouldClose {
			return errLoginClosed
		}
		return nil
	}
}

var errLoginClosed = errors.New("server: login attempt closed the connection")
