package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/zealnet/server/internal/login"
	"github.com/zealnet/server/internal/pipeline"
	"github.com/zealnet/server/internal/session"
)

// ProtocolFactory builds the post-login Protocol a TCP/WS listener installs
// once a connection authenticates. Binary-TCP, JSON-TCP and SBE listeners
// each supply their own.
type ProtocolFactory func() pipeline.Protocol

// TCPListener runs the accept loop for one length-framed TCP protocol
// (spec §4.7 "Listeners own an accept loop... a bind address").
type TCPListener struct {
	addr     string
	deps     Deps
	protocol ProtocolFactory

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	stopped  bool
}

// NewTCPListener creates a listener that will bind addr and, on accept,
// install protocol() as the post-login chain.
func NewTCPListener(addr string, deps Deps, protocol ProtocolFactory) *TCPListener {
	return &TCPListener{addr: addr, deps: deps, protocol: protocol}
}

// Start binds synchronously and begins accepting in the background. Calling
// Start twice is a no-op (spec §4.7 "starting twice is a no-op").
func (l *TCPListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return nil
	}

	ln, err := listenTCP(l.addr)
	if err != nil {
		return fmt.Errorf("server: binding tcp listener on %s: %w", l.addr, err)
	}
	l.listener = wrapRateLimited(ln, l.deps.Limiter)

	l.wg.Add(1)
	go l.acceptLoop(l.listener)
	return nil
}

func (l *TCPListener) acceptLoop(ln net.Listener) {
	defer l.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			stopped := l.stopped
			l.mu.Unlock()
			if stopped {
				return
			}
			slog.Warn("server: tcp accept failed", "addr", l.addr, "error", err)
			continue
		}
		go l.serve(conn)
	}
}

func (l *TCPListener) serve(conn net.Conn) {
	defer conn.Close()

	id := l.deps.IDGen.Next()
	base := session.New(id, l.deps.Dispatcher)
	base.SetStatus(session.Connecting)
	sender := newTCPSender(conn)
	base.SetSender(sender)

	pl := pipeline.New("tcp-" + id)
	writeFrame := func(frame []byte) error { return pl.WriteFrame(conn, frame) }

	var ps *session.PlayerSession
	applyTo := func(upgraded *session.PlayerSession) {
		ps = upgraded
		ps.SetStatus(session.Connected)
		pipeline.ApplyProtocol(ps, pl, l.protocol(), appInboundHandler, true)
		registerOutboundHandlers(ps, pl, writeFrame)
	}

	attempt := login.NewAttempt(base, l.deps.Verifier, l.deps.Minter, l.deps.Registry, l.deps.Game, applyTo, l.deps.Presence)
	pl.Install(login.LoginBinary{}.Build(newLoginHandler(attempt, pl, writeFrame)), true)

	for {
		frame, err := pl.ReadFrame(conn)
		if err != nil {
			break
		}
		e, err := pl.DecodeFrame(frame)
		if err != nil {
			slog.Debug("server: tcp decode failed, closing connection", "session", id, "error", err)
			break
		}
		if err := pl.Dispatch(base, e); err != nil {
			break
		}
	}

	if ps != nil {
		_ = ps.Close()
	} else {
		_ = base.Close()
	}
}

// Stop closes the accept socket. In-flight connections are left to drain on
// their own; the registry's sweep/Invalidate paths own session teardown.
func (l *TCPListener) Stop() error {
	l.mu.Lock()
	if l.listener == nil || l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	ln := l.listener
	l.mu.Unlock()

	err := ln.Close()
	l.wg.Wait()
	return err
}
