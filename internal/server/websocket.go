package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zealnet/server/internal/login"
	"github.com/zealnet/server/internal/pipeline"
	"github.com/zealnet/server/internal/session"
)

// WebSocketListener serves the WebSocket protocol chain over a plain HTTP
// upgrade at "/" (spec §4.5 WebSocket: "WS server protocol handler (path
// /)"). Framing is message-based (gorilla delimits frames), so it carries
// no length-framer stage.
type WebSocketListener struct {
	addr string
	deps Deps
	json bool

	upgrader websocket.Upgrader

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewWebSocketListener creates a listener that will bind addr and speak the
// binary (json=false) or JSON (json=true) WebSocket payload shape.
func NewWebSocketListener(addr string, deps Deps, json bool) *WebSocketListener {
	return &WebSocketListener{
		addr: addr,
		deps: deps,
		json: json,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: true,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
	}
}

// Start binds synchronously and begins accepting upgrades in the
// background. Calling Start twice is a no-op.
func (l *WebSocketListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)
	srv := &http.Server{Addr: l.addr, Handler: mux}
	l.server = srv

	rawLn, err := listenTCP(l.addr)
	if err != nil {
		return fmt.Errorf("server: binding websocket listener on %s: %w", l.addr, err)
	}
	ln := wrapRateLimited(rawLn, l.deps.Limiter)

	go func() {
		if err := srv.Serve(ln); err != nil && !l.isStopped() {
			slog.Warn("server: websocket serve stopped", "addr", l.addr, "error", err)
		}
	}()
	return nil
}

func (l *WebSocketListener) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *WebSocketListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("server: websocket upgrade failed", "error", err)
		return
	}
	l.serve(conn)
}

func (l *WebSocketListener) serve(conn *websocket.Conn) {
	defer conn.Close()

	id := l.deps.IDGen.Next()
	base := session.New(id, l.deps.Dispatcher)
	base.SetStatus(session.Connecting)
	sender := newWSSender(conn)
	base.SetSender(sender)

	pl := pipeline.New("ws-" + id)
	writeFrame := func(frame []byte) error { return conn.WriteMessage(websocket.BinaryMessage, frame) }

	var ps *session.PlayerSession
	applyTo := func(upgraded *session.PlayerSession) {
		ps = upgraded
		ps.SetStatus(session.Connected)
		pipeline.ApplyProtocol(ps, pl, pipeline.WebSocket{JSON: l.json}, appInboundHandler, true)
		registerOutboundHandlers(ps, pl, writeFrame)
	}

	attempt := login.NewAttempt(base, l.deps.Verifier, l.deps.Minter, l.deps.Registry, l.deps.Game, applyTo, l.deps.Presence)
	pl.Install(pipeline.WebSocketPreLogin{JSON: l.json}.Build(newLoginHandler(attempt, pl, writeFrame)), true)

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		e, err := pl.DecodeFrame(frame)
		if err != nil {
			slog.Debug("server: websocket decode failed, closing connection", "session", id, "error", err)
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

// Stop gracefully shuts down the HTTP server backing this listener.
func (l *WebSocketListener) Stop() error {
	l.mu.Lock()
	if l.server == nil || l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	srv := l.server
	l.mu.Unlock()
	return srv.Close()
}
