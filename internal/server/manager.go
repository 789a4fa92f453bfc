package server

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zealnet/server/internal/config"
	"github.com/zealnet/server/internal/pipeline"
)

// listenerHandle is the subset of the concrete listeners ServerManager
// orchestrates uniformly.
type listenerHandle interface {
	Start() error
	Stop() error
}

// ServerManager orchestrates a configurable subset of listeners (TCP, HTTP,
// WebSocket), each gated by a boolean config key (spec §4.7). Starting
// twice is a no-op. Start binds the enabled listeners concurrently via
// errgroup the way the teacher's multi-resource startup (geodata + zones +
// pools) fans out independent initialization; Stop tears the started
// listeners down one after another.
type ServerManager struct {
	cfg  config.Provider
	deps Deps

	mu        sync.Mutex
	started   bool
	listeners []listenerHandle
}

// New builds a ServerManager. cfg is consulted for the enable flags and
// ports documented in spec §6 / SPEC_FULL.md §11:
//
//	server.tcp.enabled / tcp.port (default 8090)
//	server.json.enabled / json.port (default 8091)
//	server.sbe.enabled / sbe.port (default 8092)
//	server.websocket.enabled / web.socket.port (default 8300) / server.websocket.json
//	server.http.enabled / http.port (default 8081)
func New(cfg config.Provider, deps Deps) *ServerManager {
	return &ServerManager{cfg: cfg, deps: deps}
}

// portAddr turns a bare port number into a bind-all-interfaces address.
func portAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

// Start binds every enabled listener concurrently. If any bind fails, the
// listeners that already bound are stopped before the error is returned
// (spec §4.7 "a failed bind tears down already-allocated resources").
func (m *ServerManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	var candidates []listenerHandle
	if m.cfg.Bool("server.tcp.enabled", true) {
		addr := portAddr(m.cfg.Int("tcp.port", 8090))
		candidates = append(candidates, NewTCPListener(addr, m.deps, func() pipeline.Protocol { return pipeline.NewBinaryTCP() }))
	}
	if m.cfg.Bool("server.json.enabled", false) {
		addr := portAddr(m.cfg.Int("json.port", 8091))
		candidates = append(candidates, NewTCPListener(addr, m.deps, func() pipeline.Protocol { return pipeline.NewJSONTCP() }))
	}
	if m.cfg.Bool("server.sbe.enabled", false) {
		addr := portAddr(m.cfg.Int("sbe.port", 8092))
		candidates = append(candidates, NewTCPListener(addr, m.deps, func() pipeline.Protocol { return pipeline.NewSBE() }))
	}
	if m.cfg.Bool("server.websocket.enabled", true) {
		addr := portAddr(m.cfg.Int("web.socket.port", 8300))
		candidates = append(candidates, NewWebSocketListener(addr, m.deps, m.cfg.Bool("server.websocket.json", false)))
	}
	if m.cfg.Bool("server.http.enabled", true) {
		addr := portAddr(m.cfg.Int("http.port", 8081))
		candidates = append(candidates, NewHTTPListener(addr, m.deps.Registry, m.deps.MetricsGatherer))
	}

	started := make([]listenerHandle, len(candidates))
	var g errgroup.Group
	for i, ln := range candidates {
		i, ln := i, ln
		g.Go(func() error {
			if err := ln.Start(); err != nil {
				return err
			}
			started[i] = ln
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, ln := range started {
			if ln == nil {
				continue
			}
			if stopErr := ln.Stop(); stopErr != nil {
				slog.Warn("server: rollback stop failed", "error", stopErr)
			}
		}
		return fmt.Errorf("server manager: starting listeners: %w", err)
	}

	m.listeners = candidates
	m.started = true
	return nil
}

// Stop stops every started listener, collecting the first error but
// attempting all of them regardless.
func (m *ServerManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}

	var firstErr error
	for _, ln := range m.listeners {
		if err := ln.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.listeners = nil
	m.started = false
	return firstErr
}
