// Package runtime wires every component into one running node: config,
// id generation, the event dispatcher, the session registry, the game
// container, and the server listeners. It is the library entry point a
// process bootstrap (outside this module's scope) constructs and starts.
package runtime

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zealnet/server/internal/cluster"
	"github.com/zealnet/server/internal/config"
	"github.com/zealnet/server/internal/dispatch"
	"github.com/zealnet/server/internal/game"
	"github.com/zealnet/server/internal/idgen"
	"github.com/zealnet/server/internal/login"
	"github.com/zealnet/server/internal/metrics"
	"github.com/zealnet/server/internal/registry"
	"github.com/zealnet/server/internal/server"
)

// Runtime owns the lifecycle of one ZealNode (spec §9 "Global state: a
// single node identity string, immutable after startup").
type Runtime struct {
	node string
	cfg  config.Provider

	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	game       *game.Game
	idgen      *idgen.Generator
	manager    *server.ServerManager

	presence *cluster.PresencePublisher
	mirror   *cluster.SessionIndexMirror

	mu      sync.Mutex
	started bool
}

// New builds every component from cfg but starts nothing yet. The node
// identity (spec's ZealNode, immutable after startup) is read from cfg's
// "ZealNode" key, used for log correlation and id-generation prefixing.
func New(cfg config.Provider) (*Runtime, error) {
	node := cfg.String("ZealNode", "")

	reg := prometheus.NewRegistry()
	dispatchMetrics := metrics.NewDispatch(reg)
	registryMetrics := metrics.NewRegistry(reg)

	r := &Runtime{node: node, cfg: cfg}
	r.idgen = idgen.New(node)

	r.dispatcher = dispatch.New(dispatch.Config{
		Shards:    cfg.Int("dispatch.shards", 0),
		QueueSize: cfg.Int("dispatch.queue_size", 0),
		BatchSize: cfg.Int("dispatch.batch_size", 0),
		Metrics:   dispatchMetrics,
	})

	var onRemoval registry.RemovalListener
	var onInsert registry.InsertListener
	if cfg.Bool("cluster.redis.enabled", false) {
		mirror := cluster.NewSessionIndexMirror(cfg.String("cluster.redis.addr", "localhost:6379"), node)
		r.mirror = mirror
		onRemoval = mirror.OnRemoval
		onInsert = mirror.OnInsert
	}

	r.registry = registry.New(registry.Config{
		IdleTTL:     durationOr(cfg, "registry.idle_ttl_seconds", registry.DefaultIdleTTL),
		AbsoluteTTL: durationOr(cfg, "registry.absolute_ttl_seconds", registry.DefaultAbsoluteTTL),
		MaxEntries:  cfg.Int("registry.max_entries", registry.DefaultMaxEntries),
		OnRemoval:   onRemoval,
		OnInsert:    onInsert,
	})
	go refreshRegistryMetrics(r.registry, registryMetrics)

	r.game = game.New(cfg.String("game.name", node), r.dispatcher, nil)

	if cfg.Bool("cluster.nats.enabled", false) {
		presence, err := cluster.NewPresencePublisher(
			cfg.String("cluster.nats.url", nats_DefaultURL),
			cfg.String("cluster.nats.subject", "zealnet.presence"),
			node,
		)
		if err != nil {
			slog.Warn("runtime: nats presence disabled, connect failed", "error", err)
		} else {
			r.presence = presence
		}
	}

	minter, err := newMinter(cfg)
	if err != nil {
		return nil, err
	}
	verifier := newVerifier(cfg)

	limiter := server.NewLimiter(
		cfg.Bool("server.flood_protection", true),
		cfg.Int("server.fast_connection_limit", 15),
		cfg.Int("server.max_connection_per_ip", 50),
	)

	// r.presence is typed *cluster.PresencePublisher; passed through a nil
	// check rather than assigned directly so an unconfigured presence
	// publisher yields a true nil login.PresenceAnnouncer, not a non-nil
	// interface wrapping a nil pointer.
	var presence login.PresenceAnnouncer
	if r.presence != nil {
		presence = r.presence
	}

	r.manager = server.New(cfg, server.Deps{
		Dispatcher:      r.dispatcher,
		Registry:        r.registry,
		Game:            r.game,
		Verifier:        verifier,
		Minter:          minter,
		IDGen:           r.idgen,
		Limiter:         limiter,
		MetricsGatherer: reg,
		Presence:        presence,
	})

	return r, nil
}

const nats_DefaultURL = "nats://127.0.0.1:4222"

func newMinter(cfg config.Provider) (login.TokenMinter, error) {
	secret := cfg.String("login.token_secret", "")
	var key []byte
	if secret == "" {
		slog.Warn("runtime: login.token_secret not configured, deriving an ephemeral key (tokens will not survive a restart)")
		sum := sha256.Sum256([]byte("zealnet-ephemeral"))
		key = sum[:]
	} else {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}
	return login.NewAESGCMMinter(key)
}

func newVerifier(cfg config.Provider) login.CredentialsVerifier {
	if cfg.Bool("login.jwt.enabled", false) {
		sum := sha256.Sum256([]byte(cfg.String("login.jwt.secret", "")))
		return login.NewJWTVerifier(sum[:])
	}
	return login.NewMapVerifier(func(_ context.Context, fields map[string]any) (string, map[string]any, bool, error) {
		account, _ := fields["account"].(string)
		if account == "" {
			return "", nil, false, fmt.Errorf("runtime: login payload missing account field")
		}
		return account, nil, true, nil
	})
}

func durationOr(cfg config.Provider, key string, def time.Duration) time.Duration {
	seconds := cfg.Int(key, 0)
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func refreshRegistryMetrics(reg *registry.Registry, m *metrics.Registry) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Refresh(reg.Stats())
	}
}

// Start brings every listener up (spec §4.7 ServerManager.start). Idempotent.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.manager.Start(); err != nil {
		return fmt.Errorf("runtime: starting server manager: %w", err)
	}
	r.started = true
	slog.Info("runtime: node started", "node", r.node)
	return nil
}

// Stop tears the node down: listeners, dispatcher, registry sweep, and any
// optional cluster connections. Idempotent.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}

	var firstErr error
	if err := r.manager.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.game.Close()
	r.dispatcher.Close()
	r.registry.Close()
	if r.presence != nil {
		_ = r.presence.Close()
	}
	if r.mirror != nil {
		_ = r.mirror.Close()
	}

	r.started = false
	slog.Info("runtime: node stopped", "node", r.node)
	return firstErr
}

// Dispatcher exposes the event dispatcher for host applications that wire
// their own business handlers (spec §1 Non-goals keep that logic outside
// this module).
func (r *Runtime) Dispatcher() *dispatch.Dispatcher { return r.dispatcher }

// Registry exposes the session registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Game exposes the default game container.
func (r *Runtime) Game() *game.Game { return r.game }
