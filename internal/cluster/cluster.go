// Package cluster provides optional cross-node presence and session-index
// mirroring (SPEC_FULL.md §12 supplemented features). Both are best-effort
// and disabled unless explicitly configured: a single-node deployment never
// touches NATS or Redis.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/zealnet/server/internal/registry"
	"github.com/zealnet/server/internal/session"
)

// PresencePublisher announces this node's login/logout events on a shared
// NATS subject so other nodes can track where a player is connected,
// without this node ever needing to know about them directly.
type PresencePublisher struct {
	conn    *nats.Conn
	subject string
	node    string
}

// NewPresencePublisher connects to a NATS server at url. A connection
// failure is returned, not panicked on, since presence is optional — the
// caller decides whether to treat it as fatal.
func NewPresencePublisher(url, subject, node string) (*PresencePublisher, error) {
	conn, err := nats.Connect(url, nats.Name("zealnet-"+node))
	if err != nil {
		return nil, fmt.Errorf("cluster: connecting to nats at %s: %w", url, err)
	}
	return &PresencePublisher{conn: conn, subject: subject, node: node}, nil
}

// AnnounceLogin publishes a presence record for randomKey joining this
// node. Publish errors are logged and swallowed — presence is
// best-effort and must never block or fail a login.
func (p *PresencePublisher) AnnounceLogin(randomKey string) {
	p.publish("login", randomKey)
}

// AnnounceLogout publishes a presence record for randomKey leaving this
// node.
func (p *PresencePublisher) AnnounceLogout(randomKey string) {
	p.publish("logout", randomKey)
}

func (p *PresencePublisher) publish(kind, randomKey string) {
	msg := fmt.Sprintf("%s|%s|%s|%d", kind, p.node, randomKey, time.Now().Unix())
	if err := p.conn.Publish(p.subject, []byte(msg)); err != nil {
		slog.Warn("cluster: presence publish failed", "kind", kind, "error", err)
	}
}

// Close flushes and closes the NATS connection.
func (p *PresencePublisher) Close() error {
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		slog.Warn("cluster: presence flush failed", "error", err)
	}
	p.conn.Close()
	return nil
}

// SessionIndexMirror best-effort-mirrors registry removal events into Redis
// so other nodes (or an external dashboard) can see which node currently
// owns a randomKey, without Redis ever being on the critical path for
// replace()/Get() — spec's Non-goal on persistent storage rules out Redis
// as the registry's backing store, but a side-channel mirror for
// cross-node visibility is a pure addition.
type SessionIndexMirror struct {
	client *redis.Client
	node   string
	ttl    time.Duration
}

// NewSessionIndexMirror builds a mirror against a Redis instance at addr.
func NewSessionIndexMirror(addr, node string) *SessionIndexMirror {
	return &SessionIndexMirror{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		node:   node,
		ttl:    registry.DefaultAbsoluteTTL,
	}
}

// OnRemoval is a registry.RemovalListener: it mirrors REPLACED/EXPLICIT
// removals as deletes and leaves EXPIRED/SIZE entries to fall out on their
// own TTL, avoiding a write on the hot sweep path.
func (m *SessionIndexMirror) OnRemoval(creds registry.Credentials, _ *session.PlayerSession, cause registry.RemovalCause) {
	if cause != registry.Replaced && cause != registry.Explicit {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := m.client.Del(ctx, m.key(creds.Key())).Err(); err != nil {
		slog.Warn("cluster: session index delete failed", "error", err)
	}
}

// OnInsert mirrors a new session's node ownership into Redis with a TTL
// matching the registry's absolute expiry.
func (m *SessionIndexMirror) OnInsert(creds registry.Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := m.client.Set(ctx, m.key(creds.Key()), m.node, m.ttl).Err(); err != nil {
		slog.Warn("cluster: session index set failed", "error", err)
	}
}

func (m *SessionIndexMirror) key(randomKey string) string {
	return "zealnet:session:" + randomKey
}

// Close closes the Redis client.
func (m *SessionIndexMirror) Close() error {
	return m.client.Close()
}
