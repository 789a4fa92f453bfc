// Package registry implements the session registry (spec §4.4): a keyed
// cache of Credentials -> PlayerSession with idle/absolute expiry, an
// approximate-LRU size bound, atomic replace-on-relogin, and a removal hook
// whose cleanup path depends on the removal cause.
package registry

import (
	"container/list"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zealnet/server/internal/event"
	"github.com/zealnet/server/internal/session"
)

// RemovalCause explains why an entry left the registry (spec §3).
type RemovalCause int

const (
	Expired RemovalCause = iota
	Size
	Replaced
	Explicit
)

func (c RemovalCause) String() string {
	switch c {
	case Expired:
		return "EXPIRED"
	case Size:
		return "SIZE"
	case Replaced:
		return "REPLACED"
	case Explicit:
		return "EXPLICIT"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultIdleTTL     = 2 * time.Hour
	DefaultAbsoluteTTL = 24 * time.Hour
	DefaultMaxEntries  = 10000
	DefaultSweepPeriod = 60 * time.Second
)

// RemovalListener is notified on every removal (spec §4.4). For EXPIRED,
// SIZE and EXPLICIT it runs before the session's cleanup is started; for
// REPLACED it runs after Replace has already closed the old session.
type RemovalListener func(creds Credentials, ps *session.PlayerSession, cause RemovalCause)

// InsertListener is notified whenever a new session is installed under
// creds, by Put or Replace (SPEC_FULL.md §12: the session index is mirrored
// cross-node on insert).
type InsertListener func(creds Credentials)

// Config tunes the registry. Zero values take the spec defaults.
type Config struct {
	IdleTTL     time.Duration
	AbsoluteTTL time.Duration
	MaxEntries  int
	SweepPeriod time.Duration // 0 uses DefaultSweepPeriod; negative disables the periodic sweep
	OnRemoval   RemovalListener
	OnInsert    InsertListener
}

func (c Config) withDefaults() Config {
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
	if c.AbsoluteTTL <= 0 {
		c.AbsoluteTTL = DefaultAbsoluteTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	return c
}

type entry struct {
	creds      Credentials
	session    *session.PlayerSession
	insertedAt time.Time
	lastAccess time.Time
	elem       *list.Element
}

// Registry is a keyed cache of live PlayerSessions. All operations are
// atomic with respect to each other; Replace is the one operation that also
// performs connection cleanup as part of its atomic step.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently used

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	stopSweep chan struct{}
	sweepDone chan struct{}
	closed    atomic.Bool
}

// New creates a Registry and, unless cfg.SweepPeriod is negative, starts the
// background maintenance ticker (spec §4.4 "Periodic sweep").
func New(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	r := &Registry{
		cfg:     cfg,
		entries: make(map[string]*entry),
		lru:     list.New(),
	}
	if cfg.SweepPeriod >= 0 {
		period := cfg.SweepPeriod
		if period == 0 {
			period = DefaultSweepPeriod
		}
		r.stopSweep = make(chan struct{})
		r.sweepDone = make(chan struct{})
		go r.sweepLoop(period)
	}
	return r
}

func (r *Registry) sweepLoop(period time.Duration) {
	defer close(r.sweepDone)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopSweep:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep discovers idle/absolute-expired entries even without traffic (spec
// §4.4, §8 scenario 6).
func (r *Registry) sweep() {
	now := time.Now()
	var expired []*entry

	r.mu.Lock()
	for e := r.lru.Back(); e != nil; e = e.Prev() {
		en := e.Value.(*entry)
		if now.Sub(en.lastAccess) > r.cfg.IdleTTL || now.Sub(en.insertedAt) > r.cfg.AbsoluteTTL {
			expired = append(expired, en)
		}
	}
	for _, en := range expired {
		r.removeLocked(en, Expired)
	}
	r.mu.Unlock()

	for _, en := range expired {
		r.dispatchCleanup(en.creds, en.session, Expired)
	}
}

// Get looks up creds, refreshing the idle timer on a hit.
func (r *Registry) Get(creds Credentials) (*session.PlayerSession, bool) {
	r.mu.Lock()
	en, ok := r.entries[creds.Key()]
	if !ok {
		r.mu.Unlock()
		r.misses.Add(1)
		return nil, false
	}
	en.lastAccess = time.Now()
	r.lru.MoveToFront(en.elem)
	ps := en.session
	r.mu.Unlock()

	r.hits.Add(1)
	return ps, true
}

// Put inserts creds -> ps, evicting the least-recently-used entry by cause
// Size if the registry is over its configured maximum.
func (r *Registry) Put(creds Credentials, ps *session.PlayerSession) {
	r.mu.Lock()
	now := time.Now()
	en := &entry{creds: creds, session: ps, insertedAt: now, lastAccess: now}
	en.elem = r.lru.PushFront(en)
	r.entries[creds.Key()] = en

	var evicted *entry
	if len(r.entries) > r.cfg.MaxEntries {
		if back := r.lru.Back(); back != nil {
			evicted = back.Value.(*entry)
			if evicted != en {
				r.removeLocked(evicted, Size)
			} else {
				evicted = nil
			}
		}
	}
	r.mu.Unlock()

	if evicted != nil {
		r.dispatchCleanup(evicted.creds, evicted.session, Size)
	}
	if r.cfg.OnInsert != nil {
		r.cfg.OnInsert(creds)
	}
}

// Replace atomically swaps in newSession under creds, kicking any existing
// sibling session first (spec §4.4, §4.6 step 3). The returned session is
// the one that occupied the slot before this call, or nil.
//
// Per spec: (i) the old session, if CONNECTED, is sent a LOG_OUT event;
// (ii) it is cleaned up synchronously on the caller's goroutine; (iii) only
// then is the new session installed, all under one critical section so a
// concurrent Replace cannot observe a half-finished swap.
func (r *Registry) Replace(creds Credentials, newSession *session.PlayerSession) *session.PlayerSession {
	r.mu.Lock()

	existing, ok := r.entries[creds.Key()]
	var old *session.PlayerSession
	if ok {
		old = existing.session
		if old.Status() == session.Connected {
			old.OnEvent(event.New(event.LogOut, nil))
		}
		if err := old.Close(); err != nil {
			slog.Warn("registry: replace cleanup failed", "error", err)
		}
		r.lru.Remove(existing.elem)
	}

	now := time.Now()
	en := &entry{creds: creds, session: newSession, insertedAt: now, lastAccess: now}
	en.elem = r.lru.PushFront(en)
	r.entries[creds.Key()] = en

	r.mu.Unlock()

	if ok && r.cfg.OnRemoval != nil {
		// REPLACED: cleanup already happened inline above; the listener
		// fires for bookkeeping only and must not close anything again.
		r.cfg.OnRemoval(creds, old, Replaced)
	}
	if r.cfg.OnInsert != nil {
		r.cfg.OnInsert(creds)
	}

	return old
}

// Invalidate explicitly removes creds, synchronously cleaning up the
// session (spec §4.4 cause EXPLICIT).
func (r *Registry) Invalidate(creds Credentials) {
	r.mu.Lock()
	en, ok := r.entries[creds.Key()]
	if ok {
		r.removeLocked(en, Explicit)
	}
	r.mu.Unlock()

	if ok {
		r.dispatchCleanup(en.creds, en.session, Explicit)
	}
}

// removeLocked deletes en from the index structures. Caller holds r.mu.
func (r *Registry) removeLocked(en *entry, cause RemovalCause) {
	delete(r.entries, en.creds.Key())
	r.lru.Remove(en.elem)
	if cause == Size || cause == Expired {
		r.evictions.Add(1)
	}
}

// dispatchCleanup runs the removal listener and performs the cause-specific
// cleanup (spec §4.4 policy table): EXPIRED/SIZE clean up asynchronously so
// the reaper never blocks; EXPLICIT cleans up synchronously; REPLACED is
// handled entirely inside Replace and never reaches this function.
func (r *Registry) dispatchCleanup(creds Credentials, ps *session.PlayerSession, cause RemovalCause) {
	if r.cfg.OnRemoval != nil {
		r.cfg.OnRemoval(creds, ps, cause)
	}

	cleanup := func() {
		if err := ps.Close(); err != nil {
			slog.Warn("registry: cleanup failed", "cause", cause.String(), "error", err)
		}
	}

	switch cause {
	case Explicit:
		cleanup()
	default: // Expired, Size
		go cleanup()
	}
}

// Stats is a point-in-time snapshot of registry statistics (spec §4.4).
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// HitRate returns hits / (hits + misses), or 0 if there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the registry's counters and current size.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	size := len(r.entries)
	r.mu.Unlock()
	return Stats{
		Hits:      r.hits.Load(),
		Misses:    r.misses.Load(),
		Evictions: r.evictions.Load(),
		Size:      size,
	}
}

// Close stops the background sweep, if running. Idempotent. It does not
// close any sessions — callers that want every live session cleaned up
// should Invalidate them explicitly (mirrors Runtime.stop() draining the
// registry without itself being the authority on session lifecycle).
func (r *Registry) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	if r.stopSweep == nil {
		return
	}
	close(r.stopSweep)
	<-r.sweepDone
}
