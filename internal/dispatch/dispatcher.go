// Package dispatch implements the sharded actor-pool event dispatcher (spec
// §4.2): S single-threaded shards, each with a bounded MPSC queue and its
// own handler index, routing by event type and session-id hash.
package dispatch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zealnet/server/internal/event"
)

const (
	defaultQueueCapacity = 32768
	defaultBatchSize     = 256
	closeDrainTimeout    = 5 * time.Second
)

// Config tunes shard count, queue depth, and batch size. Zero values take
// the spec-mandated defaults.
type Config struct {
	Shards     int
	QueueSize  int
	BatchSize  int
	Metrics    Metrics
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = max(1, runtime.NumCPU()/2)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return c
}

// Dispatcher is the sharded actor pool. Publishing is non-blocking and may
// drop on a full shard queue (spec §4.2); there are no retries.
type Dispatcher struct {
	cfg    Config
	shards []*shard
	closed atomic.Bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	dropLimiter *rate.Limiter
}

// New creates and starts a Dispatcher with cfg (zero-valued fields take spec
// defaults: shards = max(1, NumCPU/2), queue = 32768, batch = 256).
func New(cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		cfg:         cfg,
		shards:      make([]*shard, cfg.Shards),
		ctx:         ctx,
		cancel:      cancel,
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for i := range d.shards {
		d.shards[i] = newShard(i, cfg.QueueSize, cfg.BatchSize, cfg.Metrics)
	}
	d.wg.Add(len(d.shards))
	for _, sh := range d.shards {
		sh := sh
		go func() {
			defer d.wg.Done()
			sh.run(ctx)
		}()
	}
	return d
}

// ShardCount returns the number of shards.
func (d *Dispatcher) ShardCount() int { return len(d.shards) }

// ShardFor exposes the routing function so callers (e.g. the session
// registry) can pre-compute a session's shard for affinity checks.
func (d *Dispatcher) ShardFor(sessionID string) int {
	return shardFor(sessionID, len(d.shards))
}

// FireEvent publishes e. A session-bound event (built with NewForSession)
// goes to exactly one shard by session hash; a type-targeted event with no
// session context fans out to every shard so any-type handlers anywhere get
// a chance (spec §4.2). Enqueue never blocks.
func (d *Dispatcher) FireEvent(e event.Event) {
	if d.closed.Load() {
		slog.Debug("dispatch: fireEvent after close, dropped", "event_type", e.Type().String())
		return
	}

	if id, ok := e.Session().ID(); ok {
		d.enqueue(d.shards[shardFor(id, len(d.shards))], e)
		return
	}
	for _, sh := range d.shards {
		d.enqueue(sh, e)
	}
}

func (d *Dispatcher) enqueue(sh *shard, e event.Event) {
	select {
	case sh.queue <- e:
	default:
		d.cfg.Metrics.EventDropped(e.Type().String())
		if d.dropLimiter.Allow() {
			slog.Warn("dispatch: shard queue full, event dropped",
				"shard", sh.id, "event_type", e.Type().String())
		}
	}
}

// AddHandler registers h per spec §4.2:
//   - EventType()==Any installs on every shard's anyHandlers.
//   - a SessionScoped handler installs on exactly one shard, by session hash.
//   - otherwise installs on every shard under key EventType().
func (d *Dispatcher) AddHandler(h Handler) {
	if sh, ok := asSessionScoped(h); ok {
		target := d.shards[shardFor(sh.SessionID(), len(d.shards))]
		d.control(target, func() { target.addHandler(h) })
		return
	}
	for _, sh := range d.shards {
		sh := sh
		d.control(sh, func() { sh.addHandler(h) })
	}
}

// RemoveHandler removes h from whichever shard(s) hold it.
func (d *Dispatcher) RemoveHandler(h Handler) {
	for _, sh := range d.shards {
		sh := sh
		d.control(sh, func() { sh.removeHandler(h) })
	}
}

// RemoveHandlersForEvent removes every handler registered under typ, across
// all shards.
func (d *Dispatcher) RemoveHandlersForEvent(typ event.Type) {
	for _, sh := range d.shards {
		sh := sh
		d.control(sh, func() { sh.removeForType(typ) })
	}
}

// RemoveHandlersForSession removes every SessionScoped handler registered
// for sessionID and reports whether at least one registration matched.
func (d *Dispatcher) RemoveHandlersForSession(sessionID string) bool {
	target := d.shards[shardFor(sessionID, len(d.shards))]
	var removed bool
	d.controlSync(target, func() { removed = target.removeForSession(sessionID) })
	return removed
}

// control enqueues fn as a control event on sh, executed by sh's own
// goroutine (spec §5 "registrations from foreign threads are enqueued as
// control events"). It does not wait for fn to run.
func (d *Dispatcher) control(sh *shard, fn func()) {
	if d.closed.Load() {
		return
	}
	select {
	case sh.control <- fn:
	case <-time.After(closeDrainTimeout):
		slog.Warn("dispatch: control channel saturated, registration dropped", "shard", sh.id)
	}
}

// controlSync runs fn on sh's goroutine and blocks until it completes.
func (d *Dispatcher) controlSync(sh *shard, fn func()) {
	done := make(chan struct{})
	d.control(sh, func() {
		fn()
		close(done)
	})
	<-done
}

// Close marks the dispatcher closed (idempotent). After Close, FireEvent is
// a no-op; shards are signaled to stop and given closeDrainTimeout to
// quiesce before their queues are abandoned.
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	for _, sh := range d.shards {
		close(sh.stop)
	}
	d.cancel()

	waited := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(closeDrainTimeout):
		slog.Warn("dispatch: shards did not quiesce within timeout, forcing shutdown")
	}
}
