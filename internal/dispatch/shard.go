package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zealnet/server/internal/event"
)

// Idle backoff ladder for a shard with nothing queued (spec §4.2 "spin ->
// yield -> short park, capped").
var idleSteps = []time.Duration{0, 0, time.Microsecond * 50, time.Millisecond, time.Millisecond}

type shard struct {
	id       int
	queue    chan event.Event
	control  chan func()
	stop     chan struct{}
	done     chan struct{}
	batch    int
	metrics  Metrics

	handlers    map[event.Type][]Handler
	anyHandlers []Handler
}

func newShard(id, queueCap, batch int, m Metrics) *shard {
	return &shard{
		id:       id,
		queue:    make(chan event.Event, queueCap),
		control:  make(chan func(), 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		batch:    batch,
		metrics:  m,
		handlers: make(map[event.Type][]Handler),
	}
}

// run is the shard's single-threaded execution context (spec §4.2, §5
// "hybrid scheduling model... S independent single-threaded shards").
func (s *shard) run(ctx context.Context) {
	defer close(s.done)
	idle := 0

	for {
		select {
		case <-s.stop:
			return
		case fn := <-s.control:
			fn()
			idle = 0
			continue
		case e := <-s.queue:
			s.dispatch(ctx, e)
			s.drainBatch(ctx)
			idle = 0
			continue
		default:
		}

		select {
		case <-s.stop:
			return
		case fn := <-s.control:
			fn()
			idle = 0
		case e := <-s.queue:
			s.dispatch(ctx, e)
			s.drainBatch(ctx)
			idle = 0
		case <-time.After(backoff(idle)):
			if idle < len(idleSteps)-1 {
				idle++
			}
		}
	}
}

func backoff(step int) time.Duration {
	if step >= len(idleSteps) {
		step = len(idleSteps) - 1
	}
	return idleSteps[step]
}

// drainBatch polls up to batch-1 additional queued events without blocking,
// after the one that woke the loop (spec §4.2 "poll up to B events per tick,
// dispatch each, then yield").
func (s *shard) drainBatch(ctx context.Context) {
	for i := 1; i < s.batch; i++ {
		select {
		case e := <-s.queue:
			s.dispatch(ctx, e)
		default:
			return
		}
	}
}

func (s *shard) dispatch(ctx context.Context, e event.Event) {
	if s.metrics != nil {
		s.metrics.EventDispatched(e.Type().String())
		s.metrics.QueueDepth(s.id, len(s.queue))
	}
	for _, h := range s.handlers[e.Type()] {
		s.invoke(ctx, h, e)
	}
	for _, h := range s.anyHandlers {
		s.invoke(ctx, h, e)
	}
}

// invoke calls one handler, recovering a panic into a logged HandlerFault so
// it never interrupts the handlers that follow (spec §4.2, §7 HandlerFault).
func (s *shard) invoke(ctx context.Context, h Handler, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: handler fault",
				"fault_id", uuid.NewString(),
				"shard", s.id, "event_type", e.Type().String(), "panic", r)
		}
	}()
	h.Handle(ctx, e)
}

func (s *shard) addHandler(h Handler) {
	if h.EventType() == event.Any {
		s.anyHandlers = append(s.anyHandlers, h)
		return
	}
	s.handlers[h.EventType()] = append(s.handlers[h.EventType()], h)
}

func (s *shard) removeHandler(h Handler) bool {
	removed := false
	if h.EventType() == event.Any {
		s.anyHandlers, removed = removeFrom(s.anyHandlers, h)
		return removed
	}
	list, ok := s.handlers[h.EventType()]
	if !ok {
		return false
	}
	s.handlers[h.EventType()], removed = removeFrom(list, h)
	return removed
}

func (s *shard) removeForType(typ event.Type) {
	delete(s.handlers, typ)
}

func (s *shard) removeForSession(sessionID string) bool {
	removed := false
	for typ, list := range s.handlers {
		kept := list[:0:0]
		for _, h := range list {
			if sh, ok := asSessionScoped(h); ok && sh.SessionID() == sessionID {
				removed = true
				continue
			}
			kept = append(kept, h)
		}
		s.handlers[typ] = kept
	}
	kept := s.anyHandlers[:0:0]
	for _, h := range s.anyHandlers {
		if sh, ok := asSessionScoped(h); ok && sh.SessionID() == sessionID {
			removed = true
			continue
		}
		kept = append(kept, h)
	}
	s.anyHandlers = kept
	return removed
}

func removeFrom(list []Handler, target Handler) ([]Handler, bool) {
	for i, h := range list {
		if h == target {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}
