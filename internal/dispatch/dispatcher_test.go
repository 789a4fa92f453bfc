package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/dispatch"
	"github.com/zealnet/server/internal/event"
)

type countingHandler struct {
	typ   event.Type
	count atomic.Int32
	done  chan struct{}
}

func newCountingHandler(typ event.Type) *countingHandler {
	return &countingHandler{typ: typ, done: make(chan struct{}, 1)}
}

func (h *countingHandler) EventType() event.Type { return h.typ }

func (h *countingHandler) Handle(_ context.Context, _ event.Event) {
	h.count.Add(1)
	select {
	case h.done <- struct{}{}:
	default:
	}
}

func (h *countingHandler) waitFor(t *testing.T, n int32, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if h.count.Load() >= n {
			return
		}
		select {
		case <-h.done:
		case <-deadline:
			t.Fatalf("timed out waiting for handler count >= %d, got %d", n, h.count.Load())
		}
	}
}

type sessionHandler struct {
	*countingHandler
	sessionID string
}

func (h *sessionHandler) SessionID() string { return h.sessionID }

func TestDispatcher_FireEvent_FansOutByType(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 4})
	defer d.Close()

	h := newCountingHandler(event.Start)
	d.AddHandler(h)
	time.Sleep(10 * time.Millisecond) // let AddHandler's control message land on every shard

	d.FireEvent(event.New(event.Start, nil))
	h.waitFor(t, 1, time.Second)
}

func TestDispatcher_SessionScoped_RoutesToOneShard(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 8})
	defer d.Close()

	h := &sessionHandler{countingHandler: newCountingHandler(event.GameEnter), sessionID: "sess-1"}
	d.AddHandler(h)

	d.FireEvent(event.NewForSession(event.GameEnter, nil, "sess-1"))
	h.waitFor(t, 1, time.Second)

	// an event for sess-1 must not reach a session-scoped handler
	// registered for a different session (sess-2)
	other := &sessionHandler{countingHandler: newCountingHandler(event.GameEnter), sessionID: "sess-2"}
	d.AddHandler(other)
	d.FireEvent(event.NewForSession(event.GameEnter, nil, "sess-1"))
	h.waitFor(t, 2, time.Second)
	require.Zero(t, other.count.Load())
}

func TestDispatcher_ShardFor_IsDeterministic(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 16})
	defer d.Close()

	a := d.ShardFor("player-123")
	b := d.ShardFor("player-123")
	require.Equal(t, a, b)
	require.GreaterOrEqual(t, a, 0)
	require.Less(t, a, d.ShardCount())
}

func TestDispatcher_RemoveHandlersForSession(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 4})
	defer d.Close()

	h := &sessionHandler{countingHandler: newCountingHandler(event.GameEnter), sessionID: "sess-9"}
	d.AddHandler(h)

	removed := d.RemoveHandlersForSession("sess-9")
	require.True(t, removed)

	d.FireEvent(event.NewForSession(event.GameEnter, nil, "sess-9"))
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, h.count.Load())
}

func TestDispatcher_HandlerPanic_DoesNotStopOtherHandlers(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	panicking := newCountingHandler(event.Stop)
	d.AddHandler(panicking)
	d.RemoveHandler(panicking)

	var calledPanic, calledOK atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	d.AddHandler(handlerFunc{typ: event.Stop, fn: func(context.Context, event.Event) {
		calledPanic.Store(true)
		panic("boom")
	}})
	d.AddHandler(handlerFunc{typ: event.Stop, fn: func(context.Context, event.Event) {
		calledOK.Store(true)
		wg.Done()
	}})

	d.FireEvent(event.New(event.Stop, nil))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran after first handler panicked")
	}

	require.True(t, calledPanic.Load())
	require.True(t, calledOK.Load())
}

type handlerFunc struct {
	typ event.Type
	fn  func(context.Context, event.Event)
}

func (h handlerFunc) EventType() event.Type                      { return h.typ }
func (h handlerFunc) Handle(ctx context.Context, e event.Event)  { h.fn(ctx, e) }

func TestDispatcher_Close_IsIdempotentAndStopsDispatch(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 2})
	d.Close()
	d.Close() // must not panic or block

	h := newCountingHandler(event.Start)
	d.AddHandler(h)
	d.FireEvent(event.New(event.Start, nil))
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, h.count.Load())
}

func TestDispatcher_QueueFull_DropsWithoutBlocking(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1, QueueSize: 1, BatchSize: 1})
	defer d.Close()

	// a slow handler keeps the single shard busy long enough to fill its
	// one-slot queue, proving FireEvent never blocks the caller.
	block := make(chan struct{})
	d.AddHandler(handlerFunc{typ: event.Start, fn: func(context.Context, event.Event) {
		<-block
	}})

	start := time.Now()
	for i := 0; i < 50; i++ {
		d.FireEvent(event.New(event.Start, i))
	}
	require.Less(t, time.Since(start), time.Second)
	close(block)
}
