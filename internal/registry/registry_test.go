package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/dispatch"
	"github.com/zealnet/server/internal/registry"
	"github.com/zealnet/server/internal/session"
)

func newPlayerSession(d *dispatch.Dispatcher, id string) *session.PlayerSession {
	base := session.New(id, d)
	base.SetStatus(session.Connecting)
	return session.NewPlayerSession(base)
}

func TestRegistry_PutAndGet(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	r := registry.New(registry.Config{SweepPeriod: -1})
	defer r.Close()

	creds := registry.Credentials{RandomKey: "key-1"}
	ps := newPlayerSession(d, "sess-1")
	r.Put(creds, ps)

	got, ok := r.Get(creds)
	require.True(t, ok)
	require.Same(t, ps, got)

	_, ok = r.Get(registry.Credentials{RandomKey: "missing"})
	require.False(t, ok)

	stats := r.Stats()
	require.EqualValues(t, 1, stats.Hits)
	require.EqualValues(t, 1, stats.Misses)
	require.EqualValues(t, 1, stats.Size)
}

func TestRegistry_Put_FiresInsertListener(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	var inserted []string
	r := registry.New(registry.Config{
		SweepPeriod: -1,
		OnInsert:    func(creds registry.Credentials) { inserted = append(inserted, creds.RandomKey) },
	})
	defer r.Close()

	r.Put(registry.Credentials{RandomKey: "key-insert"}, newPlayerSession(d, "sess-insert"))
	require.Equal(t, []string{"key-insert"}, inserted)
}

func TestRegistry_Replace_FiresInsertListener(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	var inserted []string
	r := registry.New(registry.Config{
		SweepPeriod: -1,
		OnInsert:    func(creds registry.Credentials) { inserted = append(inserted, creds.RandomKey) },
	})
	defer r.Close()

	creds := registry.Credentials{RandomKey: "key-replace"}
	r.Replace(creds, newPlayerSession(d, "sess-a"))
	r.Replace(creds, newPlayerSession(d, "sess-b"))
	require.Equal(t, []string{"key-replace", "key-replace"}, inserted)
}

func TestRegistry_Replace_ClosesOldSessionAndInstallsNew(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	r := registry.New(registry.Config{SweepPeriod: -1})
	defer r.Close()

	creds := registry.Credentials{RandomKey: "key-2"}
	oldSession := newPlayerSession(d, "sess-old")
	oldSession.SetStatus(session.Connected)
	r.Put(creds, oldSession)

	newSession := newPlayerSession(d, "sess-new")
	replaced := r.Replace(creds, newSession)

	require.Same(t, oldSession, replaced)
	require.Equal(t, session.Closed, oldSession.Status())

	got, ok := r.Get(creds)
	require.True(t, ok)
	require.Same(t, newSession, got)
}

func TestRegistry_Replace_FiresRemovalListenerWithReplacedCause(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	var gotCause registry.RemovalCause
	var calls int
	r := registry.New(registry.Config{
		SweepPeriod: -1,
		OnRemoval: func(_ registry.Credentials, _ *session.PlayerSession, cause registry.RemovalCause) {
			calls++
			gotCause = cause
		},
	})
	defer r.Close()

	creds := registry.Credentials{RandomKey: "key-3"}
	r.Put(creds, newPlayerSession(d, "sess-a"))
	r.Replace(creds, newPlayerSession(d, "sess-b"))

	require.Equal(t, 1, calls)
	require.Equal(t, registry.Replaced, gotCause)
}

func TestRegistry_Invalidate_SynchronousCleanupWithExplicitCause(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	var gotCause registry.RemovalCause
	r := registry.New(registry.Config{
		SweepPeriod: -1,
		OnRemoval: func(_ registry.Credentials, _ *session.PlayerSession, cause registry.RemovalCause) {
			gotCause = cause
		},
	})
	defer r.Close()

	creds := registry.Credentials{RandomKey: "key-4"}
	ps := newPlayerSession(d, "sess-c")
	r.Put(creds, ps)

	r.Invalidate(creds)

	// synchronous: by the time Invalidate returns, cleanup already ran
	require.Equal(t, session.Closed, ps.Status())
	require.Equal(t, registry.Explicit, gotCause)

	_, ok := r.Get(creds)
	require.False(t, ok)
}

func TestRegistry_Put_EvictsLeastRecentlyUsedBySize(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	var evictedCause registry.RemovalCause
	var evictedKey string
	r := registry.New(registry.Config{
		SweepPeriod: -1,
		MaxEntries:  2,
		OnRemoval: func(creds registry.Credentials, _ *session.PlayerSession, cause registry.RemovalCause) {
			evictedCause = cause
			evictedKey = creds.Key()
		},
	})
	defer r.Close()

	r.Put(registry.Credentials{RandomKey: "a"}, newPlayerSession(d, "sess-a"))
	r.Put(registry.Credentials{RandomKey: "b"}, newPlayerSession(d, "sess-b"))
	// "a" is now least-recently-used; touch it so "b" becomes the LRU victim
	r.Get(registry.Credentials{RandomKey: "a"})
	r.Put(registry.Credentials{RandomKey: "c"}, newPlayerSession(d, "sess-c"))

	require.Equal(t, registry.Size, evictedCause)
	require.Equal(t, "b", evictedKey)

	_, ok := r.Get(registry.Credentials{RandomKey: "b"})
	require.False(t, ok)
	_, ok = r.Get(registry.Credentials{RandomKey: "a"})
	require.True(t, ok)
}

func TestRegistry_Sweep_ExpiresIdleEntries(t *testing.T) {
	d := dispatch.New(dispatch.Config{Shards: 1})
	defer d.Close()

	done := make(chan registry.RemovalCause, 1)
	r := registry.New(registry.Config{
		IdleTTL:     time.Millisecond,
		AbsoluteTTL: time.Hour,
		SweepPeriod: 5 * time.Millisecond,
		OnRemoval: func(_ registry.Credentials, _ *session.PlayerSession, cause registry.RemovalCause) {
			done <- cause
		},
	})
	defer r.Close()

	r.Put(registry.Credentials{RandomKey: "idle-1"}, newPlayerSession(d, "sess-idle"))

	select {
	case cause := <-done:
		require.Equal(t, registry.Expired, cause)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never expired the idle entry")
	}
}

func TestRegistry_Stats_HitRate(t *testing.T) {
	stats := registry.Stats{Hits: 3, Misses: 1}
	require.InDelta(t, 0.75, stats.HitRate(), 0.0001)

	require.Zero(t, registry.Stats{}.HitRate())
}

func TestRegistry_Close_IsIdempotent(t *testing.T) {
	r := registry.New(registry.Config{SweepPeriod: time.Millisecond})
	r.Close()
	require.NotPanics(t, r.Close)
}
