package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/time/rate"
)

// Limiter implements the flood-protection accept-time gate the teacher's
// config carries (FloodProtection/FastConnectionLimit/MaxConnectionPerIP)
// but never wires up: a global accept-rate ceiling via ulule/limiter, plus
// a per-IP connection-rate ceiling via golang.org/x/time/rate.
type Limiter struct {
	enabled bool

	global *limiter.Limiter

	mu      sync.Mutex
	perIP   map[string]*rate.Limiter
	ipRate  rate.Limit
	ipBurst int
}

// NewLimiter builds a Limiter from the teacher-shaped config fields.
// connectionsPerSecond backs the global accept gate; perIPPerSecond backs
// the per-source-IP gate.
func NewLimiter(enabled bool, connectionsPerSecond, perIPPerSecond int) *Limiter {
	if !enabled {
		return &Limiter{enabled: false}
	}
	if connectionsPerSecond <= 0 {
		connectionsPerSecond = 15
	}
	if perIPPerSecond <= 0 {
		perIPPerSecond = 5
	}

	rt := limiter.Rate{Period: time.Second, Limit: int64(connectionsPerSecond)}
	store := memory.NewStore()
	return &Limiter{
		enabled: true,
		global:  limiter.New(store, rt),
		perIP:   make(map[string]*rate.Limiter),
		ipRate:  rate.Limit(perIPPerSecond),
		ipBurst: perIPPerSecond,
	}
}

// Allow reports whether a new connection from remoteAddr should be
// accepted. A disabled Limiter always allows.
func (l *Limiter) Allow(remoteAddr string) bool {
	if l == nil || !l.enabled {
		return true
	}

	ctx, err := l.global.Get(context.Background(), "accept")
	if err == nil && ctx.Reached {
		return false
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	l.mu.Lock()
	lim, ok := l.perIP[host]
	if !ok {
		lim = rate.NewLimiter(l.ipRate, l.ipBurst)
		l.perIP[host] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// rateLimitedListener wraps a net.Listener, rejecting connections the
// Limiter denies before handing them to the accept loop.
type rateLimitedListener struct {
	net.Listener
	limiter *Limiter
}

func wrapRateLimited(ln net.Listener, lim *Limiter) net.Listener {
	if lim == nil || !lim.enabled {
		return ln
	}
	return &rateLimitedListener{Listener: ln, limiter: lim}
}

func (l *rateLimitedListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if l.limiter.Allow(conn.RemoteAddr().String()) {
			return conn, nil
		}
		conn.Close()
	}
}
