package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zealnet/server/internal/registry"
)

// HTTPListener exposes operational endpoints alongside the game protocols:
// health, session-registry statistics, and Prometheus metrics (SPEC_FULL.md
// domain-stack supplement; the game-protocol listeners carry the actual
// client traffic).
type HTTPListener struct {
	addr     string
	registry *registry.Registry
	server   *http.Server
}

// NewHTTPListener builds the listener's gin engine. CORS is permissive by
// default since these are operational endpoints, not game traffic. gatherer
// is the Prometheus registry the dispatcher/registry collectors were
// actually registered into — a nil gatherer falls back to the global
// DefaultGatherer, which carries none of this process's own metrics.
func NewHTTPListener(addr string, reg *registry.Registry, gatherer prometheus.Gatherer) *HTTPListener {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet},
	}))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	engine.GET("/registry/stats", func(c *gin.Context) {
		stats := reg.Stats()
		c.JSON(http.StatusOK, gin.H{
			"hits":       stats.Hits,
			"misses":     stats.Misses,
			"evictions":  stats.Evictions,
			"size":       stats.Size,
			"hit_rate":   stats.HitRate(),
		})
	})

	return &HTTPListener{
		addr:     addr,
		registry: reg,
		server:   &http.Server{Addr: addr, Handler: engine},
	}
}

// Start binds and begins serving in the background. It keeps no record of an
// earlier bind: a second call binds addr again and returns that bind's error.
func (l *HTTPListener) Start() error {
	ln, err := listenTCP(l.addr)
	if err != nil {
		return fmt.Errorf("server: binding http listener on %s: %w", l.addr, err)
	}
	go l.server.Serve(ln)
	return nil
}

// Stop gracefully shuts the HTTP server down within a bounded quiet period.
func (l *HTTPListener) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}
