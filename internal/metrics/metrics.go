// Package metrics provides the prometheus-backed implementation of
// dispatch.Metrics plus a handful of registry/listener gauges (SPEC_FULL.md
// domain-stack supplement). Registration happens once, in internal/runtime.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zealnet/server/internal/registry"
)

// Dispatch implements dispatch.Metrics against a set of prometheus
// collectors.
type Dispatch struct {
	queueDepth  *prometheus.GaugeVec
	dispatched  *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewDispatch builds and registers the dispatcher collectors against reg.
func NewDispatch(reg prometheus.Registerer) *Dispatch {
	d := &Dispatch{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zealnet",
			Subsystem: "dispatch",
			Name:      "shard_queue_depth",
			Help:      "Pending events in a shard's queue.",
		}, []string{"shard"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zealnet",
			Subsystem: "dispatch",
			Name:      "events_dispatched_total",
			Help:      "Events taken off a shard's queue for dispatch.",
		}, []string{"event_type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zealnet",
			Subsystem: "dispatch",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a shard's queue was full.",
		}, []string{"event_type"}),
	}
	reg.MustRegister(d.queueDepth, d.dispatched, d.dropped)
	return d
}

func (d *Dispatch) QueueDepth(shard int, depth int) {
	d.queueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(depth))
}

func (d *Dispatch) EventDispatched(typ string) {
	d.dispatched.WithLabelValues(typ).Inc()
}

func (d *Dispatch) EventDropped(typ string) {
	d.dropped.WithLabelValues(typ).Inc()
}

// Registry reports a point-in-time gauge snapshot of the session registry's
// counters. Unlike Dispatch it is not event-driven — internal/runtime calls
// Refresh periodically, on its own 10-second ticker.
type Registry struct {
	hits      prometheus.Gauge
	misses    prometheus.Gauge
	evictions prometheus.Gauge
	size      prometheus.Gauge
}

// NewRegistry builds and registers the registry gauges against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		hits:      gauge(reg, "registry_hits_total", "Session registry cache hits."),
		misses:    gauge(reg, "registry_misses_total", "Session registry cache misses."),
		evictions: gauge(reg, "registry_evictions_total", "Session registry evictions."),
		size:      gauge(reg, "registry_size", "Current session registry entry count."),
	}
	return r
}

func gauge(reg prometheus.Registerer, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "zealnet", Name: name, Help: help})
	reg.MustRegister(g)
	return g
}

// Refresh updates the gauges from a fresh registry.Stats snapshot.
func (r *Registry) Refresh(stats registry.Stats) {
	r.hits.Set(float64(stats.Hits))
	r.misses.Set(float64(stats.Misses))
	r.evictions.Set(float64(stats.Evictions))
	r.size.Set(float64(stats.Size))
}
