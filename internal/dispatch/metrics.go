package dispatch

// Metrics is the narrow observability hook the dispatcher calls into. The
// default Dispatcher works with a nil Metrics (every call is a no-op);
// internal/metrics provides a prometheus-backed implementation wired in by
// internal/runtime.
type Metrics interface {
	QueueDepth(shard int, depth int)
	EventDispatched(typ string)
	EventDropped(typ string)
}

type noopMetrics struct{}

func (noopMetrics) QueueDepth(int, int)    {}
func (noopMetrics) EventDispatched(string) {}
func (noopMetrics) EventDropped(string)    {}
