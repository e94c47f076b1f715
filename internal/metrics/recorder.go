package metrics

import "time"

// Outcome labels for reload gate waits.
const (
	GateResolved = "resolved"
	GateTimeout  = "timeout"
	GateCanceled = "canceled"
)

// Result labels for source map requests.
const (
	SourceMapServed = "served"
	SourceMapMissed = "missed"
)

// Recorder defines observability hooks for the request pipeline. Implementations
// may forward to Prometheus, OpenTelemetry, etc. NoopRecorder is the default so
// components never need nil checks.
type Recorder interface {
	IncRequest(kind string)
	IncNotModified()
	ObserveTransformDuration(d time.Duration)
	ObserveHTMLTransformDuration(d time.Duration)
	IncReloadGateWait(outcome string)
	IncSourceMapRequest(result string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncRequest(string)                          {}
func (NoopRecorder) IncNotModified()                            {}
func (NoopRecorder) ObserveTransformDuration(time.Duration)     {}
func (NoopRecorder) ObserveHTMLTransformDuration(time.Duration) {}
func (NoopRecorder) IncReloadGateWait(string)                   {}
func (NoopRecorder) IncSourceMapRequest(string)                 {}
