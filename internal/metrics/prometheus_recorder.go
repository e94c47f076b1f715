package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "devserver"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	requests          *prom.CounterVec
	notModified       prom.Counter
	transformDuration prom.Histogram
	htmlDuration      prom.Histogram
	gateWaits         *prom.CounterVec
	sourceMaps        *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the pipeline metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests seen by the dev middleware, by classification",
		}, []string{"kind"}),
		notModified: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "not_modified_total",
			Help:      "Module requests answered with 304 from the cached ETag",
		}),
		transformDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_duration_seconds",
			Help:      "Duration of module transform calls",
			Buckets:   prom.DefBuckets,
		}),
		htmlDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "html_transform_duration_seconds",
			Help:      "Duration of index HTML hook chain runs",
			Buckets:   prom.DefBuckets,
		}),
		gateWaits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reload_gate_waits_total",
			Help:      "Requests parked behind a pending reload, by outcome",
		}, []string{"outcome"}),
		sourceMaps: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sourcemap_requests_total",
			Help:      "Source map requests by result",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.requests, pr.notModified, pr.transformDuration, pr.htmlDuration, pr.gateWaits, pr.sourceMaps)
	return pr
}

func (p *PrometheusRecorder) IncRequest(kind string) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncNotModified() {
	if p == nil {
		return
	}
	p.notModified.Inc()
}

func (p *PrometheusRecorder) ObserveTransformDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.transformDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveHTMLTransformDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.htmlDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncReloadGateWait(outcome string) {
	if p == nil {
		return
	}
	p.gateWaits.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncSourceMapRequest(result string) {
	if p == nil {
		return
	}
	p.sourceMaps.WithLabelValues(result).Inc()
}
