// Package metrics records request pipeline measurements.
//
// Components depend on the Recorder interface. NoopRecorder is the default and
// records nothing; PrometheusRecorder exports counters and histograms under the
// "devserver" namespace when metrics.enabled is set:
//
//	reg := prometheus.NewRegistry()
//	deps := httpserver.Deps{
//	    Recorder:       metrics.NewPrometheusRecorder(reg),
//	    MetricsHandler: metrics.HTTPHandler(reg),
//	}
//
// Request kinds, 304 answers, transform latencies, reload gate outcomes and
// source map lookups are recorded.
package metrics
