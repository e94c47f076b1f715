package metrics

import "time"

type testRecorder struct {
	requests  map[string]int
	gateWaits map[string]int
	durations int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{requests: map[string]int{}, gateWaits: map[string]int{}}
}

func (t *testRecorder) IncRequest(kind string)                     { t.requests[kind]++ }
func (t *testRecorder) IncNotModified()                            {}
func (t *testRecorder) ObserveTransformDuration(time.Duration)     { t.durations++ }
func (t *testRecorder) ObserveHTMLTransformDuration(time.Duration) { t.durations++ }
func (t *testRecorder) IncReloadGateWait(outcome string)           { t.gateWaits[outcome]++ }
func (t *testRecorder) IncSourceMapRequest(string)                 {}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = newTestRecorder()
)
