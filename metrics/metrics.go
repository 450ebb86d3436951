// Package metrics is the metrics-sink port the core consumes: named counters and
// latency histograms, passed explicitly rather than bound to a process-global
// registry. Production wiring binds it to prometheus; tests use NoopRecorder.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                     {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
func (NoopRecorder) SetGauge(string, float64, map[string]string)             {}
