package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder binds Recorder to github.com/prometheus/client_golang,
// exporting counters, latency histograms, and gauges at the process edge.
type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
	gauges    *prometheus.GaugeVec
}

func NewPrometheusRecorder() Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402_facilitator",
			Name:      "events_total",
			Help:      "facilitator event counters",
		},
		[]string{"type", "network", "label"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402_facilitator",
			Name:      "latency_seconds",
			Help:      "facilitator operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	gauges := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "x402_facilitator",
			Name:      "gauge",
			Help:      "facilitator point-in-time values (gas balance, pending tx count)",
		},
		[]string{"name", "network", "label"},
	)

	prometheus.MustRegister(counters, histogram, gauges)

	return &PrometheusRecorder{counters: counters, histogram: histogram, gauges: gauges}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"network": labels["network"],
		"label":   labels["reason"] + labels["valid"] + labels["success"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"network":   labels["network"],
	}).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetGauge(name string, value float64, labels map[string]string) {
	p.gauges.With(prometheus.Labels{
		"name":    name,
		"network": labels["network"],
		"label":   labels["wallet"],
	}).Set(value)
}
