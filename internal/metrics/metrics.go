// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest groups the pipeline's collectors.
type Ingest struct {
	Heights        prometheus.Counter
	LastHeight     prometheus.Gauge
	Actions        *prometheus.CounterVec
	TaskFailures   *prometheus.CounterVec
	HeightDuration prometheus.Histogram
}

// NewIngest creates the collectors and registers them when reg is non-nil.
func NewIngest(reg prometheus.Registerer) *Ingest {
	m := &Ingest{
		Heights: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ammscope",
			Name:      "heights_processed_total",
			Help:      "Heights fully processed by the ingestion pipeline.",
		}),
		LastHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ammscope",
			Name:      "last_height",
			Help:      "Last fully processed height.",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ammscope",
			Name:      "actions_total",
			Help:      "Extracted AMM actions by kind.",
		}, []string{"kind"}),
		TaskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ammscope",
			Name:      "task_failures_total",
			Help:      "Failed scheduler tasks by stage.",
		}, []string{"stage"}),
		HeightDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ammscope",
			Name:      "height_duration_seconds",
			Help:      "Wall time spent processing one height.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Heights, m.LastHeight, m.Actions, m.TaskFailures, m.HeightDuration)
	}
	return m
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
