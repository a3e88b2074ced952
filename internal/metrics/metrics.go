// Package metrics registers the Prometheus instruments exposed on
// /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

var documentsIngested = promauto.NewCounter(prometheus.CounterOpts{
	Name: "documents_ingested_total",
	Help: "Documents successfully stored in the vector index",
})

var chunksIngested = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunks_ingested_total",
	Help: "Chunks successfully stored in the vector index",
})

var notifyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "notify_queue_depth",
	Help: "Notifications waiting to be dispatched",
})

// StatusRecorder captures the status code a handler writes so the
// request counter can be labelled with it.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *StatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func ObserveDependency(service string, elapsed time.Duration) {
	dependencyLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

func RecordIngestion(chunkCount int) {
	documentsIngested.Inc()
	chunksIngested.Add(float64(chunkCount))
}

func IncrementNotifyQueue() { notifyQueueDepth.Inc() }
func DecrementNotifyQueue() { notifyQueueDepth.Dec() }
