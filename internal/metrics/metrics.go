// Package metrics exports batch lifecycle events and ring state to Prometheus.
package metrics

import (
	"time"

	"batchd/internal/batching"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "batchd"

var (
	batchesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "closed_total",
			Help:      "Batches closed for dispatch, by close reason",
		},
		[]string{"ring", "reason"},
	)

	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "executed_total",
			Help:      "Batches returned by the executor, by outcome and close reason",
		},
		[]string{"ring", "outcome", "reason"},
	)

	batchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "size",
			Help:      "Number of slots per dispatched batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"ring"},
	)

	executorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "duration_seconds",
			Help:      "Duration of executor calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"ring", "outcome"},
	)

	recycledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "recycled_total",
			Help:      "Batches reset into a new generation",
		},
		[]string{"ring"},
	)

	requestsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "rejected_total",
			Help:      "Submissions refused by admission control",
		},
		[]string{"ring"},
	)

	requestsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "cancelled_total",
			Help:      "Submissions cancelled by the caller before admission",
		},
		[]string{"ring"},
	)

	resultsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "dropped_results_total",
			Help:      "Results discarded because the caller had stopped waiting",
		},
		[]string{"ring"},
	)
)

func init() {
	prometheus.MustRegister(
		batchesClosed, batchesTotal, batchSize, executorDuration,
		recycledTotal, requestsRejected, requestsCancelled, resultsDropped,
	)
}

// Publisher is a batching.EventPublisher that updates the collectors above.
// Next, when set, also receives every event.
type Publisher struct {
	Next batching.EventPublisher
}

// Publish implements batching.EventPublisher.
func (p Publisher) Publish(e batching.Event) {
	switch e.Name {
	case batching.EventBatchClosed:
		batchesClosed.WithLabelValues(e.Ring, str(e.Fields["reason"])).Inc()
	case batching.EventBatchDispatched, batching.EventBatchFailed:
		outcome := "ok"
		if e.Name == batching.EventBatchFailed {
			outcome = "error"
		}
		batchesTotal.WithLabelValues(e.Ring, outcome, str(e.Fields["reason"])).Inc()
		if n, ok := e.Fields["size"].(int); ok {
			batchSize.WithLabelValues(e.Ring).Observe(float64(n))
		}
		if d, ok := e.Fields["duration"].(time.Duration); ok {
			executorDuration.WithLabelValues(e.Ring, outcome).Observe(d.Seconds())
		}
		if n, ok := e.Fields["dropped"].(int); ok && n > 0 {
			resultsDropped.WithLabelValues(e.Ring).Add(float64(n))
		}
	case batching.EventBatchRecycled:
		recycledTotal.WithLabelValues(e.Ring).Inc()
	case batching.EventRequestRejected:
		requestsRejected.WithLabelValues(e.Ring).Inc()
	case batching.EventRequestCancelled:
		requestsCancelled.WithLabelValues(e.Ring).Inc()
	}
	if p.Next != nil {
		p.Next.Publish(e)
	}
}

func str(v any) string {
	s, _ := v.(string)
	if s == "" {
		return "unspecified"
	}
	return s
}
