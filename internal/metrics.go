package internal

import (
	"context"
	"time"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"github.com/prometheus/client_golang/prometheus"
)

// Batch status label values
const (
	batchStatusOK       = "ok"
	batchStatusPartial  = "partial"
	batchStatusRejected = "rejected"
	batchStatusAborted  = "aborted"
)

// DispatchMetrics records Prometheus metrics for every batch dispatch.
type DispatchMetrics struct {
	batches  *prometheus.CounterVec   // batches by operation, mode and status
	elements *prometheus.CounterVec   // elements by operation and outcome
	duration *prometheus.HistogramVec // dispatch latency by operation
}

// NewDispatchMetrics creates and registers dispatch metrics. A nil registerer
// disables metrics and returns nil.
func NewDispatchMetrics(reg prometheus.Registerer, namespace string) (*DispatchMetrics, error) {
	if reg == nil {
		return nil, nil
	}
	if namespace == "" {
		namespace = "assetio"
	}

	m := &DispatchMetrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Total batch dispatches by operation, error policy and status",
		}, []string{"operation", "mode", "status"}),

		elements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "elements_total",
			Help:      "Total batch elements by operation and outcome",
		}, []string{"operation", "outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent dispatching a batch to the manager plugin",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{m.batches, m.elements, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *DispatchMetrics) Rejected(operation string, mode dispatch.Mode, _ error) {
	m.batches.WithLabelValues(operation, mode.String(), batchStatusRejected).Inc()
}

func (m *DispatchMetrics) Started(ctx context.Context, operation string, mode dispatch.Mode, _ int) (context.Context, dispatch.Observation) {
	return ctx, &metricsObservation{metrics: m, operation: operation, mode: mode, start: time.Now()}
}

type metricsObservation struct {
	metrics   *DispatchMetrics
	operation string
	mode      dispatch.Mode
	start     time.Time
}

func (o *metricsObservation) ElementFailed(*assetio.BatchElementError) {}

func (o *metricsObservation) Finished(succeeded, failed int, err error) {
	m := o.metrics
	m.duration.WithLabelValues(o.operation).Observe(time.Since(o.start).Seconds())
	m.elements.WithLabelValues(o.operation, "success").Add(float64(succeeded))
	m.elements.WithLabelValues(o.operation, "failure").Add(float64(failed))

	status := batchStatusOK
	switch {
	case err != nil:
		status = batchStatusAborted
	case failed > 0:
		status = batchStatusPartial
	}
	m.batches.WithLabelValues(o.operation, o.mode.String(), status).Inc()
}
