package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the request lifecycle.
type Metrics struct {
	TransitionsApplied  *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	BulkItems           *prometheus.CounterVec
}

// New creates and registers all lifecycle metrics.
func New() *Metrics {
	return &Metrics{
		TransitionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_status_transitions_total",
			Help: "Total status transitions applied, labeled by new status.",
		}, []string{"new_status"}),
		TransitionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_status_transitions_rejected_total",
			Help: "Total status transitions rejected by the validator, labeled by reason.",
		}, []string{"reason"}),
		BulkItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_bulk_apply_items_total",
			Help: "Total bulk apply items processed, labeled by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveApplied records one committed transition.
func (m *Metrics) ObserveApplied(newStatus string) {
	m.TransitionsApplied.WithLabelValues(newStatus).Inc()
}

// ObserveRejected records one rejected transition.
func (m *Metrics) ObserveRejected(reason string) {
	m.TransitionsRejected.WithLabelValues(reason).Inc()
}

// ObserveBulkItem records the outcome of one bulk item.
func (m *Metrics) ObserveBulkItem(outcome string) {
	m.BulkItems.WithLabelValues(outcome).Inc()
}
