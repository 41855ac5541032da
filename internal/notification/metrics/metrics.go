package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the notification subsystem.
type Metrics struct {
	Created             *prometheus.CounterVec
	DedupSuppressed     prometheus.Counter
	Pushed              *prometheus.CounterVec
	SideChannelFailures *prometheus.CounterVec
	OpenConnections     *prometheus.GaugeVec
}

// New creates and registers all notification metrics.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_notifications_created_total",
			Help: "Total notifications persisted, labeled by type.",
		}, []string{"type"}),
		DedupSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_notifications_dedup_suppressed_total",
			Help: "Total notifications suppressed by the duplicate window.",
		}),
		Pushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_push_frames_total",
			Help: "Total push frames delivered, labeled by event.",
		}, []string{"event"}),
		SideChannelFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_side_channel_failures_total",
			Help: "Total best-effort email/SMS delivery failures, labeled by channel.",
		}, []string{"channel"}),
		OpenConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "civicdesk_push_connections_open",
			Help: "Currently open push connections, labeled by recipient type.",
		}, []string{"recipient_type"}),
	}
}

// ObserveCreated records one persisted notification.
func (m *Metrics) ObserveCreated(notifType string) {
	m.Created.WithLabelValues(notifType).Inc()
}

// ObserveDedupSuppressed records one suppressed duplicate.
func (m *Metrics) ObserveDedupSuppressed() {
	m.DedupSuppressed.Inc()
}

// ObservePushed records delivered push frames.
func (m *Metrics) ObservePushed(event string, count int) {
	m.Pushed.WithLabelValues(event).Add(float64(count))
}

// ObserveSideChannelFailure records one failed email/SMS delivery.
func (m *Metrics) ObserveSideChannelFailure(channel string) {
	m.SideChannelFailures.WithLabelValues(channel).Inc()
}

// ObserveConnectionOpened tracks a new live connection.
func (m *Metrics) ObserveConnectionOpened(recipientType string) {
	m.OpenConnections.WithLabelValues(recipientType).Inc()
}

// ObserveConnectionClosed tracks a closed live connection.
func (m *Metrics) ObserveConnectionClosed(recipientType string) {
	m.OpenConnections.WithLabelValues(recipientType).Dec()
}
