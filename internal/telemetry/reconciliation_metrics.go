package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconciliationMetrics holds Prometheus metrics for business-level
// observability of the reconciliation engine.
type ReconciliationMetrics struct {
	// Verification path
	VerificationsTotal *prometheus.CounterVec

	// Notification path
	NotificationsTotal *prometheus.CounterVec

	// Tokens superseded via linkedPurchaseToken
	SupersessionsTotal prometheus.Counter

	// Entitlement ledger calls
	EntitlementCallsTotal *prometheus.CounterVec

	// Provider API calls
	ProviderCallsTotal *prometheus.CounterVec

	// Unrecognized notification types and other events we observe but
	// deliberately do not act on
	AnomaliesTotal *prometheus.CounterVec
}

// NewReconciliationMetrics creates and registers reconciliation metrics.
func NewReconciliationMetrics(namespace string) *ReconciliationMetrics {
	if namespace == "" {
		namespace = "heimdall"
	}

	return &ReconciliationMetrics{
		VerificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Purchase verification requests by outcome",
			},
			[]string{"outcome"},
		),
		NotificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Lifecycle notifications by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		SupersessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "supersessions_total",
				Help:      "Tokens expired because a linked successor token was observed",
			},
		),
		EntitlementCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlement_calls_total",
				Help:      "Entitlement ledger calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ProviderCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Google Play API calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		AnomaliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_total",
				Help:      "Events observed but deliberately not acted on",
			},
			[]string{"kind"},
		),
	}
}

// RecordVerification increments the verification counter. Nil-safe so the
// service can run without metrics in tests.
func (m *ReconciliationMetrics) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordNotification increments the notification counter.
func (m *ReconciliationMetrics) RecordNotification(notificationType, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(notificationType, outcome).Inc()
}

// RecordSupersession increments the supersession counter.
func (m *ReconciliationMetrics) RecordSupersession() {
	if m == nil {
		return
	}
	m.SupersessionsTotal.Inc()
}

// RecordEntitlementCall increments the entitlement call counter.
func (m *ReconciliationMetrics) RecordEntitlementCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.EntitlementCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordProviderCall increments the provider call counter.
func (m *ReconciliationMetrics) RecordProviderCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordAnomaly increments the anomaly counter.
func (m *ReconciliationMetrics) RecordAnomaly(kind string) {
	if m == nil {
		return
	}
	m.AnomaliesTotal.WithLabelValues(kind).Inc()
}
