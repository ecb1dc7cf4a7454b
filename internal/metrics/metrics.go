// Package metrics описывает метрики Prometheus сервиса выдачи доступа.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Названия метрик.
const (
	MetricGrantOutcomesTotal      = "fulfillment_grant_outcomes_total"
	MetricConfirmationsTotal      = "fulfillment_confirmations_total"
	MetricProviderRequestDuration = "fulfillment_provider_request_duration_seconds"
	MetricGateDecisionsTotal      = "fulfillment_gate_decisions_total"
)

// Metrics набор счетчиков и гистограмм сервиса. Методы безопасны для
// конкурентного вызова и допускают nil-получатель.
type Metrics struct {
	registry        *prometheus.Registry
	grantOutcomes   *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	gateDecisions   *prometheus.CounterVec
}

// New создает метрики в собственном реестре вместе со стандартными
// коллекторами процесса и рантайма Go.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		grantOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGrantOutcomesTotal,
			Help: "Per-item grant outcomes.",
		}, []string{"outcome"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricConfirmationsTotal,
			Help: "Payment confirmations by provider and result.",
		}, []string{"provider", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricProviderRequestDuration,
			Help:    "Latency of payment provider API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGateDecisionsTotal,
			Help: "Checkout precondition decisions.",
		}, []string{"state"}),
	}
	registry.MustRegister(
		m.grantOutcomes,
		m.confirmations,
		m.providerLatency,
		m.gateDecisions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// GrantOutcome учитывает итог выдачи по одной позиции.
func (m *Metrics) GrantOutcome(outcome string) {
	if m == nil {
		return
	}
	m.grantOutcomes.WithLabelValues(outcome).Inc()
}

// Confirmation учитывает результат подтверждения оплаты.
func (m *Metrics) Confirmation(provider, result string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(provider, result).Inc()
}

// ObserveProvider учитывает длительность вызова API провайдера.
func (m *Metrics) ObserveProvider(provider, operation string, started time.Time) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

// GateDecision учитывает решение проверки предусловий.
func (m *Metrics) GateDecision(state string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(state).Inc()
}

// Handler отдает метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
