package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics counts contention, pricing and delivery side channels of
// the offer, order and payment engines.
type MarketplaceMetrics struct {
	lockConflicts       *prometheus.CounterVec
	commissionFallbacks prometheus.Counter
	webhookEvents       *prometheus.CounterVec
	emitFailures        *prometheus.CounterVec
	transitions         *prometheus.CounterVec
}

// NewMarketplaceMetrics registers the marketplace metrics on reg. A nil
// registerer yields a no-op recorder.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	m := &MarketplaceMetrics{
		lockConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_lock_conflicts_total",
			Help: "Requests rejected because a row was held by a concurrent decision.",
		}, []string{"resource"}),
		commissionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_commission_fallback_total",
			Help: "Commission calculations that matched no rule and used the fallback rate.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_webhook_events_total",
			Help: "Payment provider callbacks by outcome.",
		}, []string{"provider", "outcome"}),
		emitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_event_emit_failures_total",
			Help: "Domain events that failed to reach the outbox or the broker.",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_state_transitions_total",
			Help: "Committed state transitions by entity and target status.",
		}, []string{"entity", "status"}),
	}
	reg.MustRegister(m.lockConflicts, m.commissionFallbacks, m.webhookEvents, m.emitFailures, m.transitions)
	return m
}

func (m *MarketplaceMetrics) IncLockConflict(resource string) {
	if m == nil || m.lockConflicts == nil {
		return
	}
	m.lockConflicts.WithLabelValues(normalizeLabel(resource)).Inc()
}

func (m *MarketplaceMetrics) IncCommissionFallback() {
	if m == nil || m.commissionFallbacks == nil {
		return
	}
	m.commissionFallbacks.Inc()
}

func (m *MarketplaceMetrics) IncWebhookEvent(provider, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *MarketplaceMetrics) IncEmitFailure(event string) {
	if m == nil || m.emitFailures == nil {
		return
	}
	m.emitFailures.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *MarketplaceMetrics) IncTransition(entity, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(entity), normalizeLabel(status)).Inc()
}
