// Package metrics holds the Prometheus collectors for reconciliation,
// settlement and ledger traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vstep_hub"

// Metrics bundles every collector the service exports.
type Metrics struct {
	Reconciliations   *prometheus.CounterVec
	Submissions       *prometheus.CounterVec
	RewardPayouts     *prometheus.CounterVec
	CatchUpEvents     prometheus.Counter
	Reconnects        prometheus.Counter
	PayoutQueueDepth  prometheus.Gauge
	LedgerCallSeconds *prometheus.HistogramVec
	RequestSeconds    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Approval events handled by the reconciler, by result.",
		}, []string{"result"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Exam submissions settled, by result.",
		}, []string{"result"}),
		RewardPayouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_payouts_total",
			Help:      "Reward transactions, by kind (primary, bonus) and result.",
		}, []string{"kind", "result"}),
		CatchUpEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catch_up_events_total",
			Help:      "Approval events found by catch-up scans.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_reconnects_total",
			Help:      "Times the live approval subscription was re-established.",
		}),
		PayoutQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payout_queue_depth",
			Help:      "Bonus payouts waiting for a worker.",
		}),
		LedgerCallSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_call_duration_seconds",
			Help:      "Ledger RPC latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request layer latency, by action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Reconciliations,
			m.Submissions,
			m.RewardPayouts,
			m.CatchUpEvents,
			m.Reconnects,
			m.PayoutQueueDepth,
			m.LedgerCallSeconds,
			m.RequestSeconds,
		)
	}

	return m
}

func (m *Metrics) Reconciled(result string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(result).Inc()
}

func (m *Metrics) Submitted(result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) Payout(kind, result string) {
	if m == nil {
		return
	}
	m.RewardPayouts.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) CaughtUp(n int) {
	if m == nil {
		return
	}
	m.CatchUpEvents.Add(float64(n))
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.PayoutQueueDepth.Set(float64(n))
}

// ObserveLedger records the latency of one ledger call started at start.
func (m *Metrics) ObserveLedger(method string, start time.Time) {
	if m == nil {
		return
	}
	m.LedgerCallSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// ObserveRequest records the latency of one request layer action.
func (m *Metrics) ObserveRequest(action string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestSeconds.WithLabelValues(action).Observe(time.Since(start).Seconds())
}
