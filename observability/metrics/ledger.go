package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records ledger operation outcomes and solvency signals.
type LedgerMetrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	liquidations  *prometheus.CounterVec
	reentrant     prometheus.Counter
	eventsEmitted *prometheus.CounterVec
	marketDebt    *prometheus.GaugeVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily registered ledger metrics.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synthledger",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by name and outcome kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "synthledger",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency of ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synthledger",
				Subsystem: "ledger",
				Name:      "liquidations_total",
				Help:      "Successful liquidations by kind (position or vault).",
			}, []string{"kind"}),
			reentrant: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "synthledger",
				Subsystem: "ledger",
				Name:      "reentrant_calls_total",
				Help:      "Calls rejected because they re-entered the ledger from a collaborator.",
			}),
			eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "synthledger",
				Subsystem: "ledger",
				Name:      "events_emitted_total",
				Help:      "Committed ledger events by type.",
			}, []string{"type"}),
			marketDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "synthledger",
				Subsystem: "ledger",
				Name:      "market_reported_debt",
				Help:      "Last debt reported by each market, in whole USD units.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.liquidations,
			ledgerRegistry.reentrant,
			ledgerRegistry.eventsEmitted,
			ledgerRegistry.marketDebt,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records the outcome and latency of a ledger call. An empty
// outcome means success.
func (m *LedgerMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if strings.TrimSpace(outcome) == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *LedgerMetrics) IncLiquidation(kind string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(kind).Inc()
}

func (m *LedgerMetrics) IncReentrant() {
	if m == nil {
		return
	}
	m.reentrant.Inc()
}

func (m *LedgerMetrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

func (m *LedgerMetrics) SetMarketDebt(market string, debt float64) {
	if m == nil {
		return
	}
	m.marketDebt.WithLabelValues(market).Set(debt)
}
