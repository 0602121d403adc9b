package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// LedgerMetrics tracks ledger operations. A nil *LedgerMetrics records nothing.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	invoices   *prometheus.GaugeVec
	volume     prometheus.Counter
	returns    prometheus.Counter
}

// NewLedgerMetrics creates the ledger collectors and registers them with reg
func NewLedgerMetrics(reg prometheus.Registerer) (*LedgerMetrics, error) {
	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "operations",
			Name:      "total",
			Help:      "Count of ledger operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger",
			Subsystem: "operations",
			Name:      "duration_seconds",
			Help:      "Latency of ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		invoices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ledger",
			Subsystem: "invoices",
			Name:      "by_status",
			Help:      "Invoices per lifecycle status as of the last statistics refresh.",
		}, []string{"status"}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "investments",
			Name:      "principal_total",
			Help:      "Principal committed through successful investments.",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "settlements",
			Name:      "interest_total",
			Help:      "Interest distributed through settlements.",
		}),
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.invoices, err = register(reg, m.invoices); err != nil {
		return nil, err
	}
	if m.volume, err = register(reg, m.volume); err != nil {
		return nil, err
	}
	if m.returns, err = register(reg, m.returns); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector that is already registered
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveOperation records the outcome and latency of one operation
func (m *LedgerMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddPrincipal adds committed principal
func (m *LedgerMetrics) AddPrincipal(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.volume.Add(amount)
}

// AddInterest adds distributed interest
func (m *LedgerMetrics) AddInterest(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.returns.Add(amount)
}

// SetInvoiceCounts publishes the per-status invoice counts
func (m *LedgerMetrics) SetInvoiceCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.invoices.WithLabelValues(status).Set(float64(n))
	}
}
