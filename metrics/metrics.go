// Package metrics exports Prometheus counters and histograms for ledger
// operations. Collection is driven by ledger lifecycle hooks.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x402-foundation/permitledger"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the collectors on a dedicated registry
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	gas        *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates the collectors under the given namespace
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Mutating ledger operations by outcome.",
		}, []string{"operation", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Failed ledger operations by error code.",
		}, []string{"operation", "code"}),
		gas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gas_used_total",
			Help:      "Gas charged to senders of successful operations.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing ledger operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.operations, m.failures, m.gas, m.duration)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Attach registers after and failure hooks on the ledger
func (m *Metrics) Attach(ledger *permitledger.Ledger) {
	ledger.
		OnAfterPermit(func(ctx permitledger.PermitResultContext) error {
			m.observeSuccess(ctx.Receipt, ctx.Duration.Seconds())
			return nil
		}).
		OnPermitFailure(func(ctx permitledger.PermitFailureContext) error {
			m.observeFailure(permitledger.OperationPermit, ctx.Error, ctx.Duration.Seconds())
			return nil
		}).
		OnAfterTransfer(func(ctx permitledger.TransferResultContext) error {
			m.observeSuccess(ctx.Receipt, ctx.Duration.Seconds())
			return nil
		}).
		OnTransferFailure(func(ctx permitledger.TransferFailureContext) error {
			m.observeFailure(ctx.Operation, ctx.Error, ctx.Duration.Seconds())
			return nil
		})
}

func (m *Metrics) observeSuccess(receipt *permitledger.Receipt, seconds float64) {
	op := string(receipt.Operation)
	m.operations.WithLabelValues(op, ResultSuccess).Inc()
	m.gas.WithLabelValues(op).Add(float64(receipt.GasUsed))
	m.duration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) observeFailure(op permitledger.Operation, err error, seconds float64) {
	m.operations.WithLabelValues(string(op), ResultFailure).Inc()
	m.failures.WithLabelValues(string(op), ErrorCode(err)).Inc()
	m.duration.WithLabelValues(string(op)).Observe(seconds)
}

// ErrorCode extracts the ledger error code, or "internal" for other errors
func ErrorCode(err error) string {
	var ledgerErr *permitledger.LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code
	}
	return "internal"
}
