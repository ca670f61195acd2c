package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes sync progress counters on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	logsProcessedTotal    *prometheus.CounterVec
	processingErrorsTotal *prometheus.CounterVec
	cursorBlock           *prometheus.GaugeVec
	reconciliationRuns    prometheus.Counter
	balancesUpdated       prometheus.Counter
}

// NewMetrics creates and registers the sync metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	logsProcessedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_sync_logs_processed_total",
			Help: "Total number of logs applied per contract",
		},
		[]string{"contract"},
	)

	processingErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_sync_processing_errors_total",
			Help: "Total number of log processing failures per contract",
		},
		[]string{"contract"},
	)

	cursorBlock := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agora_sync_cursor_block",
			Help: "Last synchronized block per contract cursor",
		},
		[]string{"contract"},
	)

	reconciliationRuns := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_reconciliation_runs_total",
			Help: "Total number of balance reconciliation passes",
		},
	)

	balancesUpdated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_reconciliation_balances_updated_total",
			Help: "Total number of cached balances rewritten by reconciliation",
		},
	)

	registry.MustRegister(logsProcessedTotal)
	registry.MustRegister(processingErrorsTotal)
	registry.MustRegister(cursorBlock)
	registry.MustRegister(reconciliationRuns)
	registry.MustRegister(balancesUpdated)

	return &Metrics{
		registry:              registry,
		logsProcessedTotal:    logsProcessedTotal,
		processingErrorsTotal: processingErrorsTotal,
		cursorBlock:           cursorBlock,
		reconciliationRuns:    reconciliationRuns,
		balancesUpdated:       balancesUpdated,
	}
}

// LogProcessed records one applied log for a contract.
func (m *Metrics) LogProcessed(contract string) {
	m.logsProcessedTotal.WithLabelValues(contract).Inc()
}

// ProcessingError records one failed log for a contract.
func (m *Metrics) ProcessingError(contract string) {
	m.processingErrorsTotal.WithLabelValues(contract).Inc()
}

// SetCursorBlock records the last synchronized block for a contract.
func (m *Metrics) SetCursorBlock(contract string, block uint64) {
	m.cursorBlock.WithLabelValues(contract).Set(float64(block))
}

// ReconciliationRun records one reconciliation pass and how many cached
// balances it rewrote.
func (m *Metrics) ReconciliationRun(updated int) {
	m.reconciliationRuns.Inc()
	m.balancesUpdated.Add(float64(updated))
}

// Handler returns the metrics exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
