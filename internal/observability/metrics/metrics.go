// Package metrics exposes prometheus instrumentation for the reconcile loop.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "viewdeal"

// ReconcileMetrics instruments reconciliation runs.
type ReconcileMetrics struct {
	runsTotal        prometheus.Counter
	runDuration      prometheus.Histogram
	contractsTotal   *prometheus.CounterVec
	anomaliesTotal   prometheus.Counter
	reportedUnits    prometheus.Counter
	revenueMinor     prometheus.Counter
	watermarkRecover prometheus.Counter
}

// Contract outcome labels.
const (
	OutcomeReported    = "reported"
	OutcomeNoop        = "noop"
	OutcomeAnomaly     = "anomaly"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeBillFailed  = "billing_failed"
	OutcomeStoreFailed = "store_failed"
)

var (
	reconcileOnce sync.Once
	reconcileInst *ReconcileMetrics
)

// Reconcile returns the process-wide reconcile metrics.
func Reconcile() *ReconcileMetrics {
	reconcileOnce.Do(func() {
		reconcileInst = &ReconcileMetrics{
			runsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "runs_total",
				Help:      "Number of reconciliation runs started.",
			}),
			runDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "run_duration_seconds",
				Help:      "Duration of reconciliation runs.",
				Buckets:   prometheus.DefBuckets,
			}),
			contractsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "contracts_total",
				Help:      "Contracts processed by outcome.",
			}, []string{"outcome"}),
			anomaliesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "view_count_anomalies_total",
				Help:      "View count regressions clamped to zero delta.",
			}),
			reportedUnits: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "reported_units_total",
				Help:      "Billable units reported to the billing ledger.",
			}),
			revenueMinor: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "revenue_minor_units_total",
				Help:      "Revenue recorded in the internal ledger, minor currency units.",
			}),
			watermarkRecover: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "watermark_recoveries_total",
				Help:      "Watermarks re-derived from the revenue ledger.",
			}),
		}
	})
	return reconcileInst
}

func (m *ReconcileMetrics) IncRun() {
	m.runsTotal.Inc()
}

func (m *ReconcileMetrics) ObserveRunDuration(d time.Duration) {
	m.runDuration.Observe(d.Seconds())
}

func (m *ReconcileMetrics) IncContract(outcome string) {
	m.contractsTotal.WithLabelValues(outcome).Inc()
}

func (m *ReconcileMetrics) IncAnomaly() {
	m.anomaliesTotal.Inc()
}

func (m *ReconcileMetrics) AddReportedUnits(units int64) {
	m.reportedUnits.Add(float64(units))
}

func (m *ReconcileMetrics) AddRevenue(amountMinor int64) {
	m.revenueMinor.Add(float64(amountMinor))
}

func (m *ReconcileMetrics) IncWatermarkRecovery() {
	m.watermarkRecover.Inc()
}
