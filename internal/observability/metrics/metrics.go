package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pv_"

	resultSuccess = "success"
	resultError   = "error"
	resultEmpty   = "empty"
)

var (
	registerOnce sync.Once

	ingestRuns     *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	recordsDecoded *prometheus.CounterVec
	rowsSkipped    *prometheus.CounterVec

	reconstructionRuns *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	diagnosticsTotal *prometheus.CounterVec
)

// Init registers the collectors once. A non-nil db adds storage gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_runs_total",
				Help: "Ingest runs by logger type and result",
			},
			[]string{"logger_type", "result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Ingest failures by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Decode and store latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"logger_type", "result"},
		)
		recordsDecoded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_decoded_total",
				Help: "Canonical records decoded by logger type",
			},
			[]string{"logger_type"},
		)
		rowsSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_skipped_total",
				Help: "Rows or nodes skipped with a warning, by logger type",
			},
			[]string{"logger_type"},
		)

		reconstructionRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconstruction_runs_total",
				Help: "Cumulative energy reconstructions by logger type and result",
			},
			[]string{"logger_type", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		diagnosticsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "diagnostics_total",
				Help: "Diagnostics reports by overall health",
			},
			[]string{"health"},
		)

		prometheus.MustRegister(
			ingestRuns,
			ingestErrors,
			ingestLatency,
			recordsDecoded,
			rowsSkipped,
			reconstructionRuns,
			exportTotal,
			exportLatency,
			diagnosticsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records one ingest run.
func ObserveIngest(loggerType, result string, duration time.Duration) {
	loggerType = orUnknown(loggerType)
	if result == "" {
		result = resultSuccess
	}
	if ingestRuns != nil {
		ingestRuns.WithLabelValues(loggerType, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(loggerType, result).Observe(duration.Seconds())
	}
}

// AddDecoded counts decoded records and skipped rows.
func AddDecoded(loggerType string, records, skipped int) {
	loggerType = orUnknown(loggerType)
	if recordsDecoded != nil && records > 0 {
		recordsDecoded.WithLabelValues(loggerType).Add(float64(records))
	}
	if rowsSkipped != nil && skipped > 0 {
		rowsSkipped.WithLabelValues(loggerType).Add(float64(skipped))
	}
}

// IncIngestError increments the ingest error counter.
func IncIngestError(reason string) {
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(orUnknown(reason)).Inc()
	}
}

// IncReconstruction counts one reconstruction pass.
func IncReconstruction(loggerType, result string) {
	if result == "" {
		result = resultSuccess
	}
	if reconstructionRuns != nil {
		reconstructionRuns.WithLabelValues(orUnknown(loggerType), result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	format = orUnknown(format)
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncDiagnostics counts one diagnostics report.
func IncDiagnostics(health string) {
	if diagnosticsTotal != nil {
		diagnosticsTotal.WithLabelValues(orUnknown(health)).Inc()
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultEmpty   = resultEmpty
)
