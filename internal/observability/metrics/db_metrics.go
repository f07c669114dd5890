package metrics

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const storageQueryTimeout = 2 * time.Second

type storageGauge struct {
	name  string
	help  string
	query string
}

var storageGauges = []storageGauge{
	{"measurements_stored", "Canonical records in storage", "SELECT COUNT(*) FROM measurements"},
	{"loggers_stored", "Distinct loggers in storage", "SELECT COUNT(DISTINCT logger_id) FROM measurements"},
	{"audit_entries_stored", "Audit log entries in storage", "SELECT COUNT(*) FROM audit_logs"},
	{
		"latest_measurement_age_seconds",
		"Seconds since the newest stored measurement",
		"SELECT COALESCE(EXTRACT(EPOCH FROM now() - MAX(ts)), 0)::BIGINT FROM measurements",
	},
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	for _, g := range storageGauges {
		query := g.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + g.name, Help: g.help},
			func() float64 { return scalar(db, logger, query) },
		))
	}
}

// scalar runs a single-value query at scrape time. Failures read as 0.
func scalar(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageQueryTimeout)
	defer cancel()
	var value int64
	if err := db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		if logger != nil {
			logger.Printf("metrics: storage gauge: %v", err)
		}
		return 0
	}
	return float64(max(value, 0))
}
