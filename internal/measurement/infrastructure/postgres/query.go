package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

// MeasurementQuery reads canonical records from Postgres.
type MeasurementQuery struct {
	db    *sql.DB
	table string
}

// NewMeasurementQuery constructs a query.
func NewMeasurementQuery(db *sql.DB, opts ...Option) *MeasurementQuery {
	q := &MeasurementQuery{db: db, table: defaultMeasurementTable}
	for _, opt := range opts {
		opt(&q.table)
	}
	return q
}

// ListByLogger returns the records of one logger within [from, to), ordered
// by timestamp. Zero bounds are open.
func (q *MeasurementQuery) ListByLogger(ctx context.Context, loggerID string, from, to time.Time) ([]measurement.Measurement, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("measurement query: nil db")
	}
	if loggerID == "" {
		return nil, errors.New("measurement query: logger id required")
	}

	query := fmt.Sprintf(`
SELECT ts, logger_type, active_power_w, energy_daily_kwh, irradiance, metadata
FROM %s
WHERE logger_id = $1
	AND ($2::timestamptz IS NULL OR ts >= $2)
	AND ($3::timestamptz IS NULL OR ts < $3)
ORDER BY ts ASC`, q.table)

	rows, err := q.db.QueryContext(ctx, query, loggerID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []measurement.Measurement
	for rows.Next() {
		var (
			ts         time.Time
			loggerType string
			power      sql.NullFloat64
			energy     sql.NullFloat64
			irradiance sql.NullFloat64
			rawMeta    []byte
		)
		if err := rows.Scan(&ts, &loggerType, &power, &energy, &irradiance, &rawMeta); err != nil {
			return nil, err
		}
		m := measurement.Measurement{
			Timestamp:      ts.UTC(),
			LoggerID:       loggerID,
			LoggerType:     measurement.LoggerType(loggerType),
			ActivePowerW:   floatPtr(power),
			EnergyDailyKWh: floatPtr(energy),
			Irradiance:     floatPtr(irradiance),
		}
		if len(rawMeta) > 0 && string(rawMeta) != "{}" {
			if err := json.Unmarshal(rawMeta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("measurement query: decode metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListLoggers summarizes every stored logger.
func (q *MeasurementQuery) ListLoggers(ctx context.Context) ([]measurement.LoggerSummary, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("measurement query: nil db")
	}
	query := fmt.Sprintf(`
SELECT logger_id, logger_type, MIN(ts), MAX(ts), COUNT(*)
FROM %s
GROUP BY logger_id, logger_type
ORDER BY logger_id ASC, logger_type ASC`, q.table)

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []measurement.LoggerSummary
	for rows.Next() {
		var s measurement.LoggerSummary
		var loggerType string
		if err := rows.Scan(&s.LoggerID, &loggerType, &s.FirstSeen, &s.LastSeen, &s.RecordCount); err != nil {
			return nil, err
		}
		s.LoggerType = measurement.LoggerType(loggerType)
		s.FirstSeen = s.FirstSeen.UTC()
		s.LastSeen = s.LastSeen.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoggerType returns the logger type most recently stored for a logger.
func (q *MeasurementQuery) LoggerType(ctx context.Context, loggerID string) (measurement.LoggerType, error) {
	if q == nil || q.db == nil {
		return "", errors.New("measurement query: nil db")
	}
	query := fmt.Sprintf(`SELECT logger_type FROM %s WHERE logger_id = $1 ORDER BY ts DESC LIMIT 1`, q.table)
	var loggerType string
	if err := q.db.QueryRowContext(ctx, query, loggerID).Scan(&loggerType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", measurement.ErrLoggerNotFound
		}
		return "", err
	}
	return measurement.LoggerType(loggerType), nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return measurement.Float(v.Float64)
}
