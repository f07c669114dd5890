package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	diagnostics "pv-telemetry/internal/diagnostics/domain"
	measurement "pv-telemetry/internal/measurement/domain"
)

// ErrorScanner reads error codes from the measurements table.
type ErrorScanner struct {
	db    *sql.DB
	table string
}

// NewErrorScanner constructs a scanner over table. Empty means "measurements".
func NewErrorScanner(db *sql.DB, table string) *ErrorScanner {
	if table == "" {
		table = "measurements"
	}
	return &ErrorScanner{db: db, table: table}
}

// LoggerType returns the most recent logger type of a logger.
func (s *ErrorScanner) LoggerType(ctx context.Context, loggerID string) (measurement.LoggerType, error) {
	if s == nil || s.db == nil {
		return "", errors.New("error scan: nil db")
	}
	query := fmt.Sprintf(`SELECT logger_type FROM %s WHERE logger_id = $1 ORDER BY ts DESC LIMIT 1`, s.table)
	var loggerType string
	if err := s.db.QueryRowContext(ctx, query, loggerID).Scan(&loggerType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", measurement.ErrLoggerNotFound
		}
		return "", err
	}
	return measurement.LoggerType(loggerType), nil
}

// ErrorOccurrences returns (ts, errorCode) pairs within [from, to).
func (s *ErrorScanner) ErrorOccurrences(ctx context.Context, loggerID string, from, to time.Time) ([]diagnostics.Occurrence, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("error scan: nil db")
	}
	query := fmt.Sprintf(`
SELECT ts, metadata->>'errorCode'
FROM %s
WHERE logger_id = $1
	AND ts >= $2
	AND ts < $3
	AND metadata ? 'errorCode'
ORDER BY ts ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, query, loggerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []diagnostics.Occurrence
	for rows.Next() {
		var (
			ts   time.Time
			code sql.NullString
		)
		if err := rows.Scan(&ts, &code); err != nil {
			return nil, err
		}
		if !code.Valid {
			continue
		}
		out = append(out, diagnostics.Occurrence{Timestamp: ts.UTC(), Code: code.String})
	}
	return out, rows.Err()
}
