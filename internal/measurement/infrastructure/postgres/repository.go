package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	measurement "pv-telemetry/internal/measurement/domain"
)

const defaultMeasurementTable = "measurements"

// MeasurementRepository stores canonical records in Postgres.
type MeasurementRepository struct {
	db    *sql.DB
	table string
}

// Option configures the repository and query.
type Option func(*string)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(target *string) {
		if table != "" {
			*target = table
		}
	}
}

// NewMeasurementRepository constructs a repository.
func NewMeasurementRepository(db *sql.DB, opts ...Option) *MeasurementRepository {
	repo := &MeasurementRepository{db: db, table: defaultMeasurementTable}
	for _, opt := range opts {
		opt(&repo.table)
	}
	return repo
}

// UpsertMeasurements writes records keyed by (logger_id, ts) in one
// transaction. Re-ingesting a file replaces the same rows.
func (r *MeasurementRepository) UpsertMeasurements(ctx context.Context, measurements []measurement.Measurement) error {
	if r == nil || r.db == nil {
		return errors.New("measurement repo: nil db")
	}
	if len(measurements) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	logger_id,
	ts,
	logger_type,
	active_power_w,
	energy_daily_kwh,
	irradiance,
	metadata
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (logger_id, ts)
DO UPDATE SET
	logger_type = EXCLUDED.logger_type,
	active_power_w = EXCLUDED.active_power_w,
	energy_daily_kwh = EXCLUDED.energy_daily_kwh,
	irradiance = EXCLUDED.irradiance,
	metadata = EXCLUDED.metadata,
	updated_at = NOW()`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, m := range measurements {
		if m.LoggerID == "" || m.Timestamp.IsZero() || !m.LoggerType.IsValid() {
			_ = tx.Rollback()
			return errors.New("measurement repo: invalid measurement")
		}
		meta, err := encodeMetadata(m.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(
			ctx,
			m.LoggerID,
			m.Timestamp.UTC(),
			string(m.LoggerType),
			nullFloat(m.ActivePowerW),
			nullFloat(m.EnergyDailyKWh),
			nullFloat(m.Irradiance),
			meta,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func encodeMetadata(meta measurement.Metadata) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("measurement repo: encode metadata: %w", err)
	}
	return string(data), nil
}
