package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

type key struct {
	loggerID string
	unix     int64
	nanos    int
}

// MeasurementRepository keeps records in process for tests and dry runs.
// It implements measurement.Repository and measurement.Query.
type MeasurementRepository struct {
	mu   sync.RWMutex
	data map[key]measurement.Measurement
}

// NewMeasurementRepository constructs an empty repository.
func NewMeasurementRepository() *MeasurementRepository {
	return &MeasurementRepository{data: make(map[key]measurement.Measurement)}
}

// UpsertMeasurements replaces records with the same (logger, timestamp).
// The batch is validated before anything is written.
func (r *MeasurementRepository) UpsertMeasurements(ctx context.Context, measurements []measurement.Measurement) error {
	_ = ctx
	for _, m := range measurements {
		if m.LoggerID == "" || m.Timestamp.IsZero() || !m.LoggerType.IsValid() {
			return errors.New("measurement repo: invalid measurement")
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range measurements {
		m.Timestamp = m.Timestamp.UTC()
		m.Metadata = m.Metadata.Clone()
		r.data[keyOf(m.LoggerID, m.Timestamp)] = m
	}
	return nil
}

// ListByLogger returns records of one logger within [from, to) by timestamp.
func (r *MeasurementRepository) ListByLogger(ctx context.Context, loggerID string, from, to time.Time) ([]measurement.Measurement, error) {
	_ = ctx
	if loggerID == "" {
		return nil, errors.New("measurement query: logger id required")
	}
	r.mu.RLock()
	var out []measurement.Measurement
	for k, m := range r.data {
		if k.loggerID != loggerID {
			continue
		}
		if !from.IsZero() && m.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !m.Timestamp.Before(to) {
			continue
		}
		m.Metadata = m.Metadata.Clone()
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListLoggers summarizes stored loggers ordered by id.
func (r *MeasurementRepository) ListLoggers(ctx context.Context) ([]measurement.LoggerSummary, error) {
	_ = ctx
	type group struct {
		loggerID   string
		loggerType measurement.LoggerType
	}
	r.mu.RLock()
	summaries := make(map[group]*measurement.LoggerSummary)
	for _, m := range r.data {
		g := group{m.LoggerID, m.LoggerType}
		s := summaries[g]
		if s == nil {
			s = &measurement.LoggerSummary{LoggerID: m.LoggerID, LoggerType: m.LoggerType, FirstSeen: m.Timestamp, LastSeen: m.Timestamp}
			summaries[g] = s
		}
		if m.Timestamp.Before(s.FirstSeen) {
			s.FirstSeen = m.Timestamp
		}
		if m.Timestamp.After(s.LastSeen) {
			s.LastSeen = m.Timestamp
		}
		s.RecordCount++
	}
	r.mu.RUnlock()

	out := make([]measurement.LoggerSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LoggerID != out[j].LoggerID {
			return out[i].LoggerID < out[j].LoggerID
		}
		return out[i].LoggerType < out[j].LoggerType
	})
	return out, nil
}

// LoggerType returns the type of the latest record of a logger.
func (r *MeasurementRepository) LoggerType(ctx context.Context, loggerID string) (measurement.LoggerType, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		latest time.Time
		found  measurement.LoggerType
	)
	for k, m := range r.data {
		if k.loggerID == loggerID && (found == "" || m.Timestamp.After(latest)) {
			latest = m.Timestamp
			found = m.LoggerType
		}
	}
	if found == "" {
		return "", measurement.ErrLoggerNotFound
	}
	return found, nil
}

// Len returns the number of stored records.
func (r *MeasurementRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func keyOf(loggerID string, ts time.Time) key {
	return key{loggerID: loggerID, unix: ts.Unix(), nanos: ts.Nanosecond()}
}
