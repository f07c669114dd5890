package application

import (
	"context"
	"errors"
	"log"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
	"pv-telemetry/internal/observability/metrics"
)

// ErrNilQuery is returned when the service has no query.
var ErrNilQuery = errors.New("query service: nil query")

// QueryService reads stored series and derives cumulative energy for the
// logger types that only report interval deltas.
type QueryService struct {
	query         measurement.Query
	reconstructor *measurement.Reconstructor
	logger        *log.Logger
}

// NewQueryService constructs the service. A nil reconstructor returns
// stored values unchanged.
func NewQueryService(query measurement.Query, reconstructor *measurement.Reconstructor, logger *log.Logger) (*QueryService, error) {
	if query == nil {
		return nil, ErrNilQuery
	}
	if logger == nil {
		logger = log.Default()
	}
	return &QueryService{query: query, reconstructor: reconstructor, logger: logger}, nil
}

// Series returns the records of one logger within [from, to). For delta
// types under the local-midnight policy the read starts at local midnight
// of from, so the first day's total is complete, and is trimmed afterwards.
func (s *QueryService) Series(ctx context.Context, loggerID string, from, to time.Time) ([]measurement.Measurement, error) {
	readFrom := from
	if s.reconstructor != nil && s.reconstructor.Policy() == measurement.ResetLocalMidnight && !from.IsZero() {
		readFrom = s.reconstructor.DayStart(from)
	}
	records, err := s.query.ListByLogger(ctx, loggerID, readFrom, to)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || !s.reconstructor.Requires(records[0].LoggerType) {
		return trim(records, from), nil
	}

	loggerType := string(records[0].LoggerType)
	if err := s.reconstructor.Apply(records); err != nil {
		metrics.IncReconstruction(loggerType, metrics.ResultError)
		s.logger.Printf("query: reconstruct %s: %v", loggerID, err)
		return nil, err
	}
	metrics.IncReconstruction(loggerType, metrics.ResultSuccess)
	return trim(records, from), nil
}

// Loggers lists stored loggers.
func (s *QueryService) Loggers(ctx context.Context) ([]measurement.LoggerSummary, error) {
	return s.query.ListLoggers(ctx)
}

func trim(records []measurement.Measurement, from time.Time) []measurement.Measurement {
	if from.IsZero() {
		return records
	}
	for i, m := range records {
		if !m.Timestamp.Before(from) {
			return records[i:]
		}
	}
	return records[:0]
}
