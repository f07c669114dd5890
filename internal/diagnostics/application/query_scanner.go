package application

import (
	"context"
	"errors"
	"time"

	diagnostics "pv-telemetry/internal/diagnostics/domain"
	measurement "pv-telemetry/internal/measurement/domain"
)

// LoggerTyper resolves the stored type of a logger.
type LoggerTyper interface {
	LoggerType(ctx context.Context, loggerID string) (measurement.LoggerType, error)
}

// QueryScanner scans through a generic measurement query. It suits the
// in-memory store; the Postgres scanner filters in SQL instead.
type QueryScanner struct {
	query measurement.Query
	typer LoggerTyper
}

// NewQueryScanner constructs the scanner.
func NewQueryScanner(query measurement.Query, typer LoggerTyper) (*QueryScanner, error) {
	if query == nil || typer == nil {
		return nil, errors.New("diagnostics: nil query")
	}
	return &QueryScanner{query: query, typer: typer}, nil
}

// LoggerType delegates to the typer.
func (s *QueryScanner) LoggerType(ctx context.Context, loggerID string) (measurement.LoggerType, error) {
	return s.typer.LoggerType(ctx, loggerID)
}

// ErrorOccurrences returns records carrying a text errorCode.
func (s *QueryScanner) ErrorOccurrences(ctx context.Context, loggerID string, from, to time.Time) ([]diagnostics.Occurrence, error) {
	records, err := s.query.ListByLogger(ctx, loggerID, from, to)
	if err != nil {
		return nil, err
	}
	var out []diagnostics.Occurrence
	for _, m := range records {
		v, ok := m.Metadata[measurement.MetaErrorCode]
		if !ok {
			continue
		}
		out = append(out, diagnostics.Occurrence{Timestamp: m.Timestamp, Code: v.String()})
	}
	return out, nil
}
