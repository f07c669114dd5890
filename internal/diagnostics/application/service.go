package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	diagnostics "pv-telemetry/internal/diagnostics/domain"
	measurement "pv-telemetry/internal/measurement/domain"
	"pv-telemetry/internal/observability/metrics"
)

const (
	DefaultDays   = 7
	MaxDays       = 30
	DefaultLimit  = 20
	defaultWindow = 24 * time.Hour
)

var (
	// ErrNilScanner is returned when the service has no scanner.
	ErrNilScanner = errors.New("diagnostics: nil scanner")
	// ErrInvalidDays is returned for a window outside 1..MaxDays.
	ErrInvalidDays = errors.New("diagnostics: days out of range")
)

// ErrorScanner reads error-code occurrences of one logger.
type ErrorScanner interface {
	LoggerType(ctx context.Context, loggerID string) (measurement.LoggerType, error)
	ErrorOccurrences(ctx context.Context, loggerID string, from, to time.Time) ([]diagnostics.Occurrence, error)
}

// Service builds diagnostics reports.
type Service struct {
	scanner ErrorScanner
	catalog *diagnostics.Catalog
	logger  *log.Logger
	limit   int
	now     func() time.Time
}

// NewService constructs the service. A nil catalog uses the built-in table.
func NewService(scanner ErrorScanner, catalog *diagnostics.Catalog, logger *log.Logger) (*Service, error) {
	if scanner == nil {
		return nil, ErrNilScanner
	}
	if catalog == nil {
		catalog = diagnostics.DefaultCatalog()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		scanner: scanner,
		catalog: catalog,
		logger:  logger,
		limit:   DefaultLimit,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Diagnose scans the last days of a logger. Zero days means DefaultDays.
// Unknown loggers fail with measurement.ErrLoggerNotFound.
func (s *Service) Diagnose(ctx context.Context, loggerID string, days int) (diagnostics.Report, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < 1 || days > MaxDays {
		return diagnostics.Report{}, fmt.Errorf("%w: %d", ErrInvalidDays, days)
	}
	loggerType, err := s.scanner.LoggerType(ctx, loggerID)
	if err != nil {
		return diagnostics.Report{}, err
	}
	to := s.now()
	from := to.Add(-time.Duration(days) * defaultWindow)
	occurrences, err := s.scanner.ErrorOccurrences(ctx, loggerID, from, to)
	if err != nil {
		s.logger.Printf("diagnostics: scan %s: %v", loggerID, err)
		return diagnostics.Report{}, err
	}
	report := diagnostics.BuildReport(s.catalog, loggerID, loggerType, from, to, occurrences, s.limit)
	metrics.IncDiagnostics(string(report.OverallHealth))
	return report, nil
}
