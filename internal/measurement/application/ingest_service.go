package application

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"pv-telemetry/internal/measurement/application/eventbus"
	"pv-telemetry/internal/measurement/application/events"
	measurement "pv-telemetry/internal/measurement/domain"
	"pv-telemetry/internal/observability/metrics"
)

const defaultWarningLimit = 200

var (
	// ErrNilDispatcher is returned when the service has no dispatcher.
	ErrNilDispatcher = errors.New("ingest: nil dispatcher")
	// ErrNilRepository is returned when the service has no repository.
	ErrNilRepository = errors.New("ingest: nil repository")
	// ErrNilBody is returned for requests without a payload.
	ErrNilBody = errors.New("ingest: nil body")
)

// IngestRequest describes one uploaded file.
type IngestRequest struct {
	LoggerType string
	LoggerID   string
	Source     string
	Body       io.Reader
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	RunID      string                   `json:"runId"`
	LoggerType measurement.LoggerType   `json:"loggerType"`
	Source     string                   `json:"source,omitempty"`
	Inserted   int                      `json:"inserted"`
	Skipped    int                      `json:"skipped"`
	Loggers    []string                 `json:"loggers"`
	Warnings   []measurement.RowWarning `json:"warnings,omitempty"`
	Truncated  bool                     `json:"warningsTruncated,omitempty"`
}

// IngestService decodes uploaded files and stores the records.
type IngestService struct {
	dispatcher   *Dispatcher
	repo         measurement.Repository
	bus          eventbus.EventBus
	logger       *log.Logger
	location     *time.Location
	batchSize    int
	warningLimit int
	now          func() time.Time
	newRunID     func() string
}

// IngestOption configures the service.
type IngestOption func(*IngestService)

// WithBatchSize bounds the records per upsert transaction.
func WithBatchSize(size int) IngestOption {
	return func(s *IngestService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithLocation sets the zone for wall-clock timestamps.
func WithLocation(loc *time.Location) IngestOption {
	return func(s *IngestService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithEventBus publishes IngestionCompleted after each stored run.
func WithEventBus(bus eventbus.EventBus) IngestOption {
	return func(s *IngestService) {
		s.bus = bus
	}
}

// WithWarningLimit caps the warnings returned in a result.
func WithWarningLimit(limit int) IngestOption {
	return func(s *IngestService) {
		if limit > 0 {
			s.warningLimit = limit
		}
	}
}

// NewIngestService constructs the service.
func NewIngestService(dispatcher *Dispatcher, repo measurement.Repository, logger *log.Logger, opts ...IngestOption) (*IngestService, error) {
	if dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	if repo == nil {
		return nil, ErrNilRepository
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &IngestService{
		dispatcher:   dispatcher,
		repo:         repo,
		logger:       logger,
		location:     time.UTC,
		batchSize:    defaultBatchSize,
		warningLimit: defaultWarningLimit,
		now:          func() time.Time { return time.Now().UTC() },
		newRunID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest decodes the whole file before writing, so a fatal decode error
// stores nothing. Records are then upserted in batches.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	start := time.Now()
	result := IngestResult{RunID: s.newRunID(), Source: req.Source}
	if req.Body == nil {
		return result, ErrNilBody
	}

	decoder, err := s.dispatcher.Resolve(req.LoggerType)
	if err != nil {
		s.fail(req.LoggerType, "unknown_format", start)
		return result, err
	}
	result.LoggerType = decoder.Type()

	stream, err := decoder.Decode(ctx, req.Body, measurement.Options{LoggerID: req.LoggerID, Location: s.location})
	if err != nil {
		s.fail(string(result.LoggerType), reason(err), start)
		return result, err
	}
	records, warnings, err := measurement.Collect(stream)
	if err != nil {
		s.fail(string(result.LoggerType), reason(err), start)
		return result, err
	}
	result.Skipped = measurement.SkippedRows(warnings)
	result.Warnings = warnings
	if len(warnings) > s.warningLimit {
		result.Warnings = warnings[:s.warningLimit]
		result.Truncated = true
	}
	metrics.AddDecoded(string(result.LoggerType), len(records), result.Skipped)

	for offset := 0; offset < len(records); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.repo.UpsertMeasurements(ctx, records[offset:end]); err != nil {
			s.logger.Printf("ingest: run %s: upsert error after %d records: %v", result.RunID, result.Inserted, err)
			s.fail(string(result.LoggerType), "storage", start)
			return result, err
		}
		result.Inserted = end
	}

	result.Loggers = loggerIDs(records)
	outcome := metrics.ResultSuccess
	if len(records) == 0 {
		outcome = metrics.ResultEmpty
	}
	metrics.ObserveIngest(string(result.LoggerType), outcome, time.Since(start))
	if result.Skipped > 0 {
		s.logger.Printf("ingest: run %s: %s: %d rows skipped", result.RunID, result.LoggerType, result.Skipped)
	}
	s.publish(ctx, result, records)
	return result, nil
}

func (s *IngestService) fail(loggerType, why string, start time.Time) {
	metrics.IncIngestError(why)
	metrics.ObserveIngest(loggerType, metrics.ResultError, time.Since(start))
}

func (s *IngestService) publish(ctx context.Context, result IngestResult, records []measurement.Measurement) {
	if s.bus == nil {
		return
	}
	event := events.IngestionCompleted{
		RunID:      result.RunID,
		LoggerType: result.LoggerType,
		Source:     result.Source,
		LoggerIDs:  result.Loggers,
		Inserted:   result.Inserted,
		Skipped:    result.Skipped,
		OccurredAt: s.now(),
	}
	for i, m := range records {
		if i == 0 || m.Timestamp.Before(event.From) {
			event.From = m.Timestamp
		}
		if m.Timestamp.After(event.To) {
			event.To = m.Timestamp
		}
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Printf("ingest: run %s: publish error: %v", result.RunID, err)
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, measurement.ErrUnknownFormat):
		return "unknown_format"
	case errors.Is(err, measurement.ErrStructuralViolation):
		return "structural_violation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "read"
}

func loggerIDs(records []measurement.Measurement) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range records {
		if !seen[m.LoggerID] {
			seen[m.LoggerID] = true
			out = append(out, m.LoggerID)
		}
	}
	return out
}
