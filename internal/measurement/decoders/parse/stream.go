package parse

import (
	"context"
	"io"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

// Producer yields the builder for the next input unit. A nil builder means
// the unit produced nothing; io.EOF ends the stream and any other error is
// fatal.
type Producer func() (*measurement.Builder, error)

// Stream adapts a Producer to measurement.Stream. Builders that never saw a
// reading, not even an absent one, are dropped with a warning.
type Stream struct {
	ctx      context.Context
	produce  Producer
	warnings *Warnings
	closer   func() error
	closed   bool
	err      error
}

// NewStream wraps produce. closer may be nil.
func NewStream(ctx context.Context, warnings *Warnings, produce Producer, closer func() error) *Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Stream{ctx: ctx, produce: produce, warnings: warnings, closer: closer}
}

func (s *Stream) Next() (measurement.Measurement, error) {
	if s.err != nil {
		return measurement.Measurement{}, s.err
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return measurement.Measurement{}, err
		}
		b, err := s.produce()
		if err != nil {
			s.err = err
			if err != io.EOF {
				s.Close()
			}
			return measurement.Measurement{}, err
		}
		if b == nil {
			continue
		}
		m, err := b.Build()
		if err != nil {
			s.warnings.Addf(0, "%v", err)
			continue
		}
		if b.Empty() {
			s.warnings.Addf(0, "%s at %s: no readings", m.LoggerID, m.Timestamp.Format(time.RFC3339))
			continue
		}
		return m, nil
	}
}

func (s *Stream) Warnings() []measurement.RowWarning { return s.warnings.List() }

// Close releases the underlying source once.
func (s *Stream) Close() error {
	if s.closed || s.closer == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.closer()
}
