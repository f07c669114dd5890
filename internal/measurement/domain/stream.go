package measurement

import (
	"context"
	"io"
	"time"
)

// Options carries per-invocation decode settings.
type Options struct {
	// LoggerID is used when the source carries no device identity.
	LoggerID string
	// Location interprets wall-clock timestamps. Nil means UTC.
	Location *time.Location
}

// Zone returns the configured location or UTC.
func (o Options) Zone() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Stream is a lazy, finite, non-restartable sequence of records.
// Next returns io.EOF after the last record.
type Stream interface {
	Next() (Measurement, error)
	Warnings() []RowWarning
	Close() error
}

// Decoder turns one vendor format into a Stream.
type Decoder interface {
	Type() LoggerType
	Decode(ctx context.Context, src io.Reader, opts Options) (Stream, error)
}

// Collect drains a stream. On a fatal error the records read so far are
// discarded.
func Collect(s Stream) ([]Measurement, []RowWarning, error) {
	defer s.Close()
	var out []Measurement
	for {
		m, err := s.Next()
		if err == io.EOF {
			return out, s.Warnings(), nil
		}
		if err != nil {
			return nil, s.Warnings(), err
		}
		out = append(out, m)
	}
}
