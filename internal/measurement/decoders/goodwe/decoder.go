// Package goodwe decodes GoodWe EAV exports: rows of
// timestamp,loggerId,key,value where one reading spans several rows.
package goodwe

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

// Decoder implements measurement.Decoder for GoodWe EAV files.
type Decoder struct{}

// New constructs a decoder.
func New() *Decoder { return &Decoder{} }

// Type returns the logger type.
func (*Decoder) Type() measurement.LoggerType { return measurement.LoggerGoodWe }

// Decode starts a lazy decode of src.
func (*Decoder) Decode(ctx context.Context, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	if src == nil {
		return nil, errors.New("goodwe: nil source")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	return &stream{
		ctx:      ctx,
		reader:   reader,
		loc:      opts.Zone(),
		acc:      newAccumulator(),
		warnings: parse.NewWarnings(measurement.LoggerGoodWe),
	}, nil
}

type stream struct {
	ctx      context.Context
	reader   *csv.Reader
	loc      *time.Location
	acc      *accumulator
	warnings *parse.Warnings
	ready    []*measurement.Builder
	rows     int
	done     bool
}

func (s *stream) Next() (measurement.Measurement, error) {
	for {
		for len(s.ready) > 0 {
			b := s.ready[0]
			s.ready = s.ready[1:]
			if b.Empty() {
				continue
			}
			return b.Build()
		}
		if s.done {
			return measurement.Measurement{}, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return measurement.Measurement{}, err
		}

		record, err := s.reader.Read()
		if err == io.EOF {
			s.ready = s.acc.flush()
			s.done = true
			continue
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.warnings.Addf(perr.StartLine, "csv: %v", perr.Err)
				continue
			}
			return measurement.Measurement{}, err
		}
		line, _ := s.reader.FieldPos(0)
		s.rows++
		s.ready = s.handle(record, line)
	}
}

func (s *stream) handle(record []string, line int) []*measurement.Builder {
	if len(record) != 4 {
		s.warnings.Addf(line, "expected 4 fields, got %d", len(record))
		return nil
	}
	if s.rows == 1 && parse.ColumnKey(record[2]) == "key" {
		return nil
	}
	ts, err := parse.Timestamp(record[0], s.loc)
	if err != nil {
		s.warnings.Addf(line, "bad timestamp %q", record[0])
		return nil
	}
	loggerID := strings.TrimSpace(record[1])
	if loggerID == "" {
		s.warnings.Addf(line, "empty logger id")
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(record[2]))
	if key == "" {
		s.warnings.Addf(line, "empty key")
		return nil
	}

	b, flushed := s.acc.add(ts, loggerID)
	if err := apply(b, key, strings.TrimSpace(record[3]), s.loc); err != nil {
		s.warnings.Addf(line, "%s: %v", key, err)
	}
	return flushed
}

var numericKeys = map[string]string{
	"e_total": measurement.MetaEnergyTotalKWh,
	"vac":     measurement.MetaVoltageAC,
	"iac":     measurement.MetaCurrentAC,
	"vpv":     measurement.MetaVoltageDC,
	"ipv":     measurement.MetaCurrentDC,
	"fac":     measurement.MetaFrequency,
	"temp":    measurement.MetaTemperature,
}

func apply(b *measurement.Builder, key, value string, loc *time.Location) error {
	switch key {
	case "pac", "e_day", "irr", "irradiance":
		v, err := number(value)
		if err != nil {
			return err
		}
		if v == nil {
			b.Absent()
			return nil
		}
		switch key {
		case "pac":
			b.Power(v)
		case "e_day":
			b.Energy(v)
		default:
			b.Irradiance(v)
		}
		return nil
	case "error_code", "errorcode":
		if value == "" || value == "0" {
			b.Absent()
			return nil
		}
		b.Meta(measurement.MetaErrorCode, measurement.Text(value))
		return nil
	case "error_time":
		if value == "" {
			b.Absent()
			return nil
		}
		at, err := parse.Timestamp(value, loc)
		if err != nil {
			return fmt.Errorf("bad timestamp %q", value)
		}
		b.Meta(measurement.MetaErrorTimestamp, measurement.Time(at))
		return nil
	}
	if meta, ok := numericKeys[key]; ok {
		v, err := number(value)
		if err != nil {
			return err
		}
		if v == nil {
			b.Absent()
			return nil
		}
		b.MetaFloat(meta, v)
		return nil
	}

	// Unknown keys are kept verbatim; placeholders stay absent.
	b.Meta(key, parse.VerbatimValue(value))
	return nil
}

func number(value string) (*float64, error) {
	if parse.IsDashPlaceholder(value) {
		return nil, nil
	}
	v, err := parse.Number(value)
	if err != nil {
		return nil, fmt.Errorf("bad value %q", value)
	}
	return v, nil
}

func (s *stream) Warnings() []measurement.RowWarning { return s.warnings.List() }

func (s *stream) Close() error { return nil }
