// Package lti decodes LTI sectioned exports: key=value header lines, a
// [data] marker, then a semicolon table.
package lti

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const (
	separator  = ";"
	dataMarker = "[data]"
)

var (
	timestampKeys = []string{"timestamp", "datetime", "time"}
	columnTargets = map[string]parse.Column{
		"pac":       {Target: parse.Power},
		"eint":      {Target: parse.MetaNumber, Key: measurement.MetaEnergyIntervalKWh, Scale: 0.001},
		"etotal":    {Target: parse.MetaNumber, Key: measurement.MetaEnergyTotalKWh},
		"udc":       {Target: parse.MetaNumber, Key: measurement.MetaVoltageDC},
		"idc":       {Target: parse.MetaNumber, Key: measurement.MetaCurrentDC},
		"uac":       {Target: parse.MetaNumber, Key: measurement.MetaVoltageAC},
		"iac":       {Target: parse.MetaNumber, Key: measurement.MetaCurrentAC},
		"fac":       {Target: parse.MetaNumber, Key: measurement.MetaFrequency},
		"temp":      {Target: parse.MetaNumber, Key: measurement.MetaTemperature},
		"irr":       {Target: parse.Irradiance},
		"serial":    {Target: parse.Skip},
		"error":     {Target: parse.MetaText, Key: measurement.MetaErrorCode},
		"errortime": {Target: parse.MetaTime, Key: measurement.MetaErrorTimestamp},
	}
)

// Decoder implements measurement.Decoder for LTI files.
type Decoder struct{}

// New constructs a decoder.
func New() *Decoder { return &Decoder{} }

// Type returns the logger type.
func (*Decoder) Type() measurement.LoggerType { return measurement.LoggerLTI }

// Decode starts a lazy decode of src. Structural problems surface from Next.
func (*Decoder) Decode(ctx context.Context, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	if src == nil {
		return nil, errors.New("lti: nil source")
	}
	d := &decoding{
		lines:    parse.NewLines(src),
		opts:     opts,
		loc:      opts.Zone(),
		warnings: parse.NewWarnings(measurement.LoggerLTI),
	}
	return parse.NewStream(ctx, d.warnings, d.next, nil), nil
}

type state uint8

const (
	statePreamble state = iota
	stateHeader
	stateRows
)

type decoding struct {
	lines    *parse.Lines
	opts     measurement.Options
	loc      *time.Location
	warnings *parse.Warnings

	state   state
	serial  string
	columns []parse.Column
	times   parse.TimeColumns
	serialI int
}

func (d *decoding) next() (*measurement.Builder, error) {
	for {
		text, err := d.lines.Next()
		if err == io.EOF {
			if d.state == statePreamble {
				return nil, measurement.Structural(measurement.LoggerLTI, d.lines.Line(), "missing [data] marker")
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		switch d.state {
		case statePreamble:
			d.preamble(text)
		case stateHeader:
			if parse.IsBlank(text, separator) {
				continue
			}
			if err := d.header(text); err != nil {
				return nil, err
			}
			d.state = stateRows
		case stateRows:
			if parse.IsBlank(text, separator) {
				continue
			}
			return d.row(text), nil
		}
	}
}

func (d *decoding) preamble(text string) {
	trimmed := strings.TrimSpace(text)
	if strings.EqualFold(trimmed, dataMarker) {
		d.state = stateHeader
		return
	}
	key, value, ok := strings.Cut(trimmed, "=")
	if !ok {
		return
	}
	if strings.EqualFold(strings.TrimSpace(key), "serial") {
		d.serial = strings.TrimSpace(value)
	}
}

func (d *decoding) header(text string) error {
	names := parse.Split(text, separator)
	keys := parse.Keys(names)
	times, ok := parse.FindTimeColumns(keys, timestampKeys, nil, nil)
	if !ok {
		return measurement.Structural(measurement.LoggerLTI, d.lines.Line(), "header has no timestamp column")
	}
	d.times = times
	d.serialI = -1
	d.columns = make([]parse.Column, len(names))
	for i, name := range names {
		col, known := columnTargets[keys[i]]
		if !known {
			col = parse.Column{Target: parse.Verbatim}
		}
		if times.Uses(i) {
			col = parse.Column{Target: parse.Skip}
		}
		if keys[i] == "serial" {
			d.serialI = i
		}
		col.Name = name
		d.columns[i] = col
	}
	return nil
}

func (d *decoding) row(text string) *measurement.Builder {
	line := d.lines.Line()
	cells := parse.Split(text, separator)
	if len(cells) > len(d.columns) {
		d.warnings.Addf(line, "expected at most %d cells, got %d", len(d.columns), len(cells))
		return nil
	}
	ts, err := d.times.Parse(cells, d.loc)
	if err != nil {
		d.warnings.Addf(line, "bad timestamp %q", parse.Cell(cells, d.times.Single))
		return nil
	}
	id := d.deviceID(cells)
	if id == "" {
		d.warnings.Addf(line, "no device id")
		return nil
	}

	b := measurement.NewBuilder(measurement.LoggerLTI, id, ts)
	for i, cell := range cells {
		if err := d.columns[i].Apply(b, cell, d.loc); err != nil {
			d.warnings.Addf(line, "%v", err)
			return nil
		}
	}
	return b
}

func (d *decoding) deviceID(cells []string) string {
	if id := parse.Cell(cells, d.serialI); id != "" {
		return id
	}
	if d.serial != "" {
		return d.serial
	}
	return d.opts.LoggerID
}
