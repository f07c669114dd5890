// Package meier decodes Meier-NT exports: metadata lines, a header row, a
// units row and semicolon data rows.
package meier

import (
	"context"
	"errors"
	"io"
	"time"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const separator = ";"

var (
	isHeader      = parse.HeaderStartsWith("date", "datetime", "timestamp", "datum", "zeit")
	singleKeys    = []string{"timestamp", "datetime"}
	dateKeys      = []string{"date", "datum"}
	clockKeys     = []string{"time", "zeit", "uhrzeit"}
	columnTargets = map[string]parse.Column{
		"yield":  {Target: parse.Energy},
		"pac":    {Target: parse.Power},
		"udc":    {Target: parse.MetaNumber, Key: measurement.MetaVoltageDC},
		"idc":    {Target: parse.MetaNumber, Key: measurement.MetaCurrentDC},
		"uac":    {Target: parse.MetaNumber, Key: measurement.MetaVoltageAC},
		"iac":    {Target: parse.MetaNumber, Key: measurement.MetaCurrentAC},
		"fac":    {Target: parse.MetaNumber, Key: measurement.MetaFrequency},
		"temp":   {Target: parse.MetaNumber, Key: measurement.MetaTemperature},
		"error":  {Target: parse.MetaText, Key: measurement.MetaErrorCode},
		"status": {Target: parse.MetaText, Key: measurement.MetaStatus},
	}
)

// Decoder implements measurement.Decoder for Meier-NT files.
type Decoder struct{}

// New constructs a decoder.
func New() *Decoder { return &Decoder{} }

// Type returns the logger type.
func (*Decoder) Type() measurement.LoggerType { return measurement.LoggerMeier }

// Decode starts a lazy decode of src.
func (*Decoder) Decode(ctx context.Context, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	if src == nil {
		return nil, errors.New("meier: nil source")
	}
	d := &decoding{
		lines:    parse.NewLines(src),
		loggerID: opts.LoggerID,
		loc:      opts.Zone(),
		warnings: parse.NewWarnings(measurement.LoggerMeier),
	}
	return parse.NewStream(ctx, d.warnings, d.next, nil), nil
}

type decoding struct {
	lines    *parse.Lines
	loggerID string
	loc      *time.Location
	warnings *parse.Warnings

	started bool
	columns []parse.Column
	times   parse.TimeColumns
}

func (d *decoding) next() (*measurement.Builder, error) {
	if !d.started {
		if err := d.start(); err != nil {
			return nil, err
		}
		d.started = true
	}
	for {
		text, err := d.lines.Next()
		if err != nil {
			return nil, err
		}
		if parse.IsBlank(text, separator) {
			continue
		}
		return d.row(text), nil
	}
}

func (d *decoding) start() error {
	block, err := parse.ReadHeaderBlock(d.lines, separator, isHeader)
	if err != nil {
		return parse.BlockError(measurement.LoggerMeier, d.lines, err)
	}
	for _, line := range block.Meta {
		if serial, ok := parse.MetaValue(line, "serial"); ok {
			d.loggerID = serial
		}
	}
	keys := parse.Keys(block.Header)
	times, ok := parse.FindTimeColumns(keys, singleKeys, dateKeys, clockKeys)
	if !ok {
		return measurement.Structural(measurement.LoggerMeier, block.HeaderLine, "header has no timestamp column")
	}
	d.times = times
	d.columns = make([]parse.Column, len(block.Header))
	for i, name := range block.Header {
		col, known := columnTargets[keys[i]]
		if !known {
			col = parse.Column{Target: parse.Verbatim}
		}
		if times.Uses(i) {
			col = parse.Column{Target: parse.Skip}
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
		d.warnings.Addf(line, "bad timestamp")
		return nil
	}
	if d.loggerID == "" {
		d.warnings.Addf(line, "no device id")
		return nil
	}
	b := measurement.NewBuilder(measurement.LoggerMeier, d.loggerID, ts)
	for i, cell := range cells {
		if err := d.columns[i].Apply(b, cell, d.loc); err != nil {
			d.warnings.Addf(line, "%v", err)
			return nil
		}
	}
	return b
}
