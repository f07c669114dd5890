// Package mbmet decodes MBMET weather-station exports. They share the
// header/units convention of Meier files but carry no power channel.
package mbmet

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const separator = ";"

const (
	metaAmbientTemperature = "ambientTemperature"
	metaHumidity           = "humidity"
	metaWindSpeed          = "windSpeed"
)

var (
	isHeader   = parse.HeaderStartsWith("date", "datetime", "timestamp", "datum", "zeit")
	singleKeys = []string{"timestamp", "datetime"}
	dateKeys   = []string{"date", "datum"}
	clockKeys  = []string{"time", "zeit", "uhrzeit"}
)

// Decoder implements measurement.Decoder for MBMET files.
type Decoder struct{}

// New constructs a decoder.
func New() *Decoder { return &Decoder{} }

// Type returns the logger type.
func (*Decoder) Type() measurement.LoggerType { return measurement.LoggerMBMet }

// Decode starts a lazy decode of src.
func (*Decoder) Decode(ctx context.Context, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	if src == nil {
		return nil, errors.New("mbmet: nil source")
	}
	d := &decoding{
		lines:    parse.NewLines(src),
		loggerID: opts.LoggerID,
		loc:      opts.Zone(),
		warnings: parse.NewWarnings(measurement.LoggerMBMet),
	}
	return parse.NewStream(ctx, d.warnings, d.next, nil), nil
}

type decoding struct {
	lines    *parse.Lines
	loggerID string
	loc      *time.Location
	warnings *parse.Warnings

	started    bool
	columns    []parse.Column
	times      parse.TimeColumns
	irradiance int
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
		return parse.BlockError(measurement.LoggerMBMet, d.lines, err)
	}
	for _, line := range block.Meta {
		if id, ok := parse.MetaValue(line, "serial"); ok {
			d.loggerID = id
		} else if id, ok := parse.MetaValue(line, "station"); ok && d.loggerID == "" {
			d.loggerID = id
		}
	}
	keys := parse.Keys(block.Header)
	times, ok := parse.FindTimeColumns(keys, singleKeys, dateKeys, clockKeys)
	if !ok {
		return measurement.Structural(measurement.LoggerMBMet, block.HeaderLine, "header has no timestamp column")
	}
	d.times = times
	d.irradiance = -1
	d.columns = make([]parse.Column, len(block.Header))
	for i, name := range block.Header {
		col := sensorColumn(name)
		if times.Uses(i) {
			col = parse.Column{Name: name, Target: parse.Skip}
		}
		if d.irradiance < 0 && strings.HasPrefix(keys[i], "irradiance") {
			d.irradiance = i
		}
		d.columns[i] = col
	}
	return nil
}

// sensorColumn maps a header name. Orientation-suffixed sensors become
// metadata keys carrying the orientation.
func sensorColumn(name string) parse.Column {
	lower := strings.ToLower(name)
	numeric := func(key string) parse.Column {
		return parse.Column{Name: name, Target: parse.MetaNumber, Key: key}
	}
	switch {
	case lower == "irradiance":
		return parse.Column{Name: name, Target: parse.Skip}
	case strings.HasPrefix(lower, "irradiance_"):
		return numeric("irradiance" + orientation(name[len("irradiance_"):]))
	case strings.HasPrefix(lower, "temp_module_"):
		return numeric("moduleTemperature" + orientation(name[len("temp_module_"):]))
	case lower == "temp_ambient":
		return numeric(metaAmbientTemperature)
	case lower == "humidity":
		return numeric(metaHumidity)
	case lower == "wind_speed":
		return numeric(metaWindSpeed)
	}
	return parse.Column{Name: name, Target: parse.Verbatim}
}

func orientation(suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return ""
	}
	r := []rune(suffix)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
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
	b := measurement.NewBuilder(measurement.LoggerMBMet, d.loggerID, ts)
	for i, cell := range cells {
		if err := d.columns[i].Apply(b, cell, d.loc); err != nil {
			d.warnings.Addf(line, "%v", err)
			return nil
		}
	}
	if d.irradiance >= 0 {
		top := parse.Column{Name: d.columns[d.irradiance].Name, Target: parse.Irradiance}
		if err := top.Apply(b, parse.Cell(cells, d.irradiance), d.loc); err != nil {
			d.warnings.Addf(line, "%v", err)
			return nil
		}
	}
	return b
}
