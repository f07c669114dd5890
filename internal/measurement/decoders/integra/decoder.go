// Package integra decodes Integra XML exports:
// <System><DataPoint timestamp><Device serial type>measurements</Device>...
package integra

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const (
	elemSystem    = "System"
	elemDataPoint = "DataPoint"
)

// skipped names nodes that sit next to devices but never describe one.
var skipped = map[string]bool{
	"PowerManagement": true,
	"PMU":             true,
}

var elementTargets = map[string]parse.Column{
	"Pac":       {Target: parse.Power},
	"EDay":      {Target: parse.Energy},
	"ETotal":    {Target: parse.MetaNumber, Key: measurement.MetaEnergyTotalKWh},
	"Irr":       {Target: parse.Irradiance},
	"Udc":       {Target: parse.MetaNumber, Key: measurement.MetaVoltageDC},
	"Uac":       {Target: parse.MetaNumber, Key: measurement.MetaVoltageAC},
	"Fac":       {Target: parse.MetaNumber, Key: measurement.MetaFrequency},
	"Temp":      {Target: parse.MetaNumber, Key: measurement.MetaTemperature},
	"Error":     {Target: parse.MetaText, Key: measurement.MetaErrorCode},
	"ErrorTime": {Target: parse.MetaTime, Key: measurement.MetaErrorTimestamp},
}

// Decoder implements measurement.Decoder for Integra XML.
type Decoder struct{}

// New constructs a decoder.
func New() *Decoder { return &Decoder{} }

// Type returns the logger type.
func (*Decoder) Type() measurement.LoggerType { return measurement.LoggerIntegra }

// Decode starts a streaming token walk over src. Non-UTF-8 encodings named
// in the XML declaration are transcoded.
func (*Decoder) Decode(ctx context.Context, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	if src == nil {
		return nil, errors.New("integra: nil source")
	}
	dec := xml.NewDecoder(src)
	dec.CharsetReader = charset.NewReaderLabel
	d := &decoding{
		dec:      dec,
		loc:      opts.Zone(),
		warnings: parse.NewWarnings(measurement.LoggerIntegra),
	}
	return parse.NewStream(ctx, d.warnings, d.next, nil), nil
}

type decoding struct {
	dec      *xml.Decoder
	loc      *time.Location
	warnings *parse.Warnings

	started bool
	inPoint bool
	point   time.Time
}

func (d *decoding) line() int {
	line, _ := d.dec.InputPos()
	return line
}

func (d *decoding) structural(reason string) error {
	return measurement.Structural(measurement.LoggerIntegra, d.line(), reason)
}

func (d *decoding) token() (xml.Token, error) {
	tok, err := d.dec.Token()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, d.structural(fmt.Sprintf("malformed xml: %v", err))
	}
	return tok, nil
}

func (d *decoding) next() (*measurement.Builder, error) {
	if !d.started {
		if err := d.root(); err != nil {
			return nil, err
		}
		d.started = true
	}
	for {
		tok, err := d.token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == elemDataPoint {
				if err := d.enterPoint(t); err != nil {
					return nil, err
				}
				continue
			}
			if d.inPoint && isDevice(t) {
				return d.device(t)
			}
			if err := d.skip(); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == elemDataPoint {
				d.inPoint = false
			}
		}
	}
}

func (d *decoding) root() error {
	for {
		tok, err := d.token()
		if err == io.EOF {
			return d.structural("no root element")
		}
		if err != nil {
			return err
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != elemSystem {
				return d.structural(fmt.Sprintf("unexpected root element %q", start.Name.Local))
			}
			return nil
		}
	}
}

func (d *decoding) skip() error {
	if err := d.dec.Skip(); err != nil {
		return d.structural(fmt.Sprintf("malformed xml: %v", err))
	}
	return nil
}

// enterPoint opens a data point. One without a usable timestamp is skipped
// with a warning.
func (d *decoding) enterPoint(start xml.StartElement) error {
	raw := attr(start, "timestamp", "time")
	ts, err := parse.Timestamp(raw, d.loc)
	if err != nil {
		d.warnings.Addf(d.line(), "data point: bad timestamp %q", raw)
		d.inPoint = false
		return d.skip()
	}
	d.inPoint = true
	d.point = ts
	return nil
}

func isDevice(start xml.StartElement) bool {
	if skipped[start.Name.Local] {
		return false
	}
	return attr(start, "serial") != ""
}

// device consumes one device node. A known numeric measurement that is
// neither numeric nor a sentinel drops the whole node.
func (d *decoding) device(start xml.StartElement) (*measurement.Builder, error) {
	line := d.line()
	b := measurement.NewBuilder(measurement.LoggerIntegra, attr(start, "serial"), d.point)
	var bad error
	for {
		tok, err := d.token()
		if err != nil {
			if err == io.EOF {
				return nil, d.structural("unexpected end of input inside device")
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := d.dec.DecodeElement(&text, &t); err != nil {
				return nil, d.structural(fmt.Sprintf("malformed xml: %v", err))
			}
			if bad == nil {
				bad = d.measure(b, t.Name.Local, strings.TrimSpace(text))
			}
		case xml.EndElement:
			if bad != nil {
				d.warnings.Addf(line, "device %s: %v", attr(start, "serial"), bad)
				return nil, nil
			}
			if kind := attr(start, "type"); kind != "" && !b.Empty() {
				b.Meta(measurement.MetaDeviceType, measurement.Text(kind))
			}
			return b, nil
		}
	}
}

func (d *decoding) measure(b *measurement.Builder, name, text string) error {
	if isSentinel(text) {
		b.Absent()
		return nil
	}
	col, known := elementTargets[name]
	if !known {
		b.Meta(name, parse.VerbatimValue(text))
		return nil
	}
	col.Name = name
	return col.Apply(b, text, d.loc)
}

// isSentinel reports "no reading" markers: dash placeholders and run-state
// words.
func isSentinel(text string) bool {
	if parse.IsDashPlaceholder(text) {
		return true
	}
	switch strings.ToUpper(text) {
	case "OK", "RUN":
		return true
	}
	return false
}

func attr(start xml.StartElement, names ...string) string {
	for _, name := range names {
		for _, a := range start.Attr {
			if a.Name.Local == name {
				return strings.TrimSpace(a.Value)
			}
		}
	}
	return ""
}
