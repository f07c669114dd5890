// Package meteocontrol decodes meteocontrol WEB'log day files: an [info]
// block, a [messung] header with units, and [Start] data rows keyed by time
// of day. Two column schemas exist, one for site sensors and one per
// inverter.
package meteocontrol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const separator = ";"

const (
	sectionInfo    = "info"
	sectionMessung = "messung"
	sectionStart   = "start"
)

// Decoder implements measurement.Decoder for meteocontrol files.
type Decoder struct{}

// New constructs a decoder.
func New() *Decoder { return &Decoder{} }

// Type returns the logger type.
func (*Decoder) Type() measurement.LoggerType { return measurement.LoggerMeteocontrol }

// Decode starts a lazy decode of src. The sections before [Start] are read
// on the first call to Next.
func (*Decoder) Decode(ctx context.Context, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	if src == nil {
		return nil, errors.New("meteocontrol: nil source")
	}
	d := &decoding{
		lines:    parse.NewLines(src),
		opts:     opts,
		loc:      opts.Zone(),
		warnings: parse.NewWarnings(measurement.LoggerMeteocontrol),
	}
	return parse.NewStream(ctx, d.warnings, d.next, nil), nil
}

type decoding struct {
	lines    *parse.Lines
	opts     measurement.Options
	loc      *time.Location
	warnings *parse.Warnings

	started bool
	day     time.Time
	site    fileInfo
	table   *table
}

type fileInfo struct {
	site   string
	serial string
}

func (d *decoding) structural(line int, reason string) error {
	return measurement.Structural(measurement.LoggerMeteocontrol, line, reason)
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
		if parse.IsBlank(text, separator) || isInfoTimeLine(text) {
			continue
		}
		return d.row(text), nil
	}
}

func isInfoTimeLine(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "info;time")
}

func sectionName(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(s[1 : len(s)-1])), true
}

// start reads [info] and [messung] and stops right after the [Start] line.
func (d *decoding) start() error {
	var (
		current  string
		seen     = map[string]int{}
		info     strings.Builder
		messung  []string
		mLines   []int
		startsAt int
	)
	for startsAt == 0 {
		text, err := d.lines.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if name, ok := sectionName(text); ok {
			current = name
			seen[name] = d.lines.Line()
			if name == sectionStart {
				startsAt = d.lines.Line()
			}
			continue
		}
		switch current {
		case sectionInfo:
			info.WriteString(text)
			info.WriteByte('\n')
		case sectionMessung:
			if !parse.IsBlank(text, separator) {
				messung = append(messung, text)
				mLines = append(mLines, d.lines.Line())
			}
		}
	}
	for _, name := range []string{sectionInfo, sectionMessung, sectionStart} {
		if _, ok := seen[name]; !ok {
			return d.structural(d.lines.Line(), fmt.Sprintf("missing [%s] section", name))
		}
	}

	if err := d.readInfo(info.String(), seen[sectionInfo]); err != nil {
		return err
	}
	if len(messung) == 0 {
		return d.structural(seen[sectionMessung], "missing header row")
	}
	if len(messung) < 2 {
		return d.structural(mLines[0], "units row missing")
	}
	t, err := newTable(parse.Split(messung[0], separator))
	if err != nil {
		return d.structural(mLines[0], err.Error())
	}
	d.table = t
	return nil
}

func (d *decoding) readInfo(text string, line int) error {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true, IgnoreInlineComment: true}, []byte(text))
	if err != nil {
		return d.structural(line, "unreadable [info] section")
	}
	section := file.Section("")
	datum := strings.TrimSpace(section.Key("datum").String())
	if datum == "" {
		return d.structural(line, "missing Datum")
	}
	day, err := parse.CompactDate(datum, d.loc)
	if err != nil {
		return d.structural(line, fmt.Sprintf("malformed Datum %q", datum))
	}
	d.day = day
	d.site = fileInfo{
		site:   strings.TrimSpace(section.Key("anlage").String()),
		serial: strings.TrimSpace(section.Key("seriennummer").String()),
	}
	return nil
}

func (d *decoding) row(text string) *measurement.Builder {
	line := d.lines.Line()
	cells := parse.Split(text, separator)
	if len(cells) > len(d.table.columns) {
		d.warnings.Addf(line, "expected at most %d cells, got %d", len(d.table.columns), len(cells))
		return nil
	}
	clock, err := parse.Clock(parse.Cell(cells, d.table.clock))
	if err != nil {
		d.warnings.Addf(line, "bad time of day %q", parse.Cell(cells, d.table.clock))
		return nil
	}
	ts := parse.OnDay(d.day, clock)

	id := d.deviceID(cells)
	if id == "" {
		d.warnings.Addf(line, "no device id")
		return nil
	}
	b := measurement.NewBuilder(measurement.LoggerMeteocontrol, id, ts)
	for i, cell := range cells {
		if parse.IsNegativeZero(cell) {
			b.Absent()
			continue
		}
		if err := d.table.columns[i].Apply(b, cell, d.loc); err != nil {
			d.warnings.Addf(line, "%v", err)
			return nil
		}
	}
	if d.table.irradiance >= 0 {
		cell := parse.Cell(cells, d.table.irradiance)
		if !parse.IsNegativeZero(cell) {
			top := parse.Column{Name: d.table.columns[d.table.irradiance].Name, Target: parse.Irradiance}
			if err := top.Apply(b, cell, d.loc); err != nil {
				d.warnings.Addf(line, "%v", err)
				return nil
			}
		}
	}
	return b
}

func (d *decoding) deviceID(cells []string) string {
	if d.table.inverter {
		if serial := parse.Cell(cells, d.table.serial); serial != "" {
			return serial
		}
		if addr := parse.Cell(cells, d.table.address); addr != "" {
			return "addr-" + addr
		}
		return ""
	}
	switch {
	case d.site.serial != "":
		return d.site.serial
	case d.site.site != "":
		return d.site.site
	}
	return d.opts.LoggerID
}
