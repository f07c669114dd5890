package parse

import (
	"errors"
	"io"
	"strings"

	measurement "pv-telemetry/internal/measurement/domain"
)

var (
	// ErrNoHeader is returned when no header row is found.
	ErrNoHeader = errors.New("parse: header row not found")
	// ErrNoUnits is returned when the header row is not followed by a units row.
	ErrNoUnits = errors.New("parse: units row missing")
)

// HeaderBlock is the leading part of a header/units/data file.
type HeaderBlock struct {
	Meta       []string
	Header     []string
	Units      []string
	HeaderLine int
}

// ReadHeaderBlock consumes free-form metadata lines, the header row and the
// units row. The units row is never interpreted, but it must be present: a
// header followed by a data-like row or by EOF fails with ErrNoUnits.
func ReadHeaderBlock(lines *Lines, sep string, isHeader func(cells []string) bool) (HeaderBlock, error) {
	var block HeaderBlock
	for {
		text, err := lines.Next()
		if err == io.EOF {
			return block, ErrNoHeader
		}
		if err != nil {
			return block, err
		}
		if IsBlank(text, sep) {
			continue
		}
		cells := Split(text, sep)
		if isHeader(cells) {
			block.Header = cells
			block.HeaderLine = lines.Line()
			break
		}
		block.Meta = append(block.Meta, text)
	}

	text, err := lines.Next()
	if err == io.EOF {
		return block, ErrNoUnits
	}
	if err != nil {
		return block, err
	}
	units := Split(text, sep)
	if LooksLikeData(units) {
		return block, ErrNoUnits
	}
	block.Units = units
	return block, nil
}

// LooksLikeData reports whether a row starts with a timestamp or is mostly
// numeric.
func LooksLikeData(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	if IsTimestamp(cells[0]) || (len(cells) > 1 && IsTimestamp(cells[0]+" "+cells[1])) {
		return true
	}
	filled, numeric := 0, 0
	for _, c := range cells {
		if c == "" {
			continue
		}
		filled++
		if IsNumeric(c) {
			numeric++
		}
	}
	return filled > 0 && numeric*2 > filled
}

// HeaderStartsWith returns a header predicate matching rows whose first cell
// normalizes to one of names.
func HeaderStartsWith(names ...string) func(cells []string) bool {
	return func(cells []string) bool {
		if len(cells) == 0 {
			return false
		}
		first := ColumnKey(cells[0])
		for _, name := range names {
			if first == name {
				return true
			}
		}
		return false
	}
}

// MetaValue extracts the value of a "key<sep>value" metadata line, trying
// ':', ';' and '=' in turn. The key comparison ignores case and punctuation.
func MetaValue(line, key string) (string, bool) {
	for _, sep := range []string{":", ";", "="} {
		k, v, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		if ColumnKey(k) == ColumnKey(key) {
			v = strings.TrimSpace(strings.Trim(strings.TrimSpace(v), `";`))
			return v, v != ""
		}
	}
	return "", false
}

// BlockError maps ReadHeaderBlock failures to structural violations.
func BlockError(loggerType measurement.LoggerType, lines *Lines, err error) error {
	switch {
	case errors.Is(err, ErrNoHeader):
		return measurement.Structural(loggerType, lines.Line(), "header row not found")
	case errors.Is(err, ErrNoUnits):
		return measurement.Structural(loggerType, lines.Line(), "units row missing")
	}
	return err
}
