package parse

import (
	"fmt"
	"strings"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

// Target says where a column value lands in a record.
type Target uint8

const (
	// Verbatim stores the value under the column name, as a number when
	// numeric and as text otherwise.
	Verbatim Target = iota
	Power
	Energy
	Irradiance
	MetaNumber
	MetaText
	MetaTime
	// Skip ignores the column. Identity and timestamp columns use it.
	Skip
)

// Column binds a header name to its target.
type Column struct {
	Name   string
	Target Target
	Key    string
	// Scale multiplies numeric values; zero means 1.
	Scale float64
}

// Apply writes one cell into b. Empty cells and dash placeholders are noted
// as absent readings.
func (c Column) Apply(b *measurement.Builder, cell string, loc *time.Location) error {
	cell = strings.TrimSpace(cell)
	if c.Target == Skip {
		return nil
	}
	if cell == "" {
		b.Absent()
		return nil
	}
	switch c.Target {
	case Verbatim:
		b.Meta(c.Name, VerbatimValue(cell))
		return nil
	case MetaText:
		if c.Key == measurement.MetaErrorCode && cell == "0" {
			b.Absent()
			return nil
		}
		b.Meta(c.Key, measurement.Text(cell))
		return nil
	case MetaTime:
		at, err := Timestamp(cell, loc)
		if err != nil {
			return fmt.Errorf("%s: bad timestamp %q", c.Name, cell)
		}
		b.Meta(c.Key, measurement.Time(at))
		return nil
	}

	if IsDashPlaceholder(cell) {
		b.Absent()
		return nil
	}
	v, err := Number(cell)
	if err != nil {
		return fmt.Errorf("%s: bad value %q", c.Name, cell)
	}
	if c.Scale != 0 {
		v = Scale(v, c.Scale)
	}
	switch c.Target {
	case Power:
		b.Power(v)
	case Energy:
		b.Energy(v)
	case Irradiance:
		b.Irradiance(v)
	case MetaNumber:
		b.MetaFloat(c.Key, v)
	}
	return nil
}

// VerbatimValue keeps an unknown cell as a number when it parses as one.
// Empty cells and dash placeholders yield the zero Value.
func VerbatimValue(cell string) measurement.Value {
	cell = strings.TrimSpace(cell)
	if cell == "" || IsDashPlaceholder(cell) {
		return measurement.Value{}
	}
	if v, err := Number(cell); err == nil && v != nil {
		return measurement.Number(*v)
	}
	return measurement.Text(cell)
}

// TimeColumns locates the timestamp of a row: one combined column, or a
// date column plus a time-of-day column.
type TimeColumns struct {
	Single int
	Date   int
	Clock  int
}

// FindTimeColumns resolves timestamp columns from normalized header keys.
// A separate date+time pair wins over a single combined column.
func FindTimeColumns(keys []string, single, date, clock []string) (TimeColumns, bool) {
	cols := TimeColumns{Single: indexOf(keys, single), Date: indexOf(keys, date), Clock: indexOf(keys, clock)}
	if cols.Date >= 0 && cols.Clock >= 0 {
		cols.Single = -1
		return cols, true
	}
	if cols.Single < 0 && cols.Date >= 0 {
		cols.Single = cols.Date
	}
	if cols.Single < 0 && cols.Clock >= 0 {
		cols.Single = cols.Clock
	}
	cols.Date, cols.Clock = -1, -1
	return cols, cols.Single >= 0
}

// Parse reads the timestamp of one row.
func (c TimeColumns) Parse(cells []string, loc *time.Location) (time.Time, error) {
	if c.Single >= 0 {
		return Timestamp(Cell(cells, c.Single), loc)
	}
	return DateAndClock(Cell(cells, c.Date), Cell(cells, c.Clock), loc)
}

// Uses reports whether column i carries timestamp data.
func (c TimeColumns) Uses(i int) bool {
	return i == c.Single || i == c.Date || i == c.Clock
}

func indexOf(keys []string, names []string) int {
	for _, name := range names {
		for i, k := range keys {
			if k == name {
				return i
			}
		}
	}
	return -1
}

// Keys normalizes a header row with ColumnKey.
func Keys(header []string) []string {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = ColumnKey(h)
	}
	return keys
}
