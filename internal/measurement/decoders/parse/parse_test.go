package parse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

func TestNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1500", 1500},
		{" 12.5 ", 12.5},
		{"12,5", 12.5},
		{"1.234,5", 1234.5},
		{"1,234.5", 1234.5},
		{"-3", -3},
	}
	for _, tc := range cases {
		got, err := Number(tc.in)
		if err != nil || got == nil {
			t.Fatalf("Number(%q): %v", tc.in, err)
		}
		if *got != tc.want {
			t.Fatalf("Number(%q) = %v, want %v", tc.in, *got, tc.want)
		}
	}
	if v, err := Number(""); v != nil || err != nil {
		t.Fatalf("empty must be absent")
	}
	if _, err := Number("abc"); !errors.Is(err, ErrBadNumber) {
		t.Fatalf("expected ErrBadNumber, got %v", err)
	}
}

func TestSentinels(t *testing.T) {
	if !IsDashPlaceholder("---") || !IsDashPlaceholder("-") {
		t.Fatalf("dash placeholders not detected")
	}
	if IsDashPlaceholder("-4.5") {
		t.Fatalf("negative number is not a placeholder")
	}
	if !IsNegativeZero("-0") || !IsNegativeZero("-0,0") {
		t.Fatalf("negative zero not detected")
	}
	if IsNegativeZero("0") {
		t.Fatalf("plain zero is a reading")
	}
}

func TestTimestamp(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*3600)
	got, err := Timestamp("2024-06-01 12:00:00", berlin)
	if err != nil {
		t.Fatalf("wall clock: %v", err)
	}
	if want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	got, err = Timestamp("1717236000", berlin)
	if err != nil || !got.Equal(time.Unix(1717236000, 0)) {
		t.Fatalf("unix seconds: %v %v", got, err)
	}
	got, err = Timestamp("2024-06-01T12:00:00+02:00", time.UTC)
	if err != nil || got.Hour() != 10 {
		t.Fatalf("offset timestamp: %v %v", got, err)
	}
	if _, err := Timestamp("yesterday", time.UTC); !errors.Is(err, ErrBadTimestamp) {
		t.Fatalf("expected ErrBadTimestamp, got %v", err)
	}
	got, err = Timestamp("20240601120000", berlin)
	if err != nil || !got.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("compact stamp must be wall clock, got %v %v", got, err)
	}
	for _, digits := range []string{"12345", "99999999999"} {
		if _, err := Timestamp(digits, time.UTC); !errors.Is(err, ErrBadTimestamp) {
			t.Fatalf("expected ErrBadTimestamp for %s, got %v", digits, err)
		}
	}
}

func TestClockAndCompactDate(t *testing.T) {
	day, err := CompactDate("310124", time.UTC)
	if err != nil {
		t.Fatalf("compact date: %v", err)
	}
	clock, err := Clock("24:00:00")
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	got := OnDay(day, clock)
	if want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if _, err := Clock("24:30:00"); err == nil {
		t.Fatalf("24:30 must be rejected")
	}
	if _, err := CompactDate("2024-01", time.UTC); err == nil {
		t.Fatalf("expected compact date error")
	}
}

func TestReadHeaderBlock(t *testing.T) {
	isHeader := func(cells []string) bool { return ColumnKey(cells[0]) == "timestamp" }

	src := "Export v2\nSerial: 123\nTimestamp;Pac\n;[W]\n2024-06-01 10:00:00;100\n"
	lines := NewLines(strings.NewReader(src))
	block, err := ReadHeaderBlock(lines, ";", isHeader)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if len(block.Meta) != 2 || block.HeaderLine != 3 || block.Header[1] != "Pac" {
		t.Fatalf("unexpected block %+v", block)
	}

	missingUnits := "Timestamp;Pac\n2024-06-01 10:00:00;100\n"
	if _, err := ReadHeaderBlock(NewLines(strings.NewReader(missingUnits)), ";", isHeader); !errors.Is(err, ErrNoUnits) {
		t.Fatalf("expected ErrNoUnits, got %v", err)
	}
	if _, err := ReadHeaderBlock(NewLines(strings.NewReader("just text\n")), ";", isHeader); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}

func TestLinesStripsBOMAndCR(t *testing.T) {
	lines := NewLines(strings.NewReader("\ufeffa;b\r\nc\r\n"))
	first, err := lines.Next()
	if err != nil || first != "a;b" {
		t.Fatalf("first line %q err=%v", first, err)
	}
	second, _ := lines.Next()
	if second != "c" || lines.Line() != 2 {
		t.Fatalf("second line %q at %d", second, lines.Line())
	}
}

func TestColumnApply(t *testing.T) {
	b := measurement.NewBuilder(measurement.LoggerLTI, "dev", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	cols := []struct {
		col  Column
		cell string
	}{
		{Column{Name: "Pac", Target: Power}, "1.500,5"},
		{Column{Name: "E_INT", Target: MetaNumber, Key: measurement.MetaEnergyIntervalKWh, Scale: 0.001}, "250"},
		{Column{Name: "Irr", Target: Irradiance}, "---"},
		{Column{Name: "Error", Target: MetaText, Key: measurement.MetaErrorCode}, "0"},
		{Column{Name: "Mode", Target: Verbatim}, "MPP"},
		{Column{Name: "Fan", Target: Verbatim}, "12"},
	}
	for _, c := range cols {
		if err := c.col.Apply(b, c.cell, time.UTC); err != nil {
			t.Fatalf("apply %s: %v", c.col.Name, err)
		}
	}
	if err := (Column{Name: "Pac", Target: Power}).Apply(b, "abc", time.UTC); err == nil {
		t.Fatalf("expected error for non-numeric power")
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.ActivePowerW == nil || *m.ActivePowerW != 1500.5 {
		t.Fatalf("unexpected power %v", m.ActivePowerW)
	}
	if v, ok := m.Metadata.Float(measurement.MetaEnergyIntervalKWh); !ok || v != 0.25 {
		t.Fatalf("unexpected interval energy %v", v)
	}
	if m.Irradiance != nil {
		t.Fatalf("expected placeholder irradiance to be absent")
	}
	if _, ok := m.Metadata[measurement.MetaErrorCode]; ok {
		t.Fatalf("expected error code 0 to be dropped")
	}
	if s, _ := m.Metadata["Mode"].Str(); s != "MPP" {
		t.Fatalf("expected verbatim text, got %v", m.Metadata["Mode"])
	}
	if v, ok := m.Metadata.Float("Fan"); !ok || v != 12 {
		t.Fatalf("expected verbatim number, got %v", m.Metadata["Fan"])
	}
}

func TestColumnApply_SentinelsAreAbsent(t *testing.T) {
	b := measurement.NewBuilder(measurement.LoggerMeier, "M1", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	for _, c := range []struct {
		col  Column
		cell string
	}{
		{Column{Name: "Riso", Target: Verbatim}, "---"},
		{Column{Name: "Pac", Target: Power}, ""},
		{Column{Name: "Yield", Target: Energy}, "-"},
	} {
		if err := c.col.Apply(b, c.cell, time.UTC); err != nil {
			t.Fatalf("apply %s: %v", c.col.Name, err)
		}
	}
	if b.Empty() {
		t.Fatalf("expected absent readings to keep the row")
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := m.Metadata["Riso"]; ok || m.ActivePowerW != nil || m.EnergyDailyKWh != nil {
		t.Fatalf("expected every value absent, got %+v", m)
	}
	if v := VerbatimValue(" --- "); v.Kind() != measurement.KindNone {
		t.Fatalf("expected placeholder to have no value, got %v", v)
	}
}

func TestFindTimeColumns(t *testing.T) {
	keys := Keys([]string{"Date", "Time", "Pac"})
	cols, ok := FindTimeColumns(keys, []string{"timestamp"}, []string{"date"}, []string{"time"})
	if !ok || cols.Single != -1 || cols.Date != 0 || cols.Clock != 1 {
		t.Fatalf("unexpected columns %+v", cols)
	}
	at, err := cols.Parse([]string{"01.06.2024", "10:15", "5"}, time.UTC)
	if err != nil || !at.Equal(time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s (%v)", at, err)
	}
	if _, ok := FindTimeColumns(Keys([]string{"Pac"}), []string{"timestamp"}, nil, nil); ok {
		t.Fatalf("expected no timestamp column")
	}
}

func TestStreamDropsEmptyBuildersAndStops(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	closed := 0
	produce := func() (*measurement.Builder, error) {
		n++
		switch n {
		case 1:
			return nil, nil
		case 2:
			return measurement.NewBuilder(measurement.LoggerLTI, "a", ts), nil
		case 3:
			b := measurement.NewBuilder(measurement.LoggerLTI, "a", ts)
			b.Power(measurement.Float(1))
			return b, nil
		}
		return nil, io.EOF
	}
	s := NewStream(context.Background(), NewWarnings(measurement.LoggerLTI), produce, func() error { closed++; return nil })
	records, warnings, err := measurement.Collect(s)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Reason, "no readings") {
		t.Fatalf("expected a warning for the empty builder, got %v", warnings)
	}
	if closed != 1 {
		t.Fatalf("expected closer called once, got %d", closed)
	}
}
