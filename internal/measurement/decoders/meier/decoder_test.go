package meier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

func collect(t *testing.T, input string) ([]measurement.Measurement, []measurement.RowWarning, error) {
	t.Helper()
	stream, err := New().Decode(context.Background(), strings.NewReader(input), measurement.Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return measurement.Collect(stream)
}

const sample = `Meier-NT Logger export
serial;MNT-0042
Date;Time;Pac;Yield;Temp;Status
;;[W];[kWh];[°C];
01.06.2024;10:00;1500;0,5;41,2;MPP
01.06.2024;10:15;1620;0,4;42,0;MPP
`

func TestDecode_Sample(t *testing.T) {
	records, warnings, err := collect(t, sample)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	rec := records[1]
	if rec.LoggerID != "MNT-0042" {
		t.Fatalf("expected serial from metadata, got %q", rec.LoggerID)
	}
	if !rec.Timestamp.Equal(time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", rec.Timestamp)
	}
	if rec.EnergyDailyKWh == nil || *rec.EnergyDailyKWh != 0.4 {
		t.Fatalf("expected raw yield 0.4, got %v", rec.EnergyDailyKWh)
	}
	if status, _ := rec.Metadata[measurement.MetaStatus].Str(); status != "MPP" {
		t.Fatalf("expected status text, got %v", rec.Metadata)
	}
}

func TestDecode_HeaderWithoutUnitsIsStructural(t *testing.T) {
	for _, input := range []string{
		"serial;1\nTimestamp;Pac\n2024-06-01 10:00:00;100\n",
		"serial;1\nTimestamp;Pac\n",
	} {
		_, _, err := collect(t, input)
		if !errors.Is(err, measurement.ErrStructuralViolation) {
			t.Fatalf("expected structural violation for %q, got %v", input, err)
		}
	}
}

func TestDecode_MissingHeaderIsStructural(t *testing.T) {
	_, _, err := collect(t, "just some text\nmore text\n")
	if !errors.Is(err, measurement.ErrStructuralViolation) {
		t.Fatalf("expected structural violation, got %v", err)
	}
}

func TestDecode_HeaderAndUnitsOnlyIsEmpty(t *testing.T) {
	records, warnings, err := collect(t, "serial;1\nTimestamp;Pac\n;[W]\n")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 0 || len(warnings) != 0 {
		t.Fatalf("expected empty result, got %d records", len(records))
	}
}

func TestDecode_PlaceholdersAndEmptyRowsStayAbsent(t *testing.T) {
	input := "serial;M1\nDate;Time;Pac;Riso\n;;[W];[kOhm]\n" +
		"01.06.2024;12:00;1500;---\n" +
		"01.06.2024;23:00;;\n"
	records, warnings, err := collect(t, input)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 2 || len(warnings) != 0 {
		t.Fatalf("expected 2 records and no warnings, got %d and %v", len(records), warnings)
	}
	if _, ok := records[0].Metadata["Riso"]; ok {
		t.Fatalf("dash placeholder leaked into metadata: %v", records[0].Metadata)
	}
	night := records[1]
	if night.ActivePowerW != nil || len(night.Metadata) != 0 {
		t.Fatalf("expected night row with absent values, got %+v", night)
	}
}
