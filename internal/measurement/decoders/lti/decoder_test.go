package lti

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

func collect(t *testing.T, input string, opts measurement.Options) ([]measurement.Measurement, []measurement.RowWarning, error) {
	t.Helper()
	stream, err := New().Decode(context.Background(), strings.NewReader(input), opts)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return measurement.Collect(stream)
}

const sample = `site=Roof A
serial=LTI-7
[DATA]
timestamp;pac;e_int;e_total;uac;error
2024-06-01 10:00:00;1200;250;5400,5;230.1;
2024-06-01 10:05:00;1300;300;5400,8;230.4;E12
`

func TestDecode_Sample(t *testing.T) {
	records, warnings, err := collect(t, sample, measurement.Options{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.LoggerID != "LTI-7" {
		t.Fatalf("expected serial from header, got %q", first.LoggerID)
	}
	if first.ActivePowerW == nil || *first.ActivePowerW != 1200 {
		t.Fatalf("unexpected power %v", first.ActivePowerW)
	}
	if first.EnergyDailyKWh != nil {
		t.Fatalf("interval energy must not populate energyDailyKwh")
	}
	if v, ok := first.Metadata.Float(measurement.MetaEnergyIntervalKWh); !ok || v != 0.25 {
		t.Fatalf("expected interval 0.25 kWh, got %v", v)
	}
	if v, ok := first.Metadata.Float(measurement.MetaEnergyTotalKWh); !ok || v != 5400.5 {
		t.Fatalf("expected total 5400.5, got %v", v)
	}
	if code, _ := records[1].Metadata[measurement.MetaErrorCode].Str(); code != "E12" {
		t.Fatalf("expected error code E12, got %v", records[1].Metadata)
	}
	if !records[1].Timestamp.Equal(time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", records[1].Timestamp)
	}
}

func TestDecode_MissingMarkerIsStructural(t *testing.T) {
	_, _, err := collect(t, "serial=1\ntimestamp;pac\n2024-06-01 10:00:00;1\n", measurement.Options{})
	if !errors.Is(err, measurement.ErrStructuralViolation) {
		t.Fatalf("expected structural violation, got %v", err)
	}
	var derr *measurement.DecodeError
	if !errors.As(err, &derr) || derr.Line != 3 || derr.LoggerType != measurement.LoggerLTI {
		t.Fatalf("unexpected error detail: %#v", err)
	}
}

func TestDecode_MarkerWithoutRowsIsEmpty(t *testing.T) {
	for _, input := range []string{"serial=1\n[data]\n", "serial=1\n[data]\ntimestamp;pac\n"} {
		records, warnings, err := collect(t, input, measurement.Options{})
		if err != nil {
			t.Fatalf("collect %q: %v", input, err)
		}
		if len(records) != 0 || len(warnings) != 0 {
			t.Fatalf("expected empty result for %q", input)
		}
	}
}

func TestDecode_HeaderWithoutTimestampIsStructural(t *testing.T) {
	_, _, err := collect(t, "[data]\npac;e_int\n1;2\n", measurement.Options{})
	if !errors.Is(err, measurement.ErrStructuralViolation) {
		t.Fatalf("expected structural violation, got %v", err)
	}
}

func TestDecode_DeviceIDFallbacks(t *testing.T) {
	input := "[data]\ntimestamp;serial;pac\n2024-06-01 10:00:00;ROW-1;5\n2024-06-01 10:00:00;;6\n"
	records, _, err := collect(t, input, measurement.Options{LoggerID: "fallback"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 2 || records[0].LoggerID != "ROW-1" || records[1].LoggerID != "fallback" {
		t.Fatalf("unexpected ids: %+v", records)
	}

	records, warnings, err := collect(t, "[data]\ntimestamp;pac\n2024-06-01 10:00:00;5\n", measurement.Options{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 0 || len(warnings) != 1 {
		t.Fatalf("expected row warning without any id, got %d records %d warnings", len(records), len(warnings))
	}
}

func TestDecode_BadRowsAreWarnings(t *testing.T) {
	input := "serial=X\n[data]\ntimestamp;pac\nyesterday;5\n2024-06-01 10:00:00;abc\n2024-06-01 10:05:00;7\n"
	records, warnings, err := collect(t, input, measurement.Options{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || len(warnings) != 2 {
		t.Fatalf("expected 1 record and 2 warnings, got %d and %d", len(records), len(warnings))
	}
	if warnings[0].Line != 4 || warnings[1].Line != 5 {
		t.Fatalf("unexpected warning lines: %v", warnings)
	}
}
