package goodwe

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

func decode(t *testing.T, input string) ([]measurement.Measurement, []measurement.RowWarning) {
	t.Helper()
	stream, err := New().Decode(context.Background(), strings.NewReader(input), measurement.Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	records, warnings, err := measurement.Collect(stream)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return records, warnings
}

func TestDecode_MergesRowsOfOneTimestamp(t *testing.T) {
	input := "timestamp,loggerId,key,value\n" +
		"2024-06-01 10:00:00,INV1,pac,1500\n" +
		"2024-06-01 10:00:00,INV1,e_day,12.3\n"
	records, warnings := decode(t, input)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.LoggerID != "INV1" || rec.LoggerType != measurement.LoggerGoodWe {
		t.Fatalf("unexpected identity: %+v", rec)
	}
	if rec.ActivePowerW == nil || *rec.ActivePowerW != 1500 {
		t.Fatalf("expected power 1500, got %v", rec.ActivePowerW)
	}
	if rec.EnergyDailyKWh == nil || *rec.EnergyDailyKWh != 12.3 {
		t.Fatalf("expected energy 12.3, got %v", rec.EnergyDailyKWh)
	}
	want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if !rec.Timestamp.Equal(want) {
		t.Fatalf("expected %s, got %s", want, rec.Timestamp)
	}
}

func TestDecode_InterleavedLoggersKeepFirstSeenOrder(t *testing.T) {
	input := "2024-06-01 10:00:00,B,pac,2\n" +
		"2024-06-01 10:00:00,A,pac,1\n" +
		"2024-06-01 10:00:00,B,e_day,5\n" +
		"2024-06-01 10:05:00,A,pac,3\n"
	records, _ := decode(t, input)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].LoggerID != "B" || records[1].LoggerID != "A" || records[2].LoggerID != "A" {
		t.Fatalf("unexpected order: %s %s %s", records[0].LoggerID, records[1].LoggerID, records[2].LoggerID)
	}
	if records[0].EnergyDailyKWh == nil || *records[0].EnergyDailyKWh != 5 {
		t.Fatalf("expected non-consecutive rows of B merged")
	}
}

func TestDecode_SkipsMalformedRows(t *testing.T) {
	input := "2024-06-01 10:00:00,INV1,pac,1500\n" +
		"2024-06-01 10:00:00,INV1,e_day\n" +
		"not-a-time,INV1,pac,1\n" +
		"2024-06-01 10:00:00,,pac,1\n" +
		"2024-06-01 10:00:00,INV1,e_day,abc\n"
	records, warnings := decode(t, input)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].EnergyDailyKWh != nil {
		t.Fatalf("expected energy absent, got %v", *records[0].EnergyDailyKWh)
	}
	if len(warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(warnings), warnings)
	}
	if warnings[0].Line != 2 || warnings[0].LoggerType != measurement.LoggerGoodWe {
		t.Fatalf("unexpected first warning: %+v", warnings[0])
	}
}

func TestDecode_GroupOfRejectedRowsIsNotEmitted(t *testing.T) {
	input := "2024-06-01 10:00:00,INV1,pac,x\n" +
		"2024-06-01 10:05:00,INV1,pac,10\n"
	records, warnings := decode(t, input)
	if len(records) != 1 || len(warnings) != 1 {
		t.Fatalf("expected 1 record and 1 warning, got %d and %d", len(records), len(warnings))
	}
}

func TestDecode_UnknownKeysAndErrorCodes(t *testing.T) {
	input := "2024-06-01 10:00:00,INV1,mode,Normal\n" +
		"2024-06-01 10:00:00,INV1,pv1_voltage,601.5\n" +
		"2024-06-01 10:00:00,INV1,riso,---\n" +
		"2024-06-01 10:00:00,INV1,error_code,F07\n" +
		"2024-06-01 10:05:00,INV1,error_code,0\n" +
		"2024-06-01 10:05:00,INV1,pac,-\n"
	records, warnings := decode(t, input)
	if len(records) != 2 || len(warnings) != 0 {
		t.Fatalf("expected 2 records and no warnings, got %d and %v", len(records), warnings)
	}
	if night := records[1]; night.ActivePowerW != nil || len(night.Metadata) != 0 {
		t.Fatalf("expected second reading with absent values, got %+v", night)
	}
	meta := records[0].Metadata
	if _, ok := meta["riso"]; ok {
		t.Fatalf("dash placeholder leaked into metadata: %v", meta)
	}
	if s, ok := meta["mode"].Str(); !ok || s != "Normal" {
		t.Fatalf("expected mode text, got %v", meta["mode"])
	}
	if v, ok := meta.Float("pv1_voltage"); !ok || v != 601.5 {
		t.Fatalf("expected numeric pv1_voltage, got %v", meta["pv1_voltage"])
	}
	if code, _ := meta[measurement.MetaErrorCode].Str(); code != "F07" {
		t.Fatalf("expected error code F07, got %v", meta[measurement.MetaErrorCode])
	}
	if at, ok := meta[measurement.MetaErrorTimestamp].Timestamp(); !ok || !at.Equal(records[0].Timestamp) {
		t.Fatalf("expected error timestamp defaulted to record timestamp")
	}
}

func TestDecode_NilContextDefaultsToBackground(t *testing.T) {
	//nolint:staticcheck // a nil context must not panic
	stream, err := New().Decode(nil, strings.NewReader("2024-06-01 10:00:00,INV1,pac,5\n"), measurement.Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	records, _, err := measurement.Collect(stream)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected 1 record, got %d (%v)", len(records), err)
	}
}

func TestDecode_WallClockUsesLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	stream, err := New().Decode(context.Background(),
		strings.NewReader("2024-06-01 10:00:00,INV1,pac,1\n"),
		measurement.Options{Location: berlin})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	records, _, err := measurement.Collect(stream)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if len(records) != 1 || !records[0].Timestamp.Equal(want) {
		t.Fatalf("expected %s, got %+v", want, records)
	}
}

func TestDecode_IsDeterministic(t *testing.T) {
	input := "2024-06-01 10:00:00,A,pac,1\n2024-06-01 10:00:00,A,temp,40\n2024-06-01 10:00:00,B,pac,2\n"
	first, _ := decode(t, input)
	second, _ := decode(t, input)
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("repeat decode differs:\n%s\n%s", a, b)
	}
}

func TestDecode_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := New().Decode(ctx, strings.NewReader("2024-06-01 10:00:00,A,pac,1\n"), measurement.Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cancel()
	if _, err := stream.Next(); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
