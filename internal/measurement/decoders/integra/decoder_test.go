package integra

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

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<System name="Plant">
  <DataPoint timestamp="2024-06-01T10:00:00Z">
    <Device serial="INV-1" type="inverter">
      <Pac>1500</Pac>
      <EDay>3.2</EDay>
      <Temp>---</Temp>
      <Status>RUN</Status>
    </Device>
    <PowerManagement serial="PM-1">
      <Limit>70</Limit>
    </PowerManagement>
    <PMU serial="PMU-1"><Pac>5</Pac></PMU>
    <Meter><Pac>9</Pac></Meter>
    <Device serial="INV-2" type="inverter">
      <Pac>OK</Pac>
      <Error>E042</Error>
    </Device>
  </DataPoint>
  <DataPoint timestamp="2024-06-01T10:05:00Z">
    <Device serial="INV-1" type="inverter">
      <Pac>abc</Pac>
      <EDay>3.3</EDay>
    </Device>
    <Device serial="INV-2" type="inverter">
      <Pac>1200,5</Pac>
    </Device>
  </DataPoint>
</System>
`

func TestDecode_Sample(t *testing.T) {
	records, warnings, err := collect(t, sample)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(records), records)
	}
	for _, rec := range records {
		if rec.LoggerID == "PM-1" || rec.LoggerID == "PMU-1" {
			t.Fatalf("power management node leaked into output: %+v", rec)
		}
	}
	first := records[0]
	if first.LoggerID != "INV-1" || first.ActivePowerW == nil || *first.ActivePowerW != 1500 {
		t.Fatalf("unexpected first record %+v", first)
	}
	if _, ok := first.Metadata[measurement.MetaTemperature]; ok {
		t.Fatalf("dash sentinel must be absent")
	}
	if v, ok := first.Metadata["Status"]; ok {
		t.Fatalf("RUN sentinel must be absent, got %v", v)
	}
	if kind, _ := first.Metadata[measurement.MetaDeviceType].Str(); kind != "inverter" {
		t.Fatalf("expected device type, got %v", first.Metadata)
	}

	second := records[1]
	if second.ActivePowerW != nil {
		t.Fatalf("OK sentinel must be absent, got %v", *second.ActivePowerW)
	}
	if code, _ := second.Metadata[measurement.MetaErrorCode].Str(); code != "E042" {
		t.Fatalf("expected error code, got %v", second.Metadata)
	}

	third := records[2]
	if third.LoggerID != "INV-2" || !third.Timestamp.Equal(time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected third record %+v", third)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Reason, "INV-1") {
		t.Fatalf("expected one warning for the non-numeric Pac, got %v", warnings)
	}
}

func TestDecode_WrongRootIsStructural(t *testing.T) {
	_, _, err := collect(t, `<Plant><DataPoint timestamp="1717236000"/></Plant>`)
	if !errors.Is(err, measurement.ErrStructuralViolation) {
		t.Fatalf("expected structural violation, got %v", err)
	}
}

func TestDecode_BrokenMarkupIsStructural(t *testing.T) {
	_, _, err := collect(t, `<System><DataPoint timestamp="1717236000"><Device serial="A"><Pac>1</Device>`)
	if !errors.Is(err, measurement.ErrStructuralViolation) {
		t.Fatalf("expected structural violation, got %v", err)
	}
}

func TestDecode_EmptySystemIsEmpty(t *testing.T) {
	records, warnings, err := collect(t, `<System></System>`)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 0 || len(warnings) != 0 {
		t.Fatalf("expected empty result")
	}
}

func TestDecode_UnixTimestampAttribute(t *testing.T) {
	records, _, err := collect(t, `<System><DataPoint timestamp="1717236000"><Device serial="A"><Pac>1</Pac></Device></DataPoint></System>`)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || !records[0].Timestamp.Equal(time.Unix(1717236000, 0)) {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestDecode_UnknownElementsKeepValuesButNotSentinels(t *testing.T) {
	input := `<System><DataPoint timestamp="1717236000">` +
		`<Device serial="INV1" type="inv"><Pac>100</Pac><Riso>---</Riso><State>RUN</State><Mode>MPP</Mode></Device>` +
		`</DataPoint></System>`
	records, warnings, err := collect(t, input)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || len(warnings) != 0 {
		t.Fatalf("expected 1 record and no warnings, got %d and %v", len(records), warnings)
	}
	meta := records[0].Metadata
	if _, ok := meta["Riso"]; ok {
		t.Fatalf("dash placeholder leaked into metadata: %v", meta)
	}
	if _, ok := meta["State"]; ok {
		t.Fatalf("run-state word leaked into metadata: %v", meta)
	}
	if s, _ := meta["Mode"].Str(); s != "MPP" {
		t.Fatalf("expected verbatim Mode, got %v", meta["Mode"])
	}
}

func TestDecode_NightSampleOfSentinelsIsEmitted(t *testing.T) {
	input := `<System><DataPoint timestamp="2024-06-01T23:00:00Z">` +
		`<Device serial="INV1"><Pac>---</Pac><EDay>---</EDay></Device>` +
		`</DataPoint></System>`
	records, warnings, err := collect(t, input)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || len(warnings) != 0 {
		t.Fatalf("expected 1 record and no warnings, got %d and %v", len(records), warnings)
	}
	rec := records[0]
	if rec.LoggerID != "INV1" || rec.ActivePowerW != nil || rec.EnergyDailyKWh != nil {
		t.Fatalf("expected identity with absent values, got %+v", rec)
	}
}

func TestDecode_Latin1Declaration(t *testing.T) {
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<System><DataPoint timestamp=\"1717236000\"><Device serial=\"WR S\xfcd\"><Pac>10</Pac></Device></DataPoint></System>"
	records, _, err := collect(t, input)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || records[0].LoggerID != "WR Süd" {
		t.Fatalf("expected transcoded serial, got %+v", records)
	}
}
