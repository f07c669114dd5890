package mbmet

import (
	"context"
	"errors"
	"strings"
	"testing"

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

const sample = `MBMET 500 weather station
Station: WS-North
Timestamp;Irradiance_South;Irradiance_West;Temp_Module_South;Temp_Ambient;Humidity;Wind_Speed
;[W/m2];[W/m2];[°C];[°C];[%];[m/s]
2024-06-01 12:00:00;812,5;640;48,1;24,3;41;3,2
2024-06-01 12:05:00;---;650;48,4;24,5;40;2,9
`

func TestDecode_PairedSensors(t *testing.T) {
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
	if first.LoggerID != "WS-North" {
		t.Fatalf("expected station id, got %q", first.LoggerID)
	}
	if first.ActivePowerW != nil {
		t.Fatalf("weather stations carry no power")
	}
	if first.Irradiance == nil || *first.Irradiance != 812.5 {
		t.Fatalf("expected top-level irradiance from first column, got %v", first.Irradiance)
	}
	checks := map[string]float64{
		"irradianceSouth":        812.5,
		"irradianceWest":         640,
		"moduleTemperatureSouth": 48.1,
		"ambientTemperature":     24.3,
		"humidity":               41,
		"windSpeed":              3.2,
	}
	for key, want := range checks {
		if got, ok := first.Metadata.Float(key); !ok || got != want {
			t.Fatalf("%s: expected %v, got %v", key, want, first.Metadata[key])
		}
	}
	if records[1].Irradiance != nil {
		t.Fatalf("placeholder irradiance must stay absent")
	}
	if _, ok := records[1].Metadata["irradianceSouth"]; ok {
		t.Fatalf("placeholder irradiance must stay absent in metadata")
	}
}

func TestDecode_UsesOptionsLoggerID(t *testing.T) {
	records, _, err := collect(t, "Timestamp;Humidity\n;[%]\n2024-06-01 12:00:00;50\n", measurement.Options{LoggerID: "site-1"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || records[0].LoggerID != "site-1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestDecode_MissingUnitsIsStructural(t *testing.T) {
	_, _, err := collect(t, "Timestamp;Humidity\n2024-06-01 12:00:00;50\n", measurement.Options{LoggerID: "x"})
	if !errors.Is(err, measurement.ErrStructuralViolation) {
		t.Fatalf("expected structural violation, got %v", err)
	}
}
