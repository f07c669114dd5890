package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

func TestDefaultCatalog_CoversEveryLoggerType(t *testing.T) {
	c := DefaultCatalog()
	for _, lt := range measurement.LoggerTypes() {
		if len(c.Codes(lt)) == 0 {
			t.Fatalf("no codes for %s", lt)
		}
	}
	def, ok := c.Lookup(measurement.LoggerGoodWe, "E004")
	if !ok || def.Severity != SeverityCritical || def.Description != "Inverter Overtemperature" {
		t.Fatalf("unexpected E004 definition %+v", def)
	}
	def, ok = c.Lookup(measurement.LoggerGoodWe, "F01")
	if ok || def.Severity != SeverityWarning || def.Description != "Unknown error code: F01" {
		t.Fatalf("unexpected fallback %+v", def)
	}
}

func TestParseCatalog_RejectsBadEntries(t *testing.T) {
	if _, err := ParseCatalog([]byte("fronius:\n  X: {severity: info}\n")); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected unknown logger type error, got %v", err)
	}
	if _, err := ParseCatalog([]byte("goodwe:\n  X: {severity: fatal}\n")); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected severity error, got %v", err)
	}
}

func TestLoadCatalog_MergesOverBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.yaml")
	if err := os.WriteFile(path, []byte("goodwe:\n  E001: {description: Grid Voltage, severity: critical, fix: Call utility}\n  E900: {description: Custom, severity: info, fix: None}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def, _ := c.Lookup(measurement.LoggerGoodWe, "E001"); def.Severity != SeverityCritical {
		t.Fatalf("expected override, got %+v", def)
	}
	if _, ok := c.Lookup(measurement.LoggerGoodWe, "E900"); !ok {
		t.Fatalf("expected added code")
	}
	if _, ok := c.Lookup(measurement.LoggerGoodWe, "E010"); !ok {
		t.Fatalf("expected builtin code kept")
	}
}

func TestBuildReport_SortsBySeverityThenCount(t *testing.T) {
	to := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -7)
	at := func(h int) time.Time { return from.Add(time.Duration(h) * time.Hour) }
	occ := []Occurrence{
		{at(5), "E001"}, {at(1), "E001"}, {at(9), "E001"},
		{at(2), "E004"},
		{at(3), "ZZZ"}, {at(4), "ZZZ"}, {at(6), "ZZZ"}, {at(7), "ZZZ"},
		{at(8), "0"}, {at(8), ""},
	}
	r := BuildReport(DefaultCatalog(), "INV1", measurement.LoggerGoodWe, from, to, occ, 2)
	if r.OverallHealth != HealthCritical || r.IssueCount != 3 || len(r.Issues) != 2 || r.Days != 7 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Issues[0].Code != "E004" {
		t.Fatalf("expected critical first, got %s", r.Issues[0].Code)
	}
	// Both remaining codes are warnings; the unknown code occurs more often.
	if r.Issues[1].Code != "ZZZ" || r.Issues[1].Known {
		t.Fatalf("expected unknown ZZZ second, got %+v", r.Issues[1])
	}
	if r.Summary != "Found 3 issue(s) - System health: CRITICAL" {
		t.Fatalf("unexpected summary %q", r.Summary)
	}

	full := BuildReport(DefaultCatalog(), "INV1", measurement.LoggerGoodWe, from, to, occ, 0)
	e001 := full.Issues[2]
	if e001.Code != "E001" || e001.Occurrences != 3 || !e001.FirstSeen.Equal(at(1)) || !e001.LastSeen.Equal(at(9)) {
		t.Fatalf("unexpected E001 issue %+v", e001)
	}
}

func TestBuildReport_Health(t *testing.T) {
	to := time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -1)
	cases := []struct {
		code string
		want Health
	}{
		{"", HealthGood},
		{"F03", HealthInfo},
		{"F01", HealthWarning},
	}
	for _, tc := range cases {
		var occ []Occurrence
		if tc.code != "" {
			occ = []Occurrence{{from, tc.code}}
		}
		r := BuildReport(DefaultCatalog(), "L1", measurement.LoggerLTI, from, to, occ, 20)
		if r.OverallHealth != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.code, tc.want, r.OverallHealth)
		}
	}
}
