package application

import (
	"context"
	"errors"
	"testing"
	"time"

	diagnostics "pv-telemetry/internal/diagnostics/domain"
	measurement "pv-telemetry/internal/measurement/domain"
	"pv-telemetry/internal/measurement/infrastructure/memory"
)

func newService(t *testing.T, repo *memory.MeasurementRepository, now time.Time) *Service {
	t.Helper()
	scanner, err := NewQueryScanner(repo, repo)
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}
	svc, err := NewService(scanner, nil, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	svc.now = func() time.Time { return now }
	return svc
}

func TestDiagnose_ScansWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := memory.NewMeasurementRepository()
	rec := func(ts time.Time, code string) measurement.Measurement {
		m := measurement.Measurement{Timestamp: ts, LoggerID: "INV1", LoggerType: measurement.LoggerGoodWe, ActivePowerW: measurement.Float(1)}
		if code != "" {
			m.Metadata = measurement.Metadata{measurement.MetaErrorCode: measurement.Text(code)}
		}
		return m
	}
	err := repo.UpsertMeasurements(context.Background(), []measurement.Measurement{
		rec(now.Add(-30*24*time.Hour), "E003"),
		rec(now.Add(-48*time.Hour), "E001"),
		rec(now.Add(-47*time.Hour), "E001"),
		rec(now.Add(-time.Hour), "E008"),
		rec(now.Add(-30*time.Minute), ""),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := newService(t, repo, now).Diagnose(context.Background(), "INV1", 0)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if report.Days != DefaultDays || report.LoggerType != measurement.LoggerGoodWe {
		t.Fatalf("unexpected report header %+v", report)
	}
	if report.OverallHealth != diagnostics.HealthWarning || report.IssueCount != 2 {
		t.Fatalf("expected 2 warnings, got %+v", report)
	}
	if report.Issues[0].Code != "E001" || report.Issues[0].Occurrences != 2 {
		t.Fatalf("expected E001 first, got %+v", report.Issues[0])
	}
}

func TestDiagnose_Errors(t *testing.T) {
	svc := newService(t, memory.NewMeasurementRepository(), time.Now())
	if _, err := svc.Diagnose(context.Background(), "missing", 7); !errors.Is(err, measurement.ErrLoggerNotFound) {
		t.Fatalf("expected ErrLoggerNotFound, got %v", err)
	}
	for _, days := range []int{-1, 31} {
		if _, err := svc.Diagnose(context.Background(), "x", days); !errors.Is(err, ErrInvalidDays) {
			t.Fatalf("days %d: expected ErrInvalidDays, got %v", days, err)
		}
	}
	if _, err := NewService(nil, nil, nil); !errors.Is(err, ErrNilScanner) {
		t.Fatalf("expected ErrNilScanner, got %v", err)
	}
}
