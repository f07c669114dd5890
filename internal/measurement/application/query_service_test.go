package application

import (
	"context"
	"testing"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
	"pv-telemetry/internal/measurement/infrastructure/memory"
)

func seedMeier(t *testing.T, repo *memory.MeasurementRepository, loc *time.Location) {
	t.Helper()
	var records []measurement.Measurement
	for day := 1; day <= 2; day++ {
		for hour := 8; hour <= 10; hour++ {
			records = append(records, measurement.Measurement{
				Timestamp:      time.Date(2024, 6, day, hour, 0, 0, 0, loc),
				LoggerID:       "M1",
				LoggerType:     measurement.LoggerMeier,
				EnergyDailyKWh: measurement.Float(1.5),
			})
		}
	}
	if err := repo.UpsertMeasurements(context.Background(), records); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestQuery_SeriesReconstructsFromLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	repo := memory.NewMeasurementRepository()
	seedMeier(t, repo, loc)
	rec, err := measurement.NewReconstructor(measurement.DefaultEnergySources(), measurement.ResetLocalMidnight, loc)
	if err != nil {
		t.Fatalf("reconstructor: %v", err)
	}
	svc, err := NewQueryService(repo, rec, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	from := time.Date(2024, 6, 1, 9, 30, 0, 0, loc)
	series, err := svc.Series(context.Background(), "M1", from, time.Time{})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(series) != 4 {
		t.Fatalf("expected 4 records, got %d", len(series))
	}
	// 10:00 on day one already carries the 08:00 and 09:00 deltas.
	if *series[0].EnergyDailyKWh != 4.5 {
		t.Fatalf("expected 4.5, got %v", *series[0].EnergyDailyKWh)
	}
	if *series[1].EnergyDailyKWh != 1.5 || *series[3].EnergyDailyKWh != 4.5 {
		t.Fatalf("expected reset at midnight, got %v %v", *series[1].EnergyDailyKWh, *series[3].EnergyDailyKWh)
	}
}

func TestQuery_SeriesLeavesCumulativeTypesAlone(t *testing.T) {
	repo := memory.NewMeasurementRepository()
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	err := repo.UpsertMeasurements(context.Background(), []measurement.Measurement{
		{Timestamp: ts, LoggerID: "G1", LoggerType: measurement.LoggerGoodWe, EnergyDailyKWh: measurement.Float(7)},
		{Timestamp: ts.Add(time.Hour), LoggerID: "G1", LoggerType: measurement.LoggerGoodWe, EnergyDailyKWh: measurement.Float(9)},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec, err := measurement.NewReconstructor(measurement.DefaultEnergySources(), measurement.ResetLocalMidnight, nil)
	if err != nil {
		t.Fatalf("reconstructor: %v", err)
	}
	svc, err := NewQueryService(repo, rec, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	series, err := svc.Series(context.Background(), "G1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(series) != 2 || *series[0].EnergyDailyKWh != 7 || *series[1].EnergyDailyKWh != 9 {
		t.Fatalf("unexpected series %+v", series)
	}

	loggers, err := svc.Loggers(context.Background())
	if err != nil || len(loggers) != 1 || loggers[0].RecordCount != 2 {
		t.Fatalf("unexpected loggers %+v %v", loggers, err)
	}
}

func TestQuery_NilReconstructorReturnsStoredValues(t *testing.T) {
	repo := memory.NewMeasurementRepository()
	seedMeier(t, repo, time.UTC)
	svc, err := NewQueryService(repo, nil, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	series, err := svc.Series(context.Background(), "M1", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(series) != 3 || *series[2].EnergyDailyKWh != 1.5 {
		t.Fatalf("unexpected series %+v", series)
	}
	if _, err := NewQueryService(nil, nil, nil); err != ErrNilQuery {
		t.Fatalf("expected ErrNilQuery, got %v", err)
	}
}
