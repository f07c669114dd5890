package measurement

import (
	"context"
	"time"
)

// Measurement is the canonical record every decoder produces.
type Measurement struct {
	Timestamp      time.Time  `json:"timestamp"`
	LoggerID       string     `json:"loggerId"`
	LoggerType     LoggerType `json:"loggerType"`
	ActivePowerW   *float64   `json:"activePowerWatts,omitempty"`
	EnergyDailyKWh *float64   `json:"energyDailyKwh,omitempty"`
	Irradiance     *float64   `json:"irradiance,omitempty"`
	Metadata       Metadata   `json:"metadata,omitempty"`
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 { return &v }

// Builder accumulates the fields of one record before it is emitted.
type Builder struct {
	loggerType LoggerType
	loggerID   string
	ts         time.Time
	power      *float64
	energy     *float64
	irradiance *float64
	meta       Metadata
	fields     int
	observed   bool
}

// NewBuilder starts a record for one logger at one instant.
func NewBuilder(loggerType LoggerType, loggerID string, ts time.Time) *Builder {
	return &Builder{loggerType: loggerType, loggerID: loggerID, ts: ts}
}

// Power sets the active power in watts; nil leaves it absent.
func (b *Builder) Power(v *float64) {
	if v != nil {
		b.power = Float(*v)
		b.fields++
	}
}

// Energy sets the energy field in kWh; nil leaves it absent.
func (b *Builder) Energy(v *float64) {
	if v != nil {
		b.energy = Float(*v)
		b.fields++
	}
}

// Irradiance sets irradiance in W/m²; nil leaves it absent.
func (b *Builder) Irradiance(v *float64) {
	if v != nil {
		b.irradiance = Float(*v)
		b.fields++
	}
}

// Absent notes a reading the source reported without a value: an empty
// cell or a sentinel. The record is still emitted with the field nil.
func (b *Builder) Absent() { b.observed = true }

// Meta stores a metadata value. A KindNone value counts as Absent.
func (b *Builder) Meta(key string, v Value) {
	if key == "" {
		return
	}
	if v.Kind() == KindNone {
		b.Absent()
		return
	}
	if b.meta == nil {
		b.meta = make(Metadata)
	}
	b.meta[key] = v
	b.fields++
}

// MetaFloat stores a numeric metadata value; nil is ignored.
func (b *Builder) MetaFloat(key string, v *float64) {
	if v != nil {
		b.Meta(key, Number(*v))
	}
}

// Empty reports whether no field was set and no absent reading was noted.
func (b *Builder) Empty() bool { return b.fields == 0 && !b.observed }

// Build validates the invariants and returns the record.
func (b *Builder) Build() (Measurement, error) {
	if b.ts.IsZero() {
		return Measurement{}, ErrMissingTimestamp
	}
	if b.loggerID == "" {
		return Measurement{}, ErrMissingLoggerID
	}
	meta := b.meta.Clone()
	if _, hasCode := meta[MetaErrorCode]; hasCode {
		if _, hasTS := meta[MetaErrorTimestamp]; !hasTS {
			meta[MetaErrorTimestamp] = Time(b.ts)
		}
	}
	return Measurement{
		Timestamp:      b.ts.UTC(),
		LoggerID:       b.loggerID,
		LoggerType:     b.loggerType,
		ActivePowerW:   b.power,
		EnergyDailyKWh: b.energy,
		Irradiance:     b.irradiance,
		Metadata:       meta,
	}, nil
}

// LoggerSummary describes one stored logger.
type LoggerSummary struct {
	LoggerID    string     `json:"loggerId"`
	LoggerType  LoggerType `json:"loggerType"`
	FirstSeen   time.Time  `json:"firstSeen"`
	LastSeen    time.Time  `json:"lastSeen"`
	RecordCount int64      `json:"recordCount"`
}

// Repository persists canonical records with upsert-by-(logger, timestamp).
type Repository interface {
	UpsertMeasurements(ctx context.Context, measurements []Measurement) error
}

// Query reads canonical records back.
type Query interface {
	ListByLogger(ctx context.Context, loggerID string, from, to time.Time) ([]Measurement, error)
	ListLoggers(ctx context.Context) ([]LoggerSummary, error)
}
