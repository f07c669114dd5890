package events

import (
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

// IngestionCompleted is published after a file was decoded and stored.
type IngestionCompleted struct {
	RunID      string
	LoggerType measurement.LoggerType
	Source     string
	LoggerIDs  []string
	From       time.Time
	To         time.Time
	Inserted   int
	Skipped    int
	OccurredAt time.Time
}
