package goodwe

import (
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

// accumulator groups EAV rows into records. It holds the partial records of
// the current timestamp, one per logger in first-seen order, and hands them
// back when a row with a different timestamp arrives or input ends.
type accumulator struct {
	open    bool
	ts      time.Time
	order   []string
	partial map[string]*measurement.Builder
}

func newAccumulator() *accumulator {
	return &accumulator{partial: make(map[string]*measurement.Builder)}
}

// add returns the builder for (ts, loggerID) and any builders flushed by a
// change of timestamp.
func (a *accumulator) add(ts time.Time, loggerID string) (*measurement.Builder, []*measurement.Builder) {
	var flushed []*measurement.Builder
	if a.open && !a.ts.Equal(ts) {
		flushed = a.flush()
	}
	if !a.open {
		a.open = true
		a.ts = ts
	}
	b, ok := a.partial[loggerID]
	if !ok {
		b = measurement.NewBuilder(measurement.LoggerGoodWe, loggerID, ts)
		a.partial[loggerID] = b
		a.order = append(a.order, loggerID)
	}
	return b, flushed
}

// flush returns the open builders and resets the accumulator.
func (a *accumulator) flush() []*measurement.Builder {
	if !a.open {
		return nil
	}
	out := make([]*measurement.Builder, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.partial[id])
	}
	a.open = false
	a.ts = time.Time{}
	a.order = nil
	a.partial = make(map[string]*measurement.Builder)
	return out
}
