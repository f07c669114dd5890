package parse

import (
	"fmt"

	measurement "pv-telemetry/internal/measurement/domain"
)

// Warnings collects row-level problems for one decode invocation.
type Warnings struct {
	loggerType measurement.LoggerType
	list       []measurement.RowWarning
}

// NewWarnings starts an empty collector.
func NewWarnings(loggerType measurement.LoggerType) *Warnings {
	return &Warnings{loggerType: loggerType}
}

// Addf records a skipped row; line 0 means no line context.
func (w *Warnings) Addf(line int, format string, args ...any) {
	w.add(line, false, format, args...)
}

// AddKeptf records a field-level problem on a row that is still emitted.
func (w *Warnings) AddKeptf(line int, format string, args ...any) {
	w.add(line, true, format, args...)
}

func (w *Warnings) add(line int, kept bool, format string, args ...any) {
	w.list = append(w.list, measurement.RowWarning{
		LoggerType: w.loggerType,
		Line:       line,
		Reason:     fmt.Sprintf(format, args...),
		RowKept:    kept,
	})
}

// List returns a copy of the collected warnings.
func (w *Warnings) List() []measurement.RowWarning {
	return append([]measurement.RowWarning(nil), w.list...)
}
