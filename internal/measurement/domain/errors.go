package measurement

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownFormat is matched by decode errors for logger types without a decoder.
	ErrUnknownFormat = errors.New("measurement: unknown format")
	// ErrStructuralViolation is matched by decode errors for inputs missing a required marker.
	ErrStructuralViolation = errors.New("measurement: structural violation")
	// ErrMissingTimestamp is returned when a record cannot be assigned a timestamp.
	ErrMissingTimestamp = errors.New("measurement: missing timestamp")
	// ErrMissingLoggerID is returned when a record cannot be assigned a logger id.
	ErrMissingLoggerID = errors.New("measurement: missing logger id")
	// ErrUnsortedSeries is returned when reconstruction input is not ordered by timestamp.
	ErrUnsortedSeries = errors.New("measurement: series not sorted by timestamp")
	// ErrMixedLoggers is returned when reconstruction input spans more than one logger.
	ErrMixedLoggers = errors.New("measurement: series spans multiple loggers")
	// ErrLoggerNotFound is returned when storage holds no record of a logger.
	ErrLoggerNotFound = errors.New("measurement: logger not found")
)

// ErrorKind classifies fatal decode errors.
type ErrorKind string

const (
	KindUnknownFormat       ErrorKind = "unknown_format"
	KindStructuralViolation ErrorKind = "structural_violation"
)

// DecodeError is a fatal decode failure. Nothing after it may be trusted.
type DecodeError struct {
	Kind       ErrorKind
	LoggerType LoggerType
	Line       int
	Reason     string
	Err        error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode ")
	if e.LoggerType != "" {
		b.WriteString(string(e.LoggerType))
		b.WriteString(" ")
	}
	b.WriteString(string(e.Kind))
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrUnknownFormat:
		return e.Kind == KindUnknownFormat
	case ErrStructuralViolation:
		return e.Kind == KindStructuralViolation
	}
	return false
}

// Structural builds a StructuralViolation error.
func Structural(loggerType LoggerType, line int, reason string) *DecodeError {
	return &DecodeError{Kind: KindStructuralViolation, LoggerType: loggerType, Line: line, Reason: reason}
}

// UnknownFormat builds an UnknownFormat error.
func UnknownFormat(loggerType LoggerType) *DecodeError {
	return &DecodeError{Kind: KindUnknownFormat, LoggerType: loggerType, Reason: "no decoder registered"}
}

// RowWarning records a skipped row or node. Line is 0 when the source has
// no lines. RowKept marks a field-level problem where the rest of the row
// was still emitted.
type RowWarning struct {
	LoggerType LoggerType `json:"loggerType"`
	Line       int        `json:"line,omitempty"`
	Reason     string     `json:"reason"`
	RowKept    bool       `json:"rowKept,omitempty"`
}

// SkippedRows counts the warnings that dropped a whole row or node.
func SkippedRows(warnings []RowWarning) int {
	n := 0
	for _, w := range warnings {
		if !w.RowKept {
			n++
		}
	}
	return n
}

func (w RowWarning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", w.LoggerType, w.Line, w.Reason)
	}
	return fmt.Sprintf("%s: %s", w.LoggerType, w.Reason)
}
