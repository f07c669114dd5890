package measurement

import "strings"

// LoggerType names the vendor format a record originates from.
type LoggerType string

const (
	LoggerGoodWe       LoggerType = "goodwe"
	LoggerLTI          LoggerType = "lti"
	LoggerMeier        LoggerType = "meier"
	LoggerMBMet        LoggerType = "mbmet"
	LoggerMeteocontrol LoggerType = "meteocontrol"
	LoggerIntegra      LoggerType = "integra"
	LoggerPlexlog      LoggerType = "plexlog"
	LoggerSmartDog     LoggerType = "smartdog"
)

var knownLoggerTypes = []LoggerType{
	LoggerGoodWe,
	LoggerLTI,
	LoggerMeier,
	LoggerMBMet,
	LoggerMeteocontrol,
	LoggerIntegra,
	LoggerPlexlog,
	LoggerSmartDog,
}

// LoggerTypes returns every known logger type in a stable order.
func LoggerTypes() []LoggerType {
	return append([]LoggerType(nil), knownLoggerTypes...)
}

// IsValid reports whether the logger type is part of the closed enumeration.
func (t LoggerType) IsValid() bool {
	for _, known := range knownLoggerTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t LoggerType) String() string { return string(t) }

// ParseLoggerType normalizes a declared logger type. Unknown values fail
// with an UnknownFormat decode error.
func ParseLoggerType(value string) (LoggerType, error) {
	t := LoggerType(strings.ToLower(strings.TrimSpace(value)))
	if !t.IsValid() {
		return "", &DecodeError{Kind: KindUnknownFormat, LoggerType: t, Reason: "unsupported logger type"}
	}
	return t, nil
}
