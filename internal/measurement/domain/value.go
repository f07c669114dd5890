package measurement

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// ValueKind enumerates the metadata value variants.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindNumber
	KindText
	KindTime
)

// Value is a metadata value: a number, a text or a timestamp.
type Value struct {
	kind ValueKind
	num  float64
	text string
	at   time.Time
}

// Number wraps a numeric metadata value.
func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

// Text wraps a textual metadata value.
func Text(v string) Value { return Value{kind: KindText, text: v} }

// Time wraps a timestamp metadata value, normalized to UTC.
func Time(v time.Time) Value { return Value{kind: KindTime, at: v.UTC()} }

// Kind returns the variant.
func (v Value) Kind() ValueKind { return v.kind }

// Float returns the numeric value.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the textual value.
func (v Value) Str() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// Timestamp returns the timestamp value.
func (v Value) Timestamp() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.at, true
}

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindTime:
		return v.at.Format(time.RFC3339)
	}
	return ""
}

// MarshalJSON encodes numbers as JSON numbers and timestamps as RFC 3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	case KindTime:
		return json.Marshal(v.at.Format(time.RFC3339Nano))
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes numbers and strings. Strings always decode as text;
// Metadata revives timestamps for the keys that hold them.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.New("measurement: metadata value must be number or string")
	}
	*v = Number(f)
	return nil
}

// Metadata holds secondary measurements and diagnostics.
type Metadata map[string]Value

// Well-known metadata keys shared across decoders.
const (
	MetaErrorCode         = "errorCode"
	MetaErrorTimestamp    = "errorTimestamp"
	MetaEnergyTotalKWh    = "energyTotalKwh"
	MetaEnergyIntervalKWh = "energyIntervalKwh"
	MetaEnergyIntervalWh  = "energyIntervalWh"
	MetaTemperature       = "temperature"
	MetaVoltageAC         = "voltageAc"
	MetaVoltageDC         = "voltageDc"
	MetaCurrentAC         = "currentAc"
	MetaCurrentDC         = "currentDc"
	MetaFrequency         = "frequency"
	MetaStatus            = "status"
	MetaDeviceRole        = "deviceRole"
	MetaDeviceType        = "deviceType"
)

// timeKeys are the metadata keys whose text values decode as timestamps.
var timeKeys = map[string]bool{MetaErrorTimestamp: true}

// UnmarshalJSON decodes a metadata object. Only timeKeys are read back as
// timestamps, so verbatim text that looks like RFC 3339 stays text.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	for key, v := range raw {
		if !timeKeys[key] {
			continue
		}
		if s, ok := v.Str(); ok {
			if at, err := time.Parse(time.RFC3339Nano, s); err == nil {
				raw[key] = Time(at)
			}
		}
	}
	*m = Metadata(raw)
	return nil
}

// Float returns a numeric metadata value.
func (m Metadata) Float(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.Float()
}

// Clone returns a shallow copy; values are immutable.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
