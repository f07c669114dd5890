package parse

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBadTimestamp is returned for unparseable timestamps.
var ErrBadTimestamp = errors.New("parse: bad timestamp")

var wallClockLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.06 15:04:05",
	"20060102150405",
	"200601021504",
}

// Unix seconds are accepted between 2000-01-01 and 2100-01-01. Longer digit
// runs are compact wall-clock stamps.
const (
	minUnixSeconds = 946684800
	maxUnixSeconds = 4102444800
)

// Timestamp parses an absolute or wall-clock timestamp. All-digit values in
// the Unix seconds range are Unix seconds, offset-carrying values are
// absolute, everything else is read in loc. The result is UTC.
func Timestamp(value string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, ErrBadTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	if isDigits(s) {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err == nil && secs >= minUnixSeconds && secs < maxUnixSeconds {
			return time.Unix(secs, 0).UTC(), nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrBadTimestamp
}

// IsTimestamp reports whether the value parses as a timestamp.
func IsTimestamp(value string) bool {
	_, err := Timestamp(value, time.UTC)
	return err == nil
}

// DateAndClock combines separate date and time-of-day cells.
func DateAndClock(date, clock string, loc *time.Location) (time.Time, error) {
	return Timestamp(strings.TrimSpace(date)+" "+strings.TrimSpace(clock), loc)
}

// Clock parses a time of day "15:04" or "15:04:05". "24:00[:00]" is accepted
// and reported as 24h so callers can roll the date forward.
func Clock(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, ErrBadTimestamp
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 || !isDigits(p) {
			return 0, ErrBadTimestamp
		}
		n, _ := strconv.Atoi(p)
		nums[i] = n
	}
	h, m, sec := nums[0], nums[1], nums[2]
	if h == 24 && m == 0 && sec == 0 {
		return 24 * time.Hour, nil
	}
	if h > 23 || m > 59 || sec > 59 {
		return 0, ErrBadTimestamp
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// CompactDate parses a six digit DDMMYY date into local midnight.
func CompactDate(value string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(value)
	if len(s) != 6 || !isDigits(s) {
		return time.Time{}, ErrBadTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("020106", s, loc)
	if err != nil {
		return time.Time{}, ErrBadTimestamp
	}
	return t, nil
}

// OnDay places a time of day on a local date. Adding whole days through the
// calendar keeps 24:00 correct across DST changes.
func OnDay(day time.Time, clock time.Duration) time.Time {
	if clock >= 24*time.Hour {
		next := day.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, day.Location()).UTC()
	}
	h := int(clock / time.Hour)
	m := int((clock % time.Hour) / time.Minute)
	s := int((clock % time.Minute) / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, day.Location()).UTC()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
