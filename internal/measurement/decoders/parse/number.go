// Package parse holds the cell, line and timestamp helpers shared by the
// vendor decoders.
package parse

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrBadNumber is returned for cells that are neither empty nor numeric.
var ErrBadNumber = errors.New("parse: bad numeric literal")

// Number parses a numeric cell. Empty cells return nil. Both '.' and ','
// decimal separators are accepted; whichever comes last is the decimal mark.
func Number(cell string) (*float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil, nil
	}
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot > comma:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, ErrBadNumber
	}
	return &v, nil
}

// IsNumeric reports whether the cell holds a number.
func IsNumeric(cell string) bool {
	v, err := Number(cell)
	return err == nil && v != nil
}

// IsDashPlaceholder reports whether the cell is a dash-prefixed "no reading"
// marker such as "-", "---" or "-n/a-". Negative numbers are not placeholders.
func IsDashPlaceholder(cell string) bool {
	s := strings.TrimSpace(cell)
	return strings.HasPrefix(s, "-") && !IsNumeric(s)
}

// IsNegativeZero reports whether the cell is a signed zero such as "-0" or "-0,0".
func IsNegativeZero(cell string) bool {
	s := strings.TrimSpace(cell)
	if !strings.HasPrefix(s, "-") {
		return false
	}
	v, err := Number(s)
	return err == nil && v != nil && *v == 0
}

// Scale multiplies a nullable value.
func Scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * factor
	return &out
}
