package plexlog

import (
	"fmt"
	"strings"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const metaGridPowerW = "gridPowerW"

var packedKeys = map[string]string{
	"E_INT":   measurement.MetaEnergyIntervalWh,
	"E_TOTAL": measurement.MetaEnergyTotalKWh,
	"U_AC":    measurement.MetaVoltageAC,
	"I_AC":    measurement.MetaCurrentAC,
	"F_AC":    measurement.MetaFrequency,
	"T":       measurement.MetaTemperature,
}

// applyPacked reads an info column of KEY:VALUE pairs separated by ';'.
// Bad pairs are reported and dropped; the rest of the row is kept.
func applyPacked(b *measurement.Builder, info string) []error {
	var problems []error
	for _, pair := range strings.Split(info, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			problems = append(problems, fmt.Errorf("malformed pair %q", pair))
			continue
		}
		upper := strings.ToUpper(key)
		if upper == "ERR" {
			if value != "" && value != "0" {
				b.Meta(measurement.MetaErrorCode, measurement.Text(value))
			}
			continue
		}
		meta, known := packedKeys[upper]
		if !known && strings.HasPrefix(upper, "P_S") && len(upper) > 3 {
			meta, known = "stringPower"+upper[3:]+"W", true
		}
		if !known {
			b.Meta(key, parse.VerbatimValue(value))
			continue
		}
		if parse.IsDashPlaceholder(value) {
			continue
		}
		v, err := parse.Number(value)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: bad value %q", key, value))
			continue
		}
		b.MetaFloat(meta, v)
	}
	return problems
}
