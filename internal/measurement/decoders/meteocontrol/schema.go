package meteocontrol

import (
	"errors"
	"strings"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const (
	metaAddress             = "address"
	metaIP                  = "ip"
	metaInsulation          = "insulationResistance"
	metaHeatsinkTemperature = "heatsinkTemperature"
	metaOperatingHours      = "operatingHours"
)

var clockKeys = []string{"uhrzeit", "zeit", "time"}

// inverterColumns covers both the basic and the richer per-inverter export.
var inverterColumns = map[string]parse.Column{
	"adresse":      {Target: parse.MetaText, Key: metaAddress},
	"ip":           {Target: parse.MetaText, Key: metaIP},
	"seriennummer": {Target: parse.Skip},
	"pac":          {Target: parse.Power},
	"etag":         {Target: parse.Energy},
	"udc":          {Target: parse.MetaNumber, Key: measurement.MetaVoltageDC},
	"uac":          {Target: parse.MetaNumber, Key: measurement.MetaVoltageAC},
	"fac":          {Target: parse.MetaNumber, Key: measurement.MetaFrequency},
	"riso":         {Target: parse.MetaNumber, Key: metaInsulation},
	"twr":          {Target: parse.MetaNumber, Key: measurement.MetaTemperature},
	"tkk":          {Target: parse.MetaNumber, Key: metaHeatsinkTemperature},
	"etotal":       {Target: parse.MetaNumber, Key: measurement.MetaEnergyTotalKWh},
	"eint":         {Target: parse.MetaNumber, Key: measurement.MetaEnergyIntervalKWh},
	"bh":           {Target: parse.MetaNumber, Key: metaOperatingHours},
}

type table struct {
	columns    []parse.Column
	clock      int
	inverter   bool
	serial     int
	address    int
	irradiance int
}

func newTable(header []string) (*table, error) {
	keys := parse.Keys(header)
	t := &table{clock: -1, serial: -1, address: -1, irradiance: -1}
	for i, k := range keys {
		switch k {
		case "seriennummer":
			t.serial = i
		case "adresse":
			t.address = i
		}
		if t.clock < 0 {
			for _, c := range clockKeys {
				if k == c {
					t.clock = i
				}
			}
		}
	}
	if t.clock < 0 {
		return nil, errors.New("header has no time column")
	}
	t.inverter = t.serial >= 0 || t.address >= 0

	t.columns = make([]parse.Column, len(header))
	for i, name := range header {
		var col parse.Column
		switch {
		case i == t.clock:
			col = parse.Column{Target: parse.Skip}
		case t.inverter:
			known, ok := inverterColumns[keys[i]]
			if !ok {
				known = parse.Column{Target: parse.Verbatim}
			}
			col = known
		default:
			col = t.sensorColumn(i, name)
		}
		col.Name = name
		t.columns[i] = col
	}
	return t, nil
}

// sensorColumn maps G_<suffix> to irradiance and T_<suffix> to temperature.
// The first irradiance column also feeds the top-level field.
func (t *table) sensorColumn(i int, name string) parse.Column {
	prefix, suffix, ok := strings.Cut(name, "_")
	if !ok || suffix == "" {
		return parse.Column{Target: parse.Verbatim}
	}
	switch strings.ToUpper(prefix) {
	case "G":
		if t.irradiance < 0 {
			t.irradiance = i
		}
		return parse.Column{Target: parse.MetaNumber, Key: "irradiance" + suffix}
	case "T":
		return parse.Column{Target: parse.MetaNumber, Key: "temperature" + suffix}
	}
	return parse.Column{Target: parse.Verbatim}
}
