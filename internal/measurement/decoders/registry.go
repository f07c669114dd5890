// Package decoders assembles the vendor decoders registered with the
// dispatcher.
package decoders

import (
	"pv-telemetry/internal/measurement/decoders/goodwe"
	"pv-telemetry/internal/measurement/decoders/integra"
	"pv-telemetry/internal/measurement/decoders/lti"
	"pv-telemetry/internal/measurement/decoders/mbmet"
	"pv-telemetry/internal/measurement/decoders/meier"
	"pv-telemetry/internal/measurement/decoders/meteocontrol"
	"pv-telemetry/internal/measurement/decoders/plexlog"
	measurement "pv-telemetry/internal/measurement/domain"
)

// Config parameterizes the decoders that take settings.
type Config struct {
	PlexlogRoles plexlog.RoleTable
	TempDir      string
}

// Standard returns one decoder per supported format. smartdog has none.
func Standard(cfg Config) ([]measurement.Decoder, error) {
	plex, err := plexlog.New(plexlog.WithRoles(cfg.PlexlogRoles), plexlog.WithTempDir(cfg.TempDir))
	if err != nil {
		return nil, err
	}
	return []measurement.Decoder{
		goodwe.New(),
		lti.New(),
		meier.New(),
		mbmet.New(),
		meteocontrol.New(),
		integra.New(),
		plex,
	}, nil
}
