package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pv-telemetry/internal/measurement/decoders"
	"pv-telemetry/internal/measurement/decoders/plexlog"
	measurement "pv-telemetry/internal/measurement/domain"
)

const defaultBatchSize = 500

// Config holds decoding and ingest settings.
type Config struct {
	Timezone       string               `yaml:"timezone"`
	BatchSize      int                  `yaml:"batch_size"`
	SpoolDir       string               `yaml:"spool_dir"`
	Reconstruction ReconstructionConfig `yaml:"reconstruction"`
	Plexlog        PlexlogConfig        `yaml:"plexlog"`
}

// ReconstructionConfig configures cumulative-energy reconstruction. Sources
// are merged over the built-in delta set; a source with an empty field
// removes the logger type from it.
type ReconstructionConfig struct {
	ResetPolicy string                              `yaml:"reset_policy"`
	Sources     map[string]measurement.EnergySource `yaml:"sources"`
}

// PlexlogConfig configures the device role table.
type PlexlogConfig struct {
	Roles plexlog.RoleTable `yaml:"roles"`
}

// LoadConfig reads env defaults, then the YAML file named by
// PV_INGEST_CONFIG when set.
func LoadConfig() (Config, error) {
	cfg := Config{
		Timezone:  getenvDefault("PV_TIMEZONE", "UTC"),
		BatchSize: getenvIntDefault("INGEST_BATCH_SIZE", defaultBatchSize),
		SpoolDir:  os.Getenv("PV_SPOOL_DIR"),
		Reconstruction: ReconstructionConfig{
			ResetPolicy: getenvDefault("PV_RESET_POLICY", string(measurement.ResetLocalMidnight)),
		},
	}

	if path := os.Getenv("PV_INGEST_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("ingest config: %w", err)
		}
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, err
	}
	if len(cfg.Plexlog.Roles) > 0 {
		if err := cfg.Plexlog.Roles.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Location resolves the wall-clock timezone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("ingest config: timezone %q: %w", name, err)
	}
	return loc, nil
}

// Reconstructor builds the cumulative-energy pass from the config.
func (c Config) Reconstructor() (*measurement.Reconstructor, error) {
	policy, err := measurement.ParseResetPolicy(c.Reconstruction.ResetPolicy)
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	sources := measurement.DefaultEnergySources()
	for name, src := range c.Reconstruction.Sources {
		t, err := measurement.ParseLoggerType(name)
		if err != nil {
			return nil, errors.New("ingest config: reconstruction source for unknown logger type " + strconv.Quote(name))
		}
		if src.Field == "" {
			delete(sources, t)
			continue
		}
		sources[t] = src
	}
	return measurement.NewReconstructor(sources, policy, loc)
}

// Decoders returns the settings for the standard decoder set.
func (c Config) Decoders() decoders.Config {
	return decoders.Config{PlexlogRoles: c.Plexlog.Roles, TempDir: c.SpoolDir}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
