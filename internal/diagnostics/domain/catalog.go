package diagnostics

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	measurement "pv-telemetry/internal/measurement/domain"
)

// Severity ranks an error code.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	}
	return 3
}

// Definition explains one vendor error code.
type Definition struct {
	Description string   `yaml:"description" json:"description"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Fix         string   `yaml:"fix" json:"fix"`
}

// ErrInvalidCatalog is returned for catalogs that fail validation.
var ErrInvalidCatalog = errors.New("diagnostics: invalid catalog")

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog holds error code definitions per logger type. It is read-only
// after construction.
type Catalog struct {
	codes map[measurement.LoggerType]map[string]Definition
}

// DefaultCatalog returns the built-in vendor code table.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a catalog file and merges it over the built-in table.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	extra, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	base := DefaultCatalog()
	for t, codes := range extra.codes {
		if base.codes[t] == nil {
			base.codes[t] = make(map[string]Definition)
		}
		for code, def := range codes {
			base.codes[t][code] = def
		}
	}
	return base, nil
}

// ParseCatalog decodes a YAML catalog keyed by logger type then code.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]map[string]Definition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	c := &Catalog{codes: make(map[measurement.LoggerType]map[string]Definition, len(raw))}
	for name, codes := range raw {
		t, err := measurement.ParseLoggerType(name)
		if err != nil {
			return nil, fmt.Errorf("%w: logger type %q", ErrInvalidCatalog, name)
		}
		table := make(map[string]Definition, len(codes))
		for code, def := range codes {
			if def.Severity.rank() > 2 {
				return nil, fmt.Errorf("%w: %s %s: severity %q", ErrInvalidCatalog, t, code, def.Severity)
			}
			table[strings.TrimSpace(code)] = def
		}
		c.codes[t] = table
	}
	return c, nil
}

// Lookup returns the definition of code for a logger type. Unknown codes
// get a warning-level placeholder and ok=false.
func (c *Catalog) Lookup(t measurement.LoggerType, code string) (Definition, bool) {
	if c != nil {
		if def, ok := c.codes[t][code]; ok {
			return def, true
		}
	}
	return Definition{
		Description: "Unknown error code: " + code,
		Severity:    SeverityWarning,
		Fix:         "Consult manufacturer documentation",
	}, false
}

// Codes returns the table of one logger type.
func (c *Catalog) Codes(t measurement.LoggerType) map[string]Definition {
	out := make(map[string]Definition, len(c.codes[t]))
	for code, def := range c.codes[t] {
		out[code] = def
	}
	return out
}
