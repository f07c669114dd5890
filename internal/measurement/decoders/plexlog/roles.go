package plexlog

import (
	"errors"
	"fmt"
	"sort"
)

// Role classifies a device by its id range.
type Role string

const (
	RoleInverter   Role = "inverter"
	RoleIrradiance Role = "irradiance"
	RoleMeter      Role = "meter"
)

// ErrInvalidRoles is returned for malformed role tables.
var ErrInvalidRoles = errors.New("plexlog: invalid role table")

// RoleRange assigns a role to the inclusive device id range [From, To].
type RoleRange struct {
	From int64 `yaml:"from"`
	To   int64 `yaml:"to"`
	Role Role  `yaml:"role"`
}

// RoleTable maps device ids to roles.
type RoleTable []RoleRange

// DefaultRoles is the factory id layout: 1-99 inverters, 100-199
// irradiance sensors, 200-299 grid meters.
func DefaultRoles() RoleTable {
	return RoleTable{
		{From: 1, To: 99, Role: RoleInverter},
		{From: 100, To: 199, Role: RoleIrradiance},
		{From: 200, To: 299, Role: RoleMeter},
	}
}

// Validate rejects unknown roles, inverted and overlapping ranges.
func (t RoleTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidRoles)
	}
	sorted := append(RoleTable(nil), t...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })
	for i, r := range sorted {
		switch r.Role {
		case RoleInverter, RoleIrradiance, RoleMeter:
		default:
			return fmt.Errorf("%w: unknown role %q", ErrInvalidRoles, r.Role)
		}
		if r.From > r.To {
			return fmt.Errorf("%w: range %d-%d is inverted", ErrInvalidRoles, r.From, r.To)
		}
		if i > 0 && r.From <= sorted[i-1].To {
			return fmt.Errorf("%w: range %d-%d overlaps %d-%d", ErrInvalidRoles, r.From, r.To, sorted[i-1].From, sorted[i-1].To)
		}
	}
	return nil
}

// Classify returns the role of a device id.
func (t RoleTable) Classify(deviceID int64) (Role, bool) {
	for _, r := range t {
		if deviceID >= r.From && deviceID <= r.To {
			return r.Role, true
		}
	}
	return "", false
}
