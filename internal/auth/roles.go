package auth

import (
	"slices"
	"strings"
)

// Role is the access level carried in a token.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// roleOrder lists roles from least to most privileged.
var roleOrder = []Role{RoleViewer, RoleOperator, RoleAdmin}

// NormalizeRole lowercases and validates a role claim.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	return role, slices.Contains(roleOrder, role)
}

// Grants reports whether r carries at least the required level. Unknown
// roles grant nothing.
func (r Role) Grants(required Role) bool {
	have := slices.Index(roleOrder, r)
	return have >= 0 && have >= slices.Index(roleOrder, required)
}

// RoleAtLeast reports whether role grants required.
func RoleAtLeast(role, required Role) bool { return role.Grants(required) }
