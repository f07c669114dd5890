package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to a path. A Path ending in "/" matches by prefix.
// Read covers GET, HEAD and OPTIONS; Write covers every other method.
type Rule struct {
	Path  string
	Read  Role
	Write Role
}

func (r Rule) matches(path string) bool {
	if strings.HasSuffix(r.Path, "/") {
		return strings.HasPrefix(path, r.Path) || path == strings.TrimSuffix(r.Path, "/")
	}
	return path == r.Path
}

// Policy maps requests to the role they need. The first matching rule wins.
type Policy struct {
	Exempt []string
	Rules  []Rule
}

// DefaultRules cover the measurement API.
func DefaultRules() []Rule {
	return []Rule{
		{Path: "/api/v1/ingest", Read: RoleOperator, Write: RoleOperator},
		{Path: "/api/v1/loggers/", Read: RoleViewer, Write: RoleAdmin},
		{Path: "/api/", Read: RoleViewer, Write: RoleOperator},
	}
}

// NewDefaultPolicy builds the API policy. Exempt requests skip the JWT
// check; machine uploads under /ingest/ are signed with HMAC instead.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	exempt := make([]string, 0, len(exemptPaths)+len(exemptPrefixes))
	for _, path := range exemptPaths {
		exempt = append(exempt, strings.TrimSuffix(path, "/"))
	}
	for _, prefix := range exemptPrefixes {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		exempt = append(exempt, prefix)
	}
	return Policy{Exempt: exempt, Rules: DefaultRules()}
}

// IsExempt reports whether the request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	for _, path := range p.Exempt {
		if (Rule{Path: path}).matches(r.URL.Path) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role for a request. ok is false for paths no
// rule covers.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.Rules {
		if !rule.matches(r.URL.Path) {
			continue
		}
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return rule.Read, true
		}
		return rule.Write, true
	}
	return "", false
}
