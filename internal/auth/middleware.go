package auth

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// Middleware authenticates API callers by bearer JWT and enforces Policy.
type Middleware struct {
	Secret []byte
	Policy Policy
	logger *log.Logger
}

// Option configures a middleware.
type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithDenyLogger logs every rejected request.
func WithDenyLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewMiddleware constructs the JWT middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...Option) *Middleware {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Middleware{Secret: secret, Policy: policy, logger: o.logger}
}

// Wrap applies authentication and role checks to next. Routes the policy
// does not cover pass through without a token.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, ok := m.Policy.RequiredRole(r)
		if m.Policy.IsExempt(r) || !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := ParseJWT(bearerToken(r), m.Secret)
		if err != nil {
			m.deny(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		role, known := NormalizeRole(claims.Role)
		if !known || !RoleAtLeast(role, required) {
			m.deny(w, r, http.StatusForbidden, "forbidden", "subject "+claims.Subject+" lacks role "+string(required))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, claims.Subject)))
	})
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, status int, reason, detail string) {
	if m.logger != nil {
		m.logger.Printf("auth: %s %s: %s", r.Method, r.URL.Path, detail)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="pv-telemetry"`)
	}
	writeDenial(w, status, reason)
}

func writeDenial(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
