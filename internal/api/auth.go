// Package api implements HTTP handlers and helpers for the freightplan service.
package api

import (
	"context"
	"net/http"
	"strings"
)

type Principal struct {
	Tenant   string
	Role     string // admin, dispatcher, driver, viewer
	DriverID string
}

type principalKey struct{}

// getPrincipal extracts tenant and role from a bearer token or, in dev mode,
// from request headers. Outside dev mode a request without a valid token gets
// the zero Principal, which no handler authorizes.
func (s *Server) getPrincipal(r *http.Request) Principal {
	if p, ok := r.Context().Value(principalKey{}).(Principal); ok {
		return p
	}
	if p, ok, _ := s.bearer(r); ok {
		return p
	}
	if s.Auth != nil && !s.Auth.Dev() {
		return Principal{}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	driverID := r.Header.Get("X-Driver-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role, DriverID: driverID}
}

// bearer verifies the Authorization header. ok is false when no token was sent
// or it did not verify; err carries the reason for the latter.
func (s *Server) bearer(r *http.Request) (p Principal, ok bool, err error) {
	authz := r.Header.Get("Authorization")
	if s.Auth == nil || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return Principal{}, false, nil
	}
	pr, err := s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):]))
	if err != nil {
		return Principal{}, false, err
	}
	return Principal{Tenant: pr.Tenant, Role: pr.Role, DriverID: pr.DriverID}, true, nil
}

// RequireAuth rejects requests without a valid bearer token unless the
// verifier runs in dev mode. Health, readiness and metrics stay open.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			next.ServeHTTP(w, r)
			return
		}
		if s.Auth == nil || s.Auth.Dev() {
			next.ServeHTTP(w, r)
			return
		}
		p, ok, err := s.bearer(r)
		if !ok {
			detail := "bearer token required"
			if err != nil {
				detail = err.Error()
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="freightplan"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", detail, r.URL.Path)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanPlan reports whether the principal may start allocation runs.
func (p Principal) CanPlan() bool { return p.IsAdmin() || p.Role == "dispatcher" }
