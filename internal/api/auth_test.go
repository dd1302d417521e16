package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"freightplan/internal/config"
	"freightplan/internal/model"
)

const testSecret = "test-secret"

func newHMACServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.Mode = "hmac"
	cfg.Auth.HMACSecret = testSecret
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestSignedTokenSetsTenantAndRole(t *testing.T) {
	s := newHMACServer(t)
	h := s.RequireAuth(http.HandlerFunc(s.AllocationsHandler))
	tok := signToken(t, testSecret, jwt.MapClaims{
		"tenant": "t_acme", "role": "Dispatcher", "sub": "drv_1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/allocations", strings.NewReader(cheapLaneBody))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Tenant-Id", "t_other")
	h.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("create: got %d %s", rr.Code, rr.Body.String())
	}
	var run model.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.TenantID != "t_acme" {
		t.Fatalf("tenant %q, want the token's t_acme", run.TenantID)
	}

	// Direct handler calls verify the token too.
	req = httptest.NewRequest(http.MethodGet, "/v1/allocations", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if p := s.getPrincipal(req); p.Tenant != "t_acme" || p.Role != "dispatcher" || p.DriverID != "drv_1" {
		t.Fatalf("principal %+v", p)
	}
}

func TestSignedTokenRejections(t *testing.T) {
	s := newHMACServer(t)
	h := s.RequireAuth(http.HandlerFunc(s.AllocationsHandler))
	good := jwt.MapClaims{"tenant": "t_acme", "role": "admin"}

	cases := []struct {
		name  string
		authz string
		want  int
	}{
		{"headers without token", "", 401},
		{"wrong secret", "Bearer " + signToken(t, "other", good), 401},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"tenant": "t_acme", "role": "admin", "exp": time.Now().Add(-time.Minute).Unix()}), 401},
		{"no tenant", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"role": "admin"}), 401},
		{"dev token", "Bearer t_acme:admin", 401},
		{"viewer", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"tenant": "t_acme", "role": "viewer"}), 403},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/allocations", strings.NewReader(cheapLaneBody))
		if tc.authz != "" {
			req.Header.Set("Authorization", tc.authz)
		}
		req.Header.Set("X-Tenant-Id", "t_acme")
		req.Header.Set("X-Role", "admin")
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s: got %d, want %d (%s)", tc.name, rr.Code, tc.want, rr.Body.String())
		}
	}

	// Identity headers are ignored outside dev mode.
	req := httptest.NewRequest(http.MethodGet, "/v1/allocations", nil)
	req.Header.Set("X-Tenant-Id", "t_acme")
	req.Header.Set("X-Role", "admin")
	if p := s.getPrincipal(req); p.IsAdmin() || p.Tenant != "" {
		t.Fatalf("headers trusted outside dev mode: %+v", p)
	}

	rr := httptest.NewRecorder()
	s.RequireAuth(http.HandlerFunc(s.HealthHandler)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("healthz behind auth: got %d", rr.Code)
	}
}

func TestDevModeHeaderFallback(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/allocations", nil)
	req.Header.Set("X-Tenant-Id", "t_dev")
	req.Header.Set("X-Role", "viewer")
	if p := s.getPrincipal(req); p.Tenant != "t_dev" || p.Role != "viewer" {
		t.Fatalf("header principal %+v", p)
	}
	req.Header.Set("Authorization", "Bearer t_tok:dispatcher")
	if p := s.getPrincipal(req); p.Tenant != "t_tok" || !p.CanPlan() {
		t.Fatalf("dev token principal %+v", p)
	}
}
