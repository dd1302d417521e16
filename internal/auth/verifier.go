// Package auth verifies bearer tokens and maps their claims to a tenant and
// role.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
	ModeJWKS = "jwks"
)

// Settings selects how tokens are checked. In dev mode a token is the literal
// "tenant:role" and request headers are trusted when no token is sent.
type Settings struct {
	Mode        string `yaml:"mode"`
	HMACSecret  string `yaml:"hmacSecret"`
	JWKSURL     string `yaml:"jwksUrl"`
	TenantClaim string `yaml:"tenantClaim"`
	RoleClaim   string `yaml:"roleClaim"`
	DriverClaim string `yaml:"driverClaim"`
}

// DefaultSettings is dev mode with the usual claim names.
func DefaultSettings() Settings {
	return Settings{Mode: ModeDev, TenantClaim: "tenant", RoleClaim: "role", DriverClaim: "sub"}
}

type Principal struct {
	Tenant   string
	Role     string
	DriverID string
}

// Verifier validates HS256 tokens against a shared secret or RS256 tokens
// against keys from a JWKS endpoint.
type Verifier struct {
	settings Settings
	http     *http.Client

	mu        sync.RWMutex
	keys      map[string]*jwkKey
	lastFetch time.Time
	cacheTTL  time.Duration
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// New checks s and fills in default claim names.
func New(s Settings) (*Verifier, error) {
	d := DefaultSettings()
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	if s.Mode == "" {
		s.Mode = d.Mode
	}
	if s.TenantClaim == "" {
		s.TenantClaim = d.TenantClaim
	}
	if s.RoleClaim == "" {
		s.RoleClaim = d.RoleClaim
	}
	if s.DriverClaim == "" {
		s.DriverClaim = d.DriverClaim
	}
	switch s.Mode {
	case ModeDev:
	case ModeHMAC:
		if s.HMACSecret == "" {
			return nil, errors.New("auth: hmac mode needs AUTH_HMAC_SECRET")
		}
	case ModeJWKS:
		if s.JWKSURL == "" {
			return nil, errors.New("auth: jwks mode needs AUTH_JWKS_URL")
		}
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", s.Mode)
	}
	return &Verifier{
		settings: s,
		http:     &http.Client{Timeout: 5 * time.Second},
		cacheTTL: 10 * time.Minute,
	}, nil
}

// Dev reports whether unsigned tokens and identity headers are accepted.
func (v *Verifier) Dev() bool { return v.settings.Mode == ModeDev }

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Dev() {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" || role == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}

	claims := jwt.MapClaims{}
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if v.settings.Mode == ModeJWKS {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}
	if _, err := jwt.ParseWithClaims(token, claims, v.key, jwt.WithValidMethods(methods)); err != nil {
		return Principal{}, err
	}
	tenant, _ := claims[v.settings.TenantClaim].(string)
	role, _ := claims[v.settings.RoleClaim].(string)
	driver, _ := claims[v.settings.DriverClaim].(string)
	if tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	if role == "" {
		role = "viewer"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role), DriverID: driver}, nil
}

func (v *Verifier) key(t *jwt.Token) (interface{}, error) {
	if v.settings.Mode == ModeHMAC {
		return []byte(v.settings.HMACSecret), nil
	}
	kid, _ := t.Header["kid"].(string)
	return v.publicKey(kid)
}

// publicKey looks kid up in the cached key set, refetching once when the
// cache is stale or the kid is new.
func (v *Verifier) publicKey(kid string) (interface{}, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if !ok || stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		k, ok = v.keys[kid]
		v.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("kid %q not found in JWKS", kid)
	}
	return k.rsaKey()
}

func (k *jwkKey) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk %s modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %s exponent: %w", k.Kid, err)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}

func (v *Verifier) fetchJWKS() error {
	resp, err := v.http.Get(v.settings.JWKSURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var set struct {
		Keys []jwkKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*jwkKey, len(set.Keys))
	for i := range set.Keys {
		if strings.EqualFold(set.Keys[i].Kty, "RSA") {
			keys[set.Keys[i].Kid] = &set.Keys[i]
		}
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
