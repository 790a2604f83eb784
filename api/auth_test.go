package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"ok", "Bearer header.payload.signature", "header.payload.signature", nil},
		{"padded", "  Bearer a.b.c  ", "a.b.c", nil},
		{"lowercase scheme", "bearer a.b.c", "a.b.c", nil},
		{"missing", "", "", errMissingAuthorization},
		{"basic", "Basic dXNlcjpwYXNz", "", errBadAuthorization},
		{"too many periods", "Bearer " + strings.Repeat(".", 1000), "", errBadAuthorization},
		{"scheme only", "Bearer ", "", errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			if tt.header != "" {
				h.Set(echo.HeaderAuthorization, tt.header)
			}
			got, err := bearerToken(h)
			if err != tt.wantErr || got != tt.want {
				t.Fatalf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestSubjectHS256(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	auth := NewSharedSecretAuth(secret, "api://aud", "https://issuer/")

	valid := sign(jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	sub, err := auth.Subject(valid)
	if err != nil || sub != "user-123" {
		t.Fatalf("Subject = %q, %v", sub, err)
	}

	rejected := map[string]jwt.MapClaims{
		"expired":      {"sub": "u", "aud": "api://aud", "iss": "https://issuer/", "exp": now.Add(-5 * time.Minute).Unix()},
		"no expiry":    {"sub": "u", "aud": "api://aud", "iss": "https://issuer/"},
		"wrong aud":    {"sub": "u", "aud": "other", "iss": "https://issuer/", "exp": now.Add(time.Minute).Unix()},
		"wrong issuer": {"sub": "u", "aud": "api://aud", "iss": "https://evil/", "exp": now.Add(time.Minute).Unix()},
		"missing sub":  {"aud": "api://aud", "iss": "https://issuer/", "exp": now.Add(time.Minute).Unix()},
	}
	for name, claims := range rejected {
		if _, err := auth.Subject(sign(claims)); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestNewAuthLocalMode(t *testing.T) {
	t.Setenv(envLocalAuthMode, "hs256")
	t.Setenv(envLocalAuthSecret, "")
	if _, err := NewAuth(nil, "", ""); err == nil {
		t.Fatalf("expected error without shared secret")
	}

	t.Setenv(envLocalAuthSecret, "s3cret")
	auth, err := NewAuth(nil, "", "")
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	if string(auth.Secret) != "s3cret" {
		t.Fatalf("secret not loaded")
	}

	t.Setenv(envLocalAuthMode, "rot13")
	if _, err := NewAuth(nil, "", ""); err == nil {
		t.Fatalf("expected error for unsupported mode")
	}
}

func TestNewAuthRequiresJWKS(t *testing.T) {
	t.Setenv(envLocalAuthMode, "")
	if _, err := NewAuth(nil, "aud", "iss"); err == nil {
		t.Fatalf("expected error without jwks")
	}
	t.Setenv(envJWKSCacheTTL, "-1s")
	if _, err := NewAuth(nil, "aud", "iss"); err == nil {
		t.Fatalf("expected error for invalid cache ttl")
	}
}
