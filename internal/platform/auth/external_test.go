package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func signHS256(t *testing.T, claims IDClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}

func validClaims() IDClaims {
	return IDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://idp.example.com",
			Audience:  jwt.ClaimStrings{"frontdesk"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email:             "reception@example.com",
		PreferredUsername: "reception",
	}
}

func TestExternalProvider_VerifyHS256(t *testing.T) {
	p, err := NewExternalProvider(ExternalConfig{
		Issuer:     "https://idp.example.com",
		Audience:   "frontdesk",
		SigningKey: testSigningKey,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := p.Verify(context.Background(), Credential{IDToken: signHS256(t, validClaims())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "user-123" || u.Email != "reception@example.com" || u.Name != "reception" || u.Provider != ModeExternal {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestExternalProvider_Rejects(t *testing.T) {
	p, err := NewExternalProvider(ExternalConfig{Issuer: "https://idp.example.com", Audience: "frontdesk", SigningKey: testSigningKey})
	if err != nil {
		t.Fatal(err)
	}

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"billing"}
	noExp := validClaims()
	noExp.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"expired", signHS256(t, expired)},
		{"wrong audience", signHS256(t, wrongAud)},
		{"no expiry", signHS256(t, noExp)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Verify(context.Background(), Credential{IDToken: tt.token}); err == nil {
				t.Fatal("expected verification error")
			}
		})
	}

	if _, err := p.Verify(context.Background(), Credential{}); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestExternalProvider_VerifyRS256ViaDiscovery(t *testing.T) {
	key := newRSAKey(t)
	jwks, _ := jwksServer(t, func() []JWK { return []JWK{rsaPublicKeyToJWK(key, "widget-1")} })

	var issuer string
	disc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"issuer": issuer, "jwks_uri": jwks.URL})
	}))
	defer disc.Close()
	issuer = disc.URL

	p, err := NewExternalProvider(ExternalConfig{Issuer: issuer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := validClaims()
	claims.Issuer = issuer
	claims.Name = "Reception Desk"
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "widget-1"
	raw, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	u, err := p.Verify(context.Background(), Credential{IDToken: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Name != "Reception Desk" {
		t.Errorf("expected name claim preferred, got %q", u.Name)
	}

	// An HS256 token must not be accepted when keys come from JWKS.
	if _, err := p.Verify(context.Background(), Credential{IDToken: signHS256(t, claims)}); err == nil {
		t.Error("expected HS256 token to be rejected")
	}
}

func TestNewExternalProvider_NeedsKeySource(t *testing.T) {
	if _, err := NewExternalProvider(ExternalConfig{}); err == nil {
		t.Fatal("expected error without JWKS URL or issuer")
	}
}

func TestDiscoverIssuer_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	if _, err := DiscoverIssuer(context.Background(), nil, notFound.URL); err == nil {
		t.Error("expected error for 404")
	}

	noJWKS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "https://idp.example.com"})
	}))
	defer noJWKS.Close()
	if _, err := DiscoverIssuer(context.Background(), nil, noJWKS.URL); err == nil {
		t.Error("expected error for missing jwks_uri")
	}

	wrongIssuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "https://idp.example.com", "jwks_uri": "https://idp.example.com/keys"})
	}))
	defer wrongIssuer.Close()
	if _, err := DiscoverIssuer(context.Background(), wrongIssuer.Client(), wrongIssuer.URL); err == nil {
		t.Error("expected error for a document naming another issuer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DiscoverIssuer(ctx, nil, wrongIssuer.URL); err == nil {
		t.Error("expected error for a cancelled context")
	}
}
