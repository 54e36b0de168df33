package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newHSManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("settlement-test-secret-32-bytes!")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestDecodeUnverifiedReadsClaims(t *testing.T) {
	signer := newHSManager(t)
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	token, err := signer.Issue(Claims{
		Username: "alice",
		Role:     "ROLE_USER",
		Roles:    []string{"ROLE_MANAGER", "ROLE_USER"},
		Groups:   []string{"ops"},
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: gjwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := NewDecoder().Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Username != "alice" || claims.Subject != "42" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	got, ok := claims.Expiry()
	if !ok || !got.Equal(exp) {
		t.Fatalf("expected exp %v, got %v (ok=%v)", exp, got, ok)
	}
	roles := claims.AllRoles()
	if len(roles) != 2 || roles[0] != "ROLE_USER" || roles[1] != "ROLE_MANAGER" {
		t.Fatalf("unexpected merged roles: %v", roles)
	}
	if !claims.InGroup("ops") || claims.InGroup("finance") || !claims.InAnyGroup("finance", "ops") {
		t.Fatal("group helpers disagree with groups claim")
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	d := NewDecoder()
	for _, in := range []string{"", "abc", "a.b", "a.b.c", "....", "not a token at all"} {
		if _, err := d.Decode(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestDecodeIgnoresExpiry(t *testing.T) {
	signer := newHSManager(t)
	token, err := signer.Issue(Claims{RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := signer.Decode(token); err != nil {
		t.Fatalf("expired token must still decode, got %v", err)
	}
}

func TestDecodeVerifiedRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := newHSManager(t).Issue(Claims{Username: "mallory"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Decode(token); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
}

func TestDecodeVerifiedEd25519IssuerAudience(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "settlement-api",
		Audience:      "back-office",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Issue(Claims{Username: "bob"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Decode(token); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}

	other, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Issuer: "elsewhere"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	foreign, err := other.Issue(Claims{Username: "bob"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Decode(foreign); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected issuer mismatch to be rejected, got %v", err)
	}
}

func TestDecodeVerifyKeysByKid(t *testing.T) {
	pubA, privA := newEdKeys(t)
	pubB, _ := newEdKeys(t)

	signer, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: privA, PublicKey: pubA, KeyID: "a"})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		VerifyKeys:    map[string][]byte{"a": pubA, "b": pubB},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := signer.Issue(Claims{Username: "carol"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Decode(token); err != nil {
		t.Fatalf("expected kid a to verify, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{SigningMethod: MethodHS256},
		{SigningMethod: MethodEd25519},
		{SigningMethod: "rs256"},
		{SigningMethod: MethodEd25519, PublicKey: []byte("short")},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestIssueWithoutKeyFails(t *testing.T) {
	if _, err := NewDecoder().Issue(Claims{}); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}
