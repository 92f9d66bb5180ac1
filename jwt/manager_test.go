package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clk *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Leeway:        time.Minute,
		Now:           clk.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clk)

	tok, err := m.Issue("u1", "a@example.com", "customer", TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.JTI == "" {
		t.Fatal("expected jti")
	}
	if !tok.ExpiresAt.Equal(clk.now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected exp %v", tok.ExpiresAt)
	}

	claims, err := m.Parse(tok.Value, TypeAccess)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@example.com" || claims.Role != "customer" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID != tok.JTI || claims.TokenType != TypeAccess {
		t.Fatalf("jti/type mismatch: %+v", claims)
	}
}

func TestIssueUsesDistinctJTIs(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		tok, err := m.Issue("u1", "a@example.com", "customer", TypeRefresh)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[tok.JTI]; dup {
			t.Fatalf("duplicate jti %s", tok.JTI)
		}
		seen[tok.JTI] = struct{}{}
	}
}

func TestParseRejectsWrongType(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	refresh, err := m.Issue("u1", "a@example.com", "customer", TypeRefresh)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(refresh.Value, TypeAccess); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestParseExpiryHonorsLeeway(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clk)

	tok, err := m.Issue("u1", "a@example.com", "customer", TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.now = clk.now.Add(15*time.Minute + 30*time.Second)
	if _, err := m.Parse(tok.Value, TypeAccess); err != nil {
		t.Fatalf("token inside leeway should parse: %v", err)
	}

	clk.now = clk.now.Add(time.Minute)
	if _, err := m.Parse(tok.Value, TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ID:        "j1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestParseRejectsMissingJTI(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	claims := Claims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected missing jti to be rejected, got %v", err)
	}
}

func TestParseIssuerAndAudience(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "otpauth",
		Audience:      "api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := m.Issue("u1", "a@example.com", "seller", TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(tok.Value, TypeAccess); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	wrongIssuer := Claims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ID:        "j1",
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	bad, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer).SignedString(priv)
	if _, err := m.Parse(bad, TypeAccess); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := wrongIssuer
	wrongAudience.Issuer = "otpauth"
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	bad, _ = gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience).SignedString(priv)
	if _, err := m.Parse(bad, TypeAccess); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestKeyRotationByKid(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)

	issuer, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    oldPriv,
		PublicKey:     oldPub,
		KeyID:         "k-old",
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := issuer.Issue("u1", "a@example.com", "customer", TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	verifier, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    newPriv,
		KeyID:         "k-new",
		VerifyKeys:    map[string][]byte{"k-old": oldPub, "k-new": newPub},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Parse(tok.Value, TypeAccess); err != nil {
		t.Fatalf("old kid should still verify: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero access ttl", Config{RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: testSecret}},
		{"zero refresh ttl", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testSecret}},
		{"short secret", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")}},
		{"huge leeway", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: time.Hour}},
		{"unknown method", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: "rs256", PrivateKey: testSecret}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

// FuzzParse feeds arbitrary strings to the parser. It must never panic and
// must never return nil claims without an error.
func FuzzParse(f *testing.F) {
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := m.Issue("u1", "a@example.com", "customer", TypeAccess)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid.Value)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := m.Parse(input, TypeAccess)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("Parse returned nil claims without error")
		}
	})
}
