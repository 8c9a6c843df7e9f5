package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256Verify(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tok, err := SignHS256(Claims{Sub: "user-1", ProviderID: "prov-1", Exp: now.Add(time.Hour).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := TokenVerifier{Secret: "secret", Now: func() time.Time { return now }}
	c, err := v.Verify(tok)
	if err != nil || c.Provider() != "prov-1" {
		t.Fatalf("expected prov-1, got %+v (err=%v)", c, err)
	}

	if _, err := (TokenVerifier{Secret: "other"}).Verify(tok); err != ErrInvalidToken {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}
	late := TokenVerifier{Secret: "secret", Now: func() time.Time { return now.Add(2 * time.Hour) }}
	if _, err := late.Verify(tok); err != ErrInvalidToken {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestClaimsProviderFallsBackToSub(t *testing.T) {
	tok, _ := SignHS256(Claims{Sub: "prov-2"}, "secret")
	c, err := TokenVerifier{Secret: "secret"}.Verify(tok)
	if err != nil || c.Provider() != "prov-2" {
		t.Fatalf("expected sub as provider, got %+v (err=%v)", c, err)
	}

	anon, _ := SignHS256(Claims{}, "secret")
	if _, err := (TokenVerifier{Secret: "secret"}).Verify(anon); err != ErrInvalidToken {
		t.Fatalf("expected token without subject to fail, got %v", err)
	}
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, c Claims) string {
	t.Helper()
	h, _ := json.Marshal(header{Alg: "RS256", Typ: "JWT", Kid: kid})
	p, _ := json.Marshal(c)
	unsigned := base64.RawURLEncoding.EncodeToString(h) + "." + base64.RawURLEncoding.EncodeToString(p)
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := TokenVerifier{Keys: NewJWKSClient(srv.URL, time.Minute)}
	c, err := v.Verify(signRS256(t, key, "k1", Claims{Sub: "prov-3"}))
	if err != nil || c.Provider() != "prov-3" {
		t.Fatalf("expected prov-3, got %+v (err=%v)", c, err)
	}
	if _, err := v.Verify(signRS256(t, key, "missing", Claims{Sub: "prov-3"})); err != ErrInvalidToken {
		t.Fatalf("expected unknown kid to fail, got %v", err)
	}
}

func TestRequireProvider(t *testing.T) {
	var seen string
	h := RequireProvider(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(ProviderHeader)
	}), TokenVerifier{Secret: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/windows", nil)
	req.Header.Set(ProviderHeader, "spoofed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	tok, _ := SignHS256(Claims{Sub: "user-1", ProviderID: "prov-1"}, "secret")
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != "prov-1" {
		t.Fatalf("expected prov-1 to reach handler, got %d %q", rec.Code, seen)
	}
}
