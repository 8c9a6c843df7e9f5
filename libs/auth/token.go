package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the caller of a provider-scoped route. ProviderID falls
// back to Sub when the issuer does not set it.
type Claims struct {
	Sub        string `json:"sub"`
	ProviderID string `json:"provider_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Exp        int64  `json:"exp"`
	Iat        int64  `json:"iat"`
}

func (c Claims) Provider() string {
	if c.ProviderID != "" {
		return c.ProviderID
	}
	return c.Sub
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

type token struct {
	header   header
	unsigned string
	payload  []byte
	sig      []byte
}

func split(raw string) (token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return token{}, ErrInvalidToken
	}
	h, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return token{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return token{}, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return token{}, ErrInvalidToken
	}
	t := token{unsigned: parts[0] + "." + parts[1], payload: payload, sig: sig}
	if err := json.Unmarshal(h, &t.header); err != nil {
		return token{}, ErrInvalidToken
	}
	return t, nil
}

func (t token) claims(now time.Time) (*Claims, error) {
	var c Claims
	if err := json.Unmarshal(t.payload, &c); err != nil {
		return nil, ErrInvalidToken
	}
	if c.Exp > 0 && now.Unix() > c.Exp {
		return nil, ErrInvalidToken
	}
	if c.Provider() == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// SignHS256 issues a token; used by tests and local tooling.
func SignHS256(c Claims, secret string) (string, error) {
	h, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	p, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(h) + "." + base64.RawURLEncoding.EncodeToString(p)
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(hmacSHA256(unsigned, secret)), nil
}

func hmacSHA256(data, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return mac.Sum(nil)
}

// Verifier checks a bearer token and returns its claims.
type Verifier interface {
	Verify(raw string) (*Claims, error)
}

// KeySource resolves RS256 public keys by kid.
type KeySource interface {
	Get(kid string) (*rsa.PublicKey, error)
}

// TokenVerifier accepts HS256 tokens signed with Secret and, when Keys is
// set, RS256 tokens whose kid resolves through Keys.
type TokenVerifier struct {
	Secret string
	Keys   KeySource
	Now    func() time.Time
}

func (v TokenVerifier) Verify(raw string) (*Claims, error) {
	t, err := split(raw)
	if err != nil {
		return nil, err
	}
	switch t.header.Alg {
	case "HS256":
		if v.Secret == "" || !hmac.Equal(t.sig, hmacSHA256(t.unsigned, v.Secret)) {
			return nil, ErrInvalidToken
		}
	case "RS256":
		if v.Keys == nil || t.header.Kid == "" {
			return nil, ErrInvalidToken
		}
		pub, err := v.Keys.Get(t.header.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		hash := sha256.Sum256([]byte(t.unsigned))
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], t.sig); err != nil {
			return nil, ErrInvalidToken
		}
	default:
		return nil, ErrInvalidToken
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	return t.claims(now())
}
