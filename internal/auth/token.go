// Package auth signs and verifies the compact HS256 tokens that gate the
// director's change feed.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Audience is stamped into every token the director issues.
const Audience = "director"

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrWrongAudience reports a valid token minted for another service.
	ErrWrongAudience = errors.New("token audience mismatch")
)

// Claims identifies a feed viewer.
type Claims struct {
	Subject   string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type payload struct {
	Subject  string `json:"sub"`
	Audience string `json:"aud,omitempty"`
	Expires  int64  `json:"exp"`
	Issued   int64  `json:"iat"`
}

var encodedHeader = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

// Signer mints and checks viewer tokens with a shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewSigner constructs a signer for the supplied secret and clock skew allowance.
func NewSigner(secret string, leeway time.Duration) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Signer{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the signer clock for deterministic tests.
func (s *Signer) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Issue mints a token for subject valid for ttl.
func (s *Signer) Issue(subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject must not be empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := s.now()
	body, err := json.Marshal(payload{Subject: subject, Audience: Audience, Issued: now.Unix(), Expires: now.Add(ttl).Unix()})
	if err != nil {
		return "", err
	}
	signingInput := encodedHeader + "." + base64.RawURLEncoding.EncodeToString(body)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(s.sign([]byte(signingInput))), nil
}

// Verify checks the signature, expiry and audience and returns the claims.
func (s *Signer) Verify(token string) (*Claims, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, errors.New("signer not initialised")
	}
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	//1.- Compare signatures before trusting any payload field.
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || !hmac.Equal(signature, s.sign([]byte(parts[0]+"."+parts[1]))) {
		return nil, ErrInvalidToken
	}

	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims payload
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	expiresAt := time.Unix(claims.Expires, 0)
	if expiresAt.Add(s.leeway).Before(s.now()) {
		return nil, ErrExpiredToken
	}
	//2.- Tokens without an audience predate audience stamping and stay valid.
	if claims.Audience != "" && claims.Audience != Audience {
		return nil, ErrWrongAudience
	}
	return &Claims{
		Subject:   claims.Subject,
		Audience:  claims.Audience,
		IssuedAt:  time.Unix(claims.Issued, 0),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Signer) sign(input []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(input)
	return mac.Sum(nil)
}
