package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed by someone else.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned when a provider is built without key material.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// Claims is the payload of every bearer token: sub is the account id and jit binds the
// token to exactly one session row.
type Claims struct {
	jwt.RegisteredClaims
	Jit string `json:"jit"`
}

// AccountID returns the subject claim.
func (c *Claims) AccountID() string { return c.Subject }

// TokenProvider signs and verifies bearer tokens. It holds no state about issued tokens;
// pair Verify with a session lookup before trusting a token.
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewHMACTokenProvider returns a provider that signs with HS256 using a shared secret.
func NewHMACTokenProvider(secret []byte, issuer string, ttl time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, ErrNoSigningKey
	}
	return &TokenProvider{
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// NewKeyTokenProvider returns a provider that signs with RS256 or ES256 depending on the key type.
func NewKeyTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer string, ttl time.Duration) (*TokenProvider, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrNoSigningKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	return &TokenProvider{
		method:    method,
		signKey:   privateKey,
		verifyKey: publicKey,
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// TTL is the lifetime stamped on issued tokens.
func (p *TokenProvider) TTL() time.Duration { return p.ttl }

// Issue mints a token for accountID under a fresh jit. Nothing is persisted; the caller
// stores the jit on the session row. Returns the token, its jit, and expiration time.
func (p *TokenProvider) Issue(accountID string) (token, jit string, expiresAt time.Time, err error) {
	jit = uuid.NewString()
	now := p.now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Jit: jit,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jit, expiresAt, nil
}

// Verify checks signature, expiry, and issuer and returns the payload. Every failure,
// including malformed input, is reported as ErrInvalidToken.
func (p *TokenProvider) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.Jit == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiresAtTime returns the token's expiration, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
