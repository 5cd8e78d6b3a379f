package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "type" claim.
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

// Claims represents JWT claims used across the service.
type Claims struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies RS256 tokens. A codec built without a
// private key can only verify. It is safe for concurrent use.
type TokenCodec struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	now        func() time.Time
}

// CodecOption configures TokenCodec behavior.
type CodecOption func(*TokenCodec)

// WithIssuer sets the iss claim written on encode and required on decode.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec parses PEM encoded RSA keys. privatePEM may be empty for a
// verify-only codec; publicPEM is always required.
func NewTokenCodec(privatePEM, publicPEM []byte, opts ...CodecOption) (*TokenCodec, error) {
	c := &TokenCodec{now: time.Now}
	if len(publicPEM) == 0 {
		return nil, errors.New("auth: public key is required")
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	c.publicKey = pub
	if len(privatePEM) > 0 {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
		if err != nil {
			return nil, fmt.Errorf("auth: parse private key: %w", err)
		}
		c.privateKey = priv
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CanSign reports whether the codec holds a private key.
func (c *TokenCodec) CanSign() bool {
	return c != nil && c.privateKey != nil
}

// Encode stamps iat/exp onto claims and signs them with RS256.
func (c *TokenCodec) Encode(claims Claims, ttl time.Duration) (string, error) {
	token, _, err := c.encode(claims, ttl)
	return token, err
}

// encode also returns the exp it stamped.
func (c *TokenCodec) encode(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if !c.CanSign() {
		return "", time.Time{}, errors.New("auth: codec has no signing key")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("auth: ttl must be greater than zero")
	}
	now := c.now().UTC().Truncate(time.Second)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Decode verifies signature and expiry and returns the embedded claims.
// Every failure wraps ErrInvalidToken.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return claims, nil
}
