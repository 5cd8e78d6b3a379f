package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Gate validates credentials, issues tokens and resolves token subjects.
// It keeps no per-request state.
type Gate struct {
	store      PrincipalStore
	codec      *TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// GateOption configures Gate behavior.
type GateOption func(*Gate) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) GateOption {
	return func(g *Gate) error {
		if ttl > 0 {
			g.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) GateOption {
	return func(g *Gate) error {
		if ttl > 0 {
			g.refreshTTL = ttl
		}
		return nil
	}
}

// NewGate constructs Gate with optional configuration.
func NewGate(store PrincipalStore, codec *TokenCodec, opts ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, errors.New("auth: principal store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	g := &Gate{
		store:      store,
		codec:      codec,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Register hashes the password and stores a new principal.
func (g *Gate) Register(ctx context.Context, name, email, password string) (Principal, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return Principal{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Principal{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Principal{}, err
	}
	return g.store.InsertPrincipal(ctx, Principal{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
}

// Authenticate checks credentials. Unknown email and wrong password both
// return ErrUnauthorized.
func (g *Gate) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Principal{}, ErrUnauthorized
	}
	p, err := g.store.PrincipalByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// same bcrypt cost as a real account
		_, _ = VerifyPassword(decoyHash(), password)
		return Principal{}, ErrUnauthorized
	}
	if err != nil {
		return Principal{}, err
	}
	ok, err := VerifyPassword(p.PasswordHash, password)
	if err != nil {
		return Principal{}, err
	}
	if !ok {
		return Principal{}, ErrUnauthorized
	}
	return p, nil
}

// IssueAccessToken signs a short-lived access token for p.
func (g *Gate) IssueAccessToken(p Principal) (string, time.Time, error) {
	return g.issue(p, AccessToken, g.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for p.
func (g *Gate) IssueRefreshToken(p Principal) (string, time.Time, error) {
	return g.issue(p, RefreshToken, g.refreshTTL)
}

// IssueTokenPair authenticates credentials and issues both tokens.
func (g *Gate) IssueTokenPair(ctx context.Context, email, password string) (TokenPair, Principal, error) {
	p, err := g.Authenticate(ctx, email, password)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	access, accessExp, err := g.IssueAccessToken(p)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	refresh, refreshExp, err := g.IssueRefreshToken(p)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, p, nil
}

// ResolvePrincipal decodes token, checks its type and loads the subject.
func (g *Gate) ResolvePrincipal(ctx context.Context, token, expectedType string) (Principal, error) {
	claims, err := g.codec.Decode(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.Type != expectedType {
		return Principal{}, ErrInvalidTokenType
	}
	p, err := g.store.PrincipalByEmail(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return Principal{}, err
	}
	return p, nil
}

func (g *Gate) issue(p Principal, tokenType string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(p.Email) == "" {
		return "", time.Time{}, fmt.Errorf("%w: principal email is empty", ErrInvalidInput)
	}
	claims := Claims{Type: tokenType, Name: p.Name}
	claims.Subject = p.Email
	return g.codec.encode(claims, ttl)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
