package auth

import (
	"context"
	"time"
)

// Principal is an authenticated author identity.
type Principal struct {
	ID           int64     `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenPair holds freshly issued access and refresh tokens.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// PrincipalStore describes persistence operations required by the auth subsystem.
type PrincipalStore interface {
	// PrincipalByEmail returns ErrNotFound when no author has the email.
	PrincipalByEmail(ctx context.Context, email string) (Principal, error)
	// InsertPrincipal returns ErrAlreadyExists on a duplicate email or name.
	InsertPrincipal(ctx context.Context, p Principal) (Principal, error)
}
