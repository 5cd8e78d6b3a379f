package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"bookcat.org/internal/auth"
)

func (s *Store) PrincipalByEmail(ctx context.Context, email string) (auth.Principal, error) {
	if s.db == nil {
		return auth.Principal{}, errNoDB
	}
	var p auth.Principal
	err := s.db.QueryRowContext(ctx, `
		select id, name, email, password_hash, created_at
		from authors
		where email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Principal{}, err
	}
	return p, nil
}

func (s *Store) InsertPrincipal(ctx context.Context, p auth.Principal) (auth.Principal, error) {
	if s.db == nil {
		return auth.Principal{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into authors (name, email, password_hash)
		values ($1, $2, $3)
		returning id, created_at
	`, p.Name, p.Email, p.PasswordHash)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Principal{}, auth.ErrAlreadyExists
		}
		return auth.Principal{}, err
	}
	return p, nil
}
