package auth

import "errors"

var (
	ErrUnauthorized      = errors.New("auth: unauthorized")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrInvalidTokenType  = errors.New("auth: invalid token type")
	ErrPrincipalNotFound = errors.New("auth: principal not found")
	ErrForbidden         = errors.New("auth: forbidden")
	ErrNotFound          = errors.New("auth: not found")
	ErrAlreadyExists     = errors.New("auth: already exists")
	ErrInvalidInput      = errors.New("auth: invalid input")
)
