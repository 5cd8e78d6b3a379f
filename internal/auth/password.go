package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the most bcrypt will hash.
const maxPasswordBytes = 72

// HashPassword hashes plaintext password using bcrypt. Each call draws a fresh salt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
// A mismatch is (false, nil); an unparseable hash is returned as an error.
func VerifyPassword(hash, password string) (bool, error) {
	if hash == "" {
		return false, errors.New("auth: password hash is empty")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("auth: malformed password hash: %w", err)
	}
}

// decoyHash is compared against when the account does not exist.
var decoyHash = sync.OnceValue(func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("bookcat-decoy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: decoy hash: %v", err))
	}
	return string(hash)
})
