package users

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// TokenAuthLength is the number of random bytes in a token (32 hex chars)
const TokenAuthLength = 16

// HashPassword returns a bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with a stored hash. Accounts carrying the
// DisallowPasswordLogin placeholder always fail.
func CheckPassword(hash, password string) error {
	if hash == DisallowPasswordLogin {
		return ErrPasswordLoginDisabled
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return nil
}

// GenerateTokenAuth creates a new random auth token
func GenerateTokenAuth() (string, error) {
	b := make([]byte, TokenAuthLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
