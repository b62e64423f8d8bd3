package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default cost parameter for bcrypt hashing.
const DefaultBcryptCost = 12

// MaxPasswordLength is the longest accepted password.
// bcrypt silently truncates at 72 bytes, so the limit is enforced here.
const MaxPasswordLength = 72

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ErrInvalidCredentials is returned when a username/password pair does not
// match the configured admin credential.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credential is the single admin credential the API authenticates against.
// It is configured at init time and stored as a bcrypt hash.
type Credential struct {
	Username     string
	PasswordHash string
}

// Validate checks the supplied username/password pair.
func (c Credential) Validate(username, password string) error {
	if c.Username == "" || c.PasswordHash == "" {
		return fmt.Errorf("admin credential not configured: %w", ErrInvalidCredentials)
	}
	if username != c.Username {
		// Burn a comparison anyway so username probing costs the same.
		_ = bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ValidatePassword checks length constraints before hashing.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}
