package auth

import (
	"fmt"

	"github.com/pilab-dev/shadow-auth/services"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used for password credentials.
const DefaultCost = 10

// BcryptPasswordHasher implements the services.PasswordHasher interface using bcrypt.
// The salt and cost are embedded in the produced hash, so Verify needs nothing else.
type BcryptPasswordHasher struct {
	Cost int
}

// NewBcryptPasswordHasher creates a new BcryptPasswordHasher.
// DefaultCost is used if cost is outside bcrypt's accepted range.
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptPasswordHasher{Cost: cost}
}

// Hash generates a salted bcrypt hash for the given password.
func (h *BcryptPasswordHasher) Hash(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a bcrypt hashed password with its possible plaintext equivalent.
// A malformed stored hash is reported as a mismatch.
func (h *BcryptPasswordHasher) Verify(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// Ensure it implements the interface
var _ services.PasswordHasher = (*BcryptPasswordHasher)(nil)
