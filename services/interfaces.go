package services

import (
	"context"

	"github.com/pilab-dev/shadow-auth/internal/federation"
)

// PasswordHasher defines an interface for hashing and verifying passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) bool
}

// ChallengeRenderer produces a fresh challenge answer and its displayable form.
type ChallengeRenderer interface {
	Render() (answer string, image string, err error)
}

// FederatedVerifier turns a provider assertion into a canonical claim.
type FederatedVerifier interface {
	Verify(ctx context.Context, a federation.Assertion) (*federation.Claim, error)
}
