package federation

import (
	"context"
	"fmt"
)

// AppleVerifier accepts the subject, email and name posted by the client after
// the Sign in with Apple redirect. Nothing here is cryptographically checked;
// the client is trusted for these fields.
type AppleVerifier struct{}

// NewAppleVerifier creates an AppleVerifier.
func NewAppleVerifier() *AppleVerifier {
	return &AppleVerifier{}
}

// Verify implements ProviderVerifier.
func (AppleVerifier) Verify(_ context.Context, a Assertion) (*Claim, error) {
	if a.Subject == "" || a.Email == "" {
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, ErrMissingClaims)
	}

	return &Claim{
		Subject:     a.Subject,
		Email:       a.Email,
		DisplayName: a.Name.Full(),
	}, nil
}
