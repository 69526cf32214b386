package federation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-auth/domain"
	"github.com/rs/zerolog/log"
)

// PersonName is the structured name a client may submit alongside an assertion.
type PersonName struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

// Full joins the name parts, skipping empty ones.
func (n PersonName) Full() string {
	return strings.Join(strings.Fields(n.GivenName+" "+n.FamilyName), " ")
}

// Assertion is what a client presents for federated login. Provider selects
// which fields are meaningful: Google reads IDToken only, Apple reads
// Subject, Email and Name.
type Assertion struct {
	Provider domain.Origin
	IDToken  string
	Subject  string
	Email    string
	Name     PersonName
}

// Claim is the canonical identity extracted from a verified assertion.
type Claim struct {
	Provider    domain.Origin
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

// ProviderVerifier verifies one provider's assertions.
type ProviderVerifier interface {
	Verify(ctx context.Context, a Assertion) (*Claim, error)
}

// Verifier dispatches assertions to the verifier registered for their provider.
type Verifier struct {
	providers map[domain.Origin]ProviderVerifier
	timeout   time.Duration
}

// NewVerifier creates a Verifier. A positive timeout bounds each verification.
func NewVerifier(timeout time.Duration) *Verifier {
	return &Verifier{
		providers: make(map[domain.Origin]ProviderVerifier),
		timeout:   timeout,
	}
}

// Register installs the verifier for origin, replacing any previous one.
func (v *Verifier) Register(origin domain.Origin, pv ProviderVerifier) {
	v.providers[origin] = pv
}

// Verify checks the assertion and returns the canonical claim.
func (v *Verifier) Verify(ctx context.Context, a Assertion) (*Claim, error) {
	if !a.Provider.IsFederated() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, a.Provider)
	}

	pv, ok := v.providers[a.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, a.Provider)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	claim, err := pv.Verify(ctx, a)
	if err != nil {
		log.Debug().Err(err).Str("provider", string(a.Provider)).Msg("federated assertion not accepted")
		return nil, err
	}

	claim.Provider = a.Provider
	claim.Email = domain.NormalizeEmail(claim.Email)
	if claim.Subject == "" || claim.Email == "" {
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, ErrMissingClaims)
	}

	return claim, nil
}
