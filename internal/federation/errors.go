package federation

import "errors"

var (
	// ErrVerificationFailed is returned when a provider assertion is rejected.
	ErrVerificationFailed = errors.New("federated assertion rejected")
	// ErrProviderUnavailable is returned when the provider could not be reached in time.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrProviderNotConfigured is returned for a known provider that has no verifier.
	ErrProviderNotConfigured = errors.New("provider is not configured")
	// ErrUnsupportedProvider is returned for an assertion tagged with an unknown provider.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrMissingClaims is returned when an assertion lacks the subject or email.
	ErrMissingClaims = errors.New("assertion is missing required claims")
)
