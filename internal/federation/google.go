package federation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	// GoogleIssuer is the issuer of Google ID tokens.
	GoogleIssuer = "https://accounts.google.com"
	// GoogleJWKSURL serves Google's current signing keys.
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// GoogleConfig configures ID token verification.
type GoogleConfig struct {
	ClientID   string
	Issuer     string
	JWKSURL    string
	HTTPClient *http.Client
}

// GoogleVerifier verifies Google ID tokens: signature, issuer, audience and expiry.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleVerifier creates a verifier that fetches signing keys from the JWKS endpoint.
// ctx scopes the background key fetches and should live as long as the verifier.
func NewGoogleVerifier(ctx context.Context, cfg GoogleConfig) (*GoogleVerifier, error) {
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = GoogleJWKSURL
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	return NewGoogleVerifierWithKeySet(cfg, oidc.NewRemoteKeySet(ctx, cfg.JWKSURL))
}

// NewGoogleVerifierWithKeySet creates a verifier backed by the given key set.
func NewGoogleVerifierWithKeySet(cfg GoogleConfig, keySet oidc.KeySet) (*GoogleVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google: client id is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}

	return &GoogleVerifier{
		verifier: oidc.NewVerifier(cfg.Issuer, fetchTrackingKeySet{keySet}, &oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

type keyFetchKey struct{}

// keyFetch holds the key retrieval failure seen during one verification.
type keyFetch struct {
	err error
}

// fetchTrackingKeySet records key retrieval failures in the keyFetch carried
// by ctx. go-oidc reports signature errors as text only, which loses the
// difference between an unreachable key endpoint and a bad signature.
type fetchTrackingKeySet struct {
	oidc.KeySet
}

func (k fetchTrackingKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.KeySet.VerifySignature(ctx, jwt)
	if err != nil && keyFetchFailed(err) {
		if f, ok := ctx.Value(keyFetchKey{}).(*keyFetch); ok {
			f.err = err
		}
	}
	return payload, err
}

// keyFetchFailed reports whether err comes from retrieving keys rather than
// from checking the token against them. RemoteKeySet prefixes every remote
// failure (transport errors, non-2xx answers, undecodable bodies) with
// "fetching keys".
func keyFetchFailed(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return true
	default:
		return strings.HasPrefix(err.Error(), "fetching keys")
	}
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify implements ProviderVerifier.
func (g *GoogleVerifier) Verify(ctx context.Context, a Assertion) (*Claim, error) {
	if a.IDToken == "" {
		return nil, fmt.Errorf("%w: empty id token", ErrVerificationFailed)
	}

	fetch := &keyFetch{}
	idToken, err := g.verifier.Verify(context.WithValue(ctx, keyFetchKey{}, fetch), a.IDToken)
	if err != nil {
		switch {
		case fetch.err != nil:
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, fetch.err)
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, fmt.Errorf("%w: email not verified", ErrVerificationFailed)
	}

	return &Claim{
		Subject:     idToken.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	}, nil
}
