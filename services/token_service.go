package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-auth/domain"
	"github.com/rs/zerolog/log"
)

// MinSecretLength is the shortest signing secret accepted at startup.
const MinSecretLength = 32

var (
	// ErrInvalidToken covers every structural, signature and expiry failure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned by NewTokenService for a missing or short secret.
	ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
)

// TokenService issues and verifies signed bearer tokens. It keeps no state
// beyond its configuration, so it is safe for concurrent use.
type TokenService struct {
	signer *TokenSigner
	issuer string
	now    func() time.Time
}

// TokenServiceOption customizes a TokenService.
type TokenServiceOption func(*TokenService)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) { s.now = now }
}

// WithKeyID stamps issued tokens with kid and rejects tokens carrying another one.
func WithKeyID(kid string) TokenServiceOption {
	return func(s *TokenService) { s.signer.keyID = kid }
}

// NewTokenService creates a new TokenService instance.
// It fails when secret is shorter than MinSecretLength.
func NewTokenService(secret, issuer string, opts ...TokenServiceOption) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	s := &TokenService{
		signer: NewTokenSigner("", []byte(secret)),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Issue signs a token for subject valid for ttl.
func (s *TokenService) Issue(subject string, ttl time.Duration) (*domain.Token, error) {
	if subject == "" {
		return nil, errors.New("token subject is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	now := s.now().UTC().Truncate(time.Second)
	token := &domain.Token{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	claims := jwt.RegisteredClaims{
		ID:        token.ID,
		Subject:   token.Subject,
		Issuer:    token.Issuer,
		IssuedAt:  jwt.NewNumericDate(token.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
	}

	value, err := s.signer.Sign(claims)
	if err != nil {
		return nil, err
	}
	token.Value = value

	return token, nil
}

// Verify checks signature and expiry and returns the decoded token.
// All failures are reported as ErrInvalidToken.
func (s *TokenService) Verify(raw string) (*domain.Token, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims jwt.RegisteredClaims
	parsed, err := s.signer.Parse(raw, &claims, opts...)
	if err != nil || !parsed.Valid {
		log.Debug().Err(err).Msg("bearer token rejected")
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	token := &domain.Token{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		Value:     raw,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}

	return token, nil
}
