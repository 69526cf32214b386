package services

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

// TokenSigner signs and parses HS256 tokens with one shared secret.
type TokenSigner struct {
	keyID  string
	secret []byte
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner(keyID string, secret []byte) *TokenSigner {
	return &TokenSigner{
		keyID:  keyID,
		secret: secret,
	}
}

func (s *TokenSigner) Sign(claims jwt.Claims) (string, error) {
	// Create a new token object, specifying signing method and the claims
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}

	// Sign and get the complete encoded token as a string using the secret
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Parse validates the signature of raw and decodes it into claims.
// Any algorithm other than HS256 is rejected before the key is used.
func (s *TokenSigner) Parse(raw string, claims jwt.Claims, opts ...jwt.ParserOption) (*jwt.Token, error) {
	opts = append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}, opts...)

	return jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if kid, ok := token.Header["kid"].(string); ok && s.keyID != "" && kid != s.keyID {
			return nil, ErrInvalidKeyID
		}
		return s.secret, nil
	}, opts...)
}
