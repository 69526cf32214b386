package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/shadow-auth/domain"
	serrors "github.com/pilab-dev/shadow-auth/errors"
	"github.com/rs/zerolog/log"
)

// TokenHeader is the legacy header some clients still send the token in.
const TokenHeader = "x-auth-token"

// identityKey is the gin context key holding the resolved *domain.Identity.
const identityKey = "auth-identity"

// CallerResolver resolves a raw bearer token to the identity it names.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, rawToken string) (*domain.Identity, error)
}

// Authenticator validates bearer tokens for protected routes.
type Authenticator struct {
	resolver CallerResolver
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(resolver CallerResolver) *Authenticator {
	return &Authenticator{
		resolver: resolver,
	}
}

// ExtractToken returns the token from "Authorization: Bearer <token>" or,
// failing that, from the x-auth-token header.
func ExtractToken(h http.Header) (string, bool) {
	if authHeader := h.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token := strings.TrimSpace(parts[1])
			return token, token != ""
		}
		return "", false
	}

	token := strings.TrimSpace(h.Get(TokenHeader))
	return token, token != ""
}

// Authenticate resolves the caller of a request with headers h.
// Any failure other than an unavailable store is reported as unauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, h http.Header) (*domain.Identity, error) {
	raw, ok := ExtractToken(h)
	if !ok {
		return nil, serrors.ErrUnauthorized
	}

	return a.resolver.ResolveCaller(ctx, raw)
}

// RequireIdentity aborts the request unless it carries a valid token. On
// success the identity is available through IdentityFrom and in the request
// context through domain.IdentityFromContext.
func (a *Authenticator) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := a.Authenticate(c.Request.Context(), c.Request.Header)
		if err != nil {
			authErr := serrors.From(err)
			if authErr.Code == serrors.ServerError {
				log.Error().Err(err).Msg("caller resolution failed")
			}
			c.AbortWithStatusJSON(authErr.Status, authErr)
			return
		}

		c.Set(identityKey, identity)
		c.Request = c.Request.WithContext(domain.WithIdentity(c.Request.Context(), identity))

		c.Next()
	}
}

// IdentityFrom returns the identity attached by RequireIdentity.
func IdentityFrom(c *gin.Context) (*domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*domain.Identity)
	return identity, ok && identity != nil
}
