package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/shadow-auth/domain"
	serrors "github.com/pilab-dev/shadow-auth/errors"
	"github.com/pilab-dev/shadow-auth/internal/federation"
	"github.com/pilab-dev/shadow-auth/middleware"
	"github.com/pilab-dev/shadow-auth/services"
)

// AuthService is the subset of services.AuthService the HTTP layer uses.
type AuthService interface {
	IssueChallenge(ctx context.Context) (*domain.IssuedChallenge, error)
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResult, error)
	FederatedLogin(ctx context.Context, a federation.Assertion) (*services.AuthResult, error)
	ResolveCaller(ctx context.Context, rawToken string) (*domain.Identity, error)
	UpdateProfile(ctx context.Context, id string, in services.ProfileInput) (*domain.Identity, error)
	ChangePassword(ctx context.Context, id string, in services.ChangePasswordInput) error
}

// AuthAPI serves the /api/auth routes.
type AuthAPI struct {
	service AuthService
	authn   *middleware.Authenticator
}

// NewAuthAPI creates a new AuthAPI.
func NewAuthAPI(service AuthService) *AuthAPI {
	return &AuthAPI{
		service: service,
		authn:   middleware.NewAuthenticator(service),
	}
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RegisterRoutes registers the auth routes on rg, typically the /api group.
func (a *AuthAPI) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.GET("/captcha", a.CaptchaHandler)
		auth.POST("/register", a.RegisterHandler)
		auth.POST("/login", a.LoginHandler)
		auth.POST("/google", a.GoogleHandler)
		auth.POST("/apple", a.AppleHandler)
	}

	protected := rg.Group("/auth", a.authn.RequireIdentity())
	{
		protected.GET("", a.MeHandler)
		protected.PATCH("/profile", a.UpdateProfileHandler)
		protected.POST("/password", a.ChangePasswordHandler)
	}
}

// CaptchaHandler issues a new captcha challenge.
func (a *AuthAPI) CaptchaHandler(c *gin.Context) {
	issued, err := a.service.IssueChallenge(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, issued)
}

// RegisterHandler creates a local account.
func (a *AuthAPI) RegisterHandler(c *gin.Context) {
	var in services.RegisterInput
	if !bindJSON(c, &in) {
		return
	}

	res, err := a.service.Register(c.Request.Context(), in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: res.Token.Value, ExpiresAt: res.Token.ExpiresAt})
}

// LoginHandler authenticates a local account.
func (a *AuthAPI) LoginHandler(c *gin.Context) {
	var in services.LoginInput
	if !bindJSON(c, &in) {
		return
	}

	res, err := a.service.Login(c.Request.Context(), in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: res.Token.Value, ExpiresAt: res.Token.ExpiresAt})
}

// MeHandler returns the authenticated identity without its credential.
func (a *AuthAPI) MeHandler(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		renderError(c, serrors.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// UpdateProfileHandler changes display name, avatar or location.
func (a *AuthAPI) UpdateProfileHandler(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		renderError(c, serrors.ErrUnauthorized)
		return
	}

	var in services.ProfileInput
	if !bindJSON(c, &in) {
		return
	}

	updated, err := a.service.UpdateProfile(c.Request.Context(), identity.ID, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ChangePasswordHandler replaces the password of a local account.
func (a *AuthAPI) ChangePasswordHandler(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		renderError(c, serrors.ErrUnauthorized)
		return
	}

	var in services.ChangePasswordInput
	if !bindJSON(c, &in) {
		return
	}

	if err := a.service.ChangePassword(c.Request.Context(), identity.ID, in); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
