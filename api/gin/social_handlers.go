package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/shadow-auth/domain"
	"github.com/pilab-dev/shadow-auth/internal/federation"
	"github.com/pilab-dev/shadow-auth/services"
)

type googleRequest struct {
	Token string `json:"token"`
}

type appleRequest struct {
	User     string                `json:"user"`
	Email    string                `json:"email"`
	FullName federation.PersonName `json:"fullName"`
}

// SocialUser is the profile returned by federated login.
type SocialUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// SocialResponse is returned by federated login.
type SocialResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      SocialUser `json:"user"`
}

func newSocialResponse(res *services.AuthResult) SocialResponse {
	return SocialResponse{
		Token:     res.Token.Value,
		ExpiresAt: res.Token.ExpiresAt,
		User: SocialUser{
			ID:           res.Identity.ID,
			Name:         res.Identity.DisplayName,
			Email:        res.Identity.Email,
			ProfileImage: res.Identity.AvatarURL,
		},
	}
}

// GoogleHandler signs in with a Google ID token.
func (a *AuthAPI) GoogleHandler(c *gin.Context) {
	var req googleRequest
	if !bindJSON(c, &req) {
		return
	}

	a.federatedLogin(c, federation.Assertion{
		Provider: domain.OriginGoogle,
		IDToken:  req.Token,
	})
}

// AppleHandler signs in with the fields posted after the Apple redirect.
func (a *AuthAPI) AppleHandler(c *gin.Context) {
	var req appleRequest
	if !bindJSON(c, &req) {
		return
	}

	a.federatedLogin(c, federation.Assertion{
		Provider: domain.OriginApple,
		Subject:  req.User,
		Email:    req.Email,
		Name:     req.FullName,
	})
}

func (a *AuthAPI) federatedLogin(c *gin.Context, assertion federation.Assertion) {
	res, err := a.service.FederatedLogin(c.Request.Context(), assertion)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSocialResponse(res))
}
