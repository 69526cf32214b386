package gin

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	serrors "github.com/pilab-dev/shadow-auth/errors"
	"github.com/rs/zerolog/log"
)

// retryAfterSeconds is advertised with every service_unavailable response.
const retryAfterSeconds = 5

// renderError writes the public form of err. Internal causes are logged, never sent.
func renderError(c *gin.Context, err error) {
	authErr := serrors.From(err)

	switch authErr.Code {
	case serrors.ServerError:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
	case serrors.ServiceUnavailable:
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("dependency unavailable")
	default:
		log.Debug().Str("code", authErr.Code).Str("path", c.FullPath()).Msg("request rejected")
	}

	if authErr.Retryable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	c.AbortWithStatusJSON(authErr.Status, authErr)
}

// bindJSON decodes the request body into dst, reporting malformed JSON as invalid input.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		renderError(c, serrors.NewInvalidInput(serrors.FieldError{Field: "body", Message: bodyMessage(err)}))
		return false
	}
	return true
}

func bodyMessage(err error) string {
	if errors.Is(err, io.EOF) {
		return "request body is empty"
	}
	return "request body must be valid JSON"
}
