package auth

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/pkg/models"
)

// Context keys set by Middleware.
const (
	ContextUserID = "user_id"
	ContextToken  = "token"
)

// Middleware authenticates the bearer access token. Websocket clients that
// cannot set headers may pass it in the token query parameter.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			apperr.Respond(c, fmt.Errorf("%w: missing bearer token", apperr.ErrInvalidToken))
			return
		}

		token, err := svc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		c.Set(ContextUserID, token.UserID.String())
		c.Set(ContextToken, token)
		c.Next()
	}
}

// TokenFromContext returns the token row stored by Middleware.
func TokenFromContext(c *gin.Context) (*models.Token, bool) {
	v, ok := c.Get(ContextToken)
	if !ok {
		return nil, false
	}
	token, ok := v.(*models.Token)
	return token, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}
