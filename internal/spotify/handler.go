package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/pkg/redis"
)

// HeaderSpotifyToken lets clients supply their own Spotify access token to
// the proxy instead of the one stored for them.
const HeaderSpotifyToken = "X-Spotify-Token"

type Handler struct {
	client     *Client
	tokenStore *redis.TokenStore
	logger     zerolog.Logger
}

func NewHandler(client *Client, tokenStore *redis.TokenStore, logger zerolog.Logger) *Handler {
	return &Handler{
		client:     client,
		tokenStore: tokenStore,
		logger:     logger.With().Str("handler", "spotify").Logger(),
	}
}

// RegisterRoutes mounts the Spotify routes on r, which must already carry
// the bearer token middleware.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/spotify/authorize", h.authorize)
	r.POST("/spotify/tokens", h.tokens)
	r.POST("/spotify/refresh", h.refresh)
	r.GET("/spotify/*path", h.proxy)
	r.PUT("/spotify/*path", h.proxy)
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func newTokenResponse(s *Session, now time.Time) TokenResponse {
	return TokenResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    int(s.ExpiresAt.Sub(now).Seconds()),
		ExpiresAt:    s.ExpiresAt,
	}
}

func (h *Handler) authorize(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		state = uuid.NewString()
	}
	c.JSON(http.StatusOK, gin.H{"url": h.client.GetAuthURL(state), "state": state})
}

type TokensRequest struct {
	Code string `json:"code" binding:"required"`
}

// tokens exchanges an authorization code and remembers the session for the
// calling user.
func (h *Handler) tokens(c *gin.Context) {
	var req TokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	session, err := h.client.ExchangeCode(c.Request.Context(), req.Code)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	userID := c.GetString("user_id")
	if err := h.tokenStore.StoreTokens(c.Request.Context(), userID, &redis.TokenInfo{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
	}); err != nil {
		apperr.Respond(c, err)
		return
	}

	h.logger.Info().Str("user_id", userID).Msg("Spotify session linked")
	c.JSON(http.StatusOK, newTokenResponse(session, h.client.now()))
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh refreshes the given refresh token, or the caller's stored one when
// the body omits it.
func (h *Handler) refresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
			return
		}
	}

	ctx := c.Request.Context()
	userID := c.GetString("user_id")
	if req.RefreshToken == "" {
		stored, err := h.tokenStore.GetTokens(ctx, userID)
		if err != nil {
			apperr.Respond(c, storeError(err))
			return
		}
		req.RefreshToken = stored.RefreshToken
	}

	session, err := h.client.RefreshSession(ctx, req.RefreshToken)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	if _, err := h.tokenStore.RefreshToken(ctx, userID, session.AccessToken, session.RefreshToken, session.ExpiresAt); err != nil && !errors.Is(err, redis.ErrTokenNotFound) {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to persist refreshed Spotify token")
	}

	c.JSON(http.StatusOK, newTokenResponse(session, h.client.now()))
}

// proxy forwards the request to the Web API and relays status and body.
func (h *Handler) proxy(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := h.accessToken(ctx, c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var body io.Reader
	if c.Request.Method == http.MethodPut && c.Request.ContentLength != 0 {
		body = c.Request.Body
	}

	resp, err := h.client.Do(ctx, token, c.Request.Method, c.Param("path"), c.Request.URL.Query(), body)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		c.Status(http.StatusNoContent)
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		apperr.Respond(c, fmt.Errorf("failed to read spotify response: %w", err))
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, data)
}

// accessToken picks the Spotify token for the proxied call: an explicit
// header wins, otherwise the stored session is used and refreshed if stale.
func (h *Handler) accessToken(ctx context.Context, c *gin.Context) (string, error) {
	if header := c.GetHeader(HeaderSpotifyToken); header != "" {
		return strings.TrimPrefix(header, "Bearer "), nil
	}

	userID := c.GetString("user_id")
	stored, err := h.tokenStore.GetTokens(ctx, userID)
	if err != nil {
		return "", storeError(err)
	}

	session, refreshed, err := h.client.EnsureFresh(ctx, Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiresAt:    stored.ExpiresAt,
	})
	if err != nil {
		return "", err
	}
	if refreshed {
		if _, err := h.tokenStore.RefreshToken(ctx, userID, session.AccessToken, session.RefreshToken, session.ExpiresAt); err != nil {
			h.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to persist refreshed Spotify token")
		}
	}
	return session.AccessToken, nil
}

func storeError(err error) error {
	if errors.Is(err, redis.ErrTokenNotFound) {
		return apperr.ErrNoSpotifySession
	}
	return err
}
