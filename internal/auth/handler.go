package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/venue-jukebox/internal/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	account := r.Group("/account")
	{
		// Public routes
		account.POST("/register", h.register)
		account.POST("/login", h.login)
		account.POST("/refresh", h.refresh)

		// Protected routes
		protected := account.Group("", Middleware(h.svc))
		protected.GET("", h.profile)
		protected.DELETE("", h.deleteAccount)
		protected.POST("/logout", h.logout)
	}
}

type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	user, err := h.svc.Register(c.Request.Context(), RegisterInput(req))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// a missing field must look the same as a wrong one
		apperr.Respond(c, apperr.ErrInvalidCredentials)
		return
	}

	token, err := h.svc.Login(c.Request.Context(), clientCredentials(c, req.ClientID, req.ClientSecret), req.Username, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}

	token, err := h.svc.Refresh(c.Request.Context(), clientCredentials(c, req.ClientID, req.ClientSecret), req.RefreshToken)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) logout(c *gin.Context) {
	token, ok := TokenFromContext(c)
	if !ok {
		apperr.Respond(c, apperr.ErrInvalidToken)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), token); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) profile(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(ContextUserID))
	if err != nil {
		apperr.Respond(c, apperr.ErrInvalidToken)
		return
	}
	profile, err := h.svc.Profile(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) deleteAccount(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(ContextUserID))
	if err != nil {
		apperr.Respond(c, apperr.ErrInvalidToken)
		return
	}
	if err := h.svc.DeleteAccount(c.Request.Context(), userID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// clientCredentials prefers the body fields and falls back to HTTP Basic.
func clientCredentials(c *gin.Context, id, secret string) ClientCredentials {
	if id == "" {
		if user, pass, ok := c.Request.BasicAuth(); ok {
			return ClientCredentials{ID: user, Secret: pass}
		}
	}
	return ClientCredentials{ID: id, Secret: secret}
}
