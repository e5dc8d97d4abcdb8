package venue

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/venue-jukebox/internal/apperr"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the venue and vote routes on r, which must already
// carry the bearer token middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	venues := r.Group("/venue")
	{
		venues.GET("", h.list)
		venues.POST("", h.create)
		venues.GET("/:id", h.get)
		venues.POST("/:id/checkin", h.checkIn)
		venues.POST("/:id/checkout", h.checkOut)
		venues.GET("/:id/current", h.current)
		venues.GET("/:id/search", h.search)
		venues.POST("/:id/queue", h.queue)
	}
	r.POST("/vote", h.vote)
}

type CreateVenueRequest struct {
	Name       string `json:"name" binding:"required"`
	Address    string `json:"address"`
	SpotifyURI string `json:"spotify_uri"`
	DeviceID   string `json:"device_id"`
}

type QueueRequest struct {
	URI string `json:"uri" binding:"required"`
}

type VoteRequest struct {
	VenueID string `json:"venue_id" binding:"required,uuid"`
	Vote    int    `json:"vote" binding:"required,oneof=-1 1"`
}

func (h *Handler) list(c *gin.Context) {
	venues, err := h.service.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, venues)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	venue, err := h.service.Create(c.Request.Context(), userID, CreateInput(req))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, venue)
}

func (h *Handler) get(c *gin.Context) {
	venueID, ok := venueParam(c)
	if !ok {
		return
	}
	venue, err := h.service.Get(c.Request.Context(), venueID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, venue)
}

func (h *Handler) checkIn(c *gin.Context) {
	venueID, ok := venueParam(c)
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	venue, err := h.service.CheckIn(c.Request.Context(), venueID, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, venue)
}

func (h *Handler) checkOut(c *gin.Context) {
	venueID, ok := venueParam(c)
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	venue, err := h.service.CheckOut(c.Request.Context(), venueID, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, venue)
}

func (h *Handler) current(c *gin.Context) {
	venueID, ok := venueParam(c)
	if !ok {
		return
	}
	track, err := h.service.Current(c.Request.Context(), venueID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, track)
}

func (h *Handler) search(c *gin.Context) {
	venueID, ok := venueParam(c)
	if !ok {
		return
	}
	tracks, err := h.service.Search(c.Request.Context(), venueID, c.Query("q"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, tracks)
}

func (h *Handler) queue(c *gin.Context) {
	venueID, ok := venueParam(c)
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req QueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}
	if err := h.service.Queue(c.Request.Context(), venueID, userID, req.URI); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	result, err := h.service.Vote(c.Request.Context(), uuid.MustParse(req.VenueID), userID, req.Vote)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func venueParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperr.Respond(c, apperr.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		apperr.Respond(c, apperr.ErrInvalidToken)
		return uuid.Nil, false
	}
	return id, true
}
