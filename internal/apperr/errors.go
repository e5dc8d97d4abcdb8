// Package apperr holds the error taxonomy shared by the API handlers and the
// mapping from those errors to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidClient      = errors.New("invalid client")
	ErrTokensExpired      = errors.New("tokens expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoSpotifySession   = errors.New("no spotify session")

	// Request errors
	ErrValidation    = errors.New("invalid request")
	ErrUsernameTaken = errors.New("username already exists")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
)

// CodeTokensExpired is sent next to the message on 401 responses caused by an
// expired access token, so clients can tell it apart from a bad token.
const CodeTokensExpired = "tokens_expired"

// UpstreamError carries a non-2xx answer from Spotify so it can be passed
// through to the caller unchanged.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("spotify: upstream responded with status %d", e.Status)
}

// Response is the failure body returned by every endpoint.
type Response struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Status maps an error to the HTTP status it should be reported with.
func Status(err error) int {
	var upstream *UpstreamError
	switch {
	case errors.As(err, &upstream):
		return upstream.Status
	case errors.Is(err, ErrTokensExpired), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidClient),
		errors.Is(err, ErrValidation), errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrNoSpotifySession):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Respond aborts the request with the status and body matching err. Internal
// faults are logged and reported with a generic message.
func Respond(c *gin.Context, err error) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		c.Abort()
		c.Data(upstream.Status, "application/json", upstream.Body)
		return
	}

	status := Status(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.AbortWithStatusJSON(status, Response{Message: "internal server error"})
		return
	}

	resp := Response{Message: err.Error()}
	switch {
	case errors.Is(err, ErrTokensExpired):
		resp = Response{Message: ErrTokensExpired.Error(), Code: CodeTokensExpired}
	case errors.Is(err, ErrInvalidCredentials):
		// never leak which half of the credentials was wrong
		resp.Message = ErrInvalidCredentials.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}
