package venue

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-jukebox/pkg/models"
)

// newTestRouter authenticates every request as the user in X-Test-User.
func newTestRouter(env *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/", func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-Test-User"))
		c.Next()
	})
	NewHandler(env.svc).RegisterRoutes(api)
	return r
}

func call(r *gin.Engine, user uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVenueEndpoints(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)
	guest := env.user(t, "guest")
	venuePath := "/venue/" + env.venueID.String()

	w := call(r, guest.ID, http.MethodGet, "/venue", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.PublicVenue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = call(r, guest.ID, http.MethodGet, "/venue/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(r, guest.ID, http.MethodPost, "/vote", `{"venue_id":"`+env.venueID.String()+`","vote":-1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(r, guest.ID, http.MethodPost, venuePath+"/checkin", "")
	require.Equal(t, http.StatusOK, w.Code)
	var venue models.PublicVenue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &venue))
	assert.Equal(t, 1, venue.AttendeeCount)

	w = call(r, guest.ID, http.MethodPost, "/vote", `{"venue_id":"`+env.venueID.String()+`","vote":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, guest.ID, http.MethodPost, "/vote", `{"venue_id":"`+env.venueID.String()+`","vote":-1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result VoteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Skipped, "a single attendee voting down is a majority")
	assert.Zero(t, result.Venue.VoteCount)

	w = call(r, guest.ID, http.MethodGet, venuePath+"/search?q=blue", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "t-blue")

	w = call(r, guest.ID, http.MethodPost, venuePath+"/queue", `{"uri":"spotify:track:t-blue"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	env.fake.SetPlaying("abc")
	w = call(r, guest.ID, http.MethodGet, venuePath+"/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"current_song_id":"abc"`)

	w = call(r, guest.ID, http.MethodPost, venuePath+"/checkout", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = call(r, guest.ID, http.MethodPost, "/venue", `{"name":"Guest Bar"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "guest has no Spotify session")

	w = call(r, env.owner.ID, http.MethodPost, "/venue", `{"name":"Second Room","address":"1 Main St"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
