package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-jukebox/internal/spotify/spotifytest"
	"github.com/venue-jukebox/pkg/redis"
)

type handlerEnv struct {
	router *gin.Engine
	store  *redis.TokenStore
	fake   *spotifytest.Server
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client, fake := newTestClient(t)
	mr := miniredis.RunT(t)
	store := redis.NewTokenStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	r := gin.New()
	group := r.Group("/", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	NewHandler(client, store, zerolog.Nop()).RegisterRoutes(group)
	return &handlerEnv{router: r, store: store, fake: fake}
}

func (e *handlerEnv) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHandlerTokens(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(http.MethodPost, "/spotify/tokens", `{"code":"`+spotifytest.ValidCode+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "access-0", resp.AccessToken)
	assert.Greater(t, resp.ExpiresIn, 3000)

	stored, err := env.store.GetTokens(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-0", stored.RefreshToken)

	w = env.do(http.MethodPost, "/spotify/tokens", `{"code":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_grant")

	w = env.do(http.MethodPost, "/spotify/tokens", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRefresh(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(http.MethodPost, "/spotify/refresh", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "no stored session")

	require.NoError(t, env.store.StoreTokens(context.Background(), "user-1", &redis.TokenInfo{
		AccessToken: "old", RefreshToken: "refresh-0", ExpiresAt: time.Now().Add(-time.Minute),
	}))

	w = env.do(http.MethodPost, "/spotify/refresh", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.store.GetTokens(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh-0", stored.RefreshToken)

	w = env.do(http.MethodPost, "/spotify/refresh", `{"refresh_token":"revoked"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerProxy(t *testing.T) {
	env := newHandlerEnv(t)
	env.fake.SetPlaying("abc")

	w := env.do(http.MethodGet, "/spotify/me/player/currently-playing", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "no token anywhere")

	header := http.Header{}
	header.Set(HeaderSpotifyToken, "explicit")
	w = env.do(http.MethodGet, "/spotify/me/player/currently-playing", "", header)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"abc"`)
	assert.Equal(t, "Bearer explicit", env.fake.LastAuthorization())

	require.NoError(t, env.store.StoreTokens(context.Background(), "user-1", &redis.TokenInfo{
		AccessToken: "stale", RefreshToken: "refresh-0", ExpiresAt: time.Now().Add(-time.Minute),
	}))
	w = env.do(http.MethodGet, "/spotify/search?q=song", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "t-song")
	assert.Equal(t, "Bearer access-1", env.fake.LastAuthorization(), "stale stored token is refreshed first")

	w = env.do(http.MethodPut, "/spotify/me/player/volume?volume_percent=50", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/spotify/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Service not found")
}
