package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/pkg/models"
)

func newTestRouter(t *testing.T, accessTTL time.Duration) (*gin.Engine, *serviceEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := newServiceEnv(t, accessTTL)
	r := gin.New()
	NewHandler(env.svc).RegisterRoutes(&r.RouterGroup)
	return r, env
}

func doJSON(r *gin.Engine, method, path, body string, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
}

func loginBody(username, password string) string {
	return `{"username":"` + username + `","password":"` + password + `","client_id":"` + testClientID + `","client_secret":"` + testClientSecret + `"}`
}

func TestAccountFlow(t *testing.T) {
	r, _ := newTestRouter(t, time.Hour)

	w := doJSON(r, http.MethodPost, "/account/register", `{"username":"ada","password":"correct horse","first_name":"Ada"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = doJSON(r, http.MethodPost, "/account/register", `{"username":"ada","password":"correct horse"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/account/login", loginBody("ada", "correct horse"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var token models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	require.NotEmpty(t, token.AccessToken)

	w = doJSON(r, http.MethodGet, "/account", "", bearer(token.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"ada"`)
	assert.Contains(t, w.Body.String(), `"owned_venue_ids":[]`)

	w = doJSON(r, http.MethodPost, "/account/refresh", `{"refresh_token":"`+token.RefreshToken+`"}`, func(req *http.Request) {
		req.SetBasicAuth(testClientID, testClientSecret)
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rotated models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))

	w = doJSON(r, http.MethodGet, "/account", "", bearer(token.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "rotated access token is revoked")

	w = doJSON(r, http.MethodPost, "/account/logout", "", bearer(rotated.AccessToken))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodGet, "/account", "", bearer(rotated.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginResponsesMatch(t *testing.T) {
	r, env := newTestRouter(t, time.Hour)
	env.register(t, "ada", "correct horse")

	wrong := doJSON(r, http.MethodPost, "/account/login", loginBody("ada", "nope nope"), nil)
	unknown := doJSON(r, http.MethodPost, "/account/login", loginBody("ghost", "nope nope"), nil)

	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	assert.JSONEq(t, `{"message":"invalid credentials"}`, wrong.Body.String())
}

func TestMiddlewareExpiredToken(t *testing.T) {
	r, env := newTestRouter(t, -time.Minute)
	env.register(t, "ada", "correct horse")

	w := doJSON(r, http.MethodPost, "/account/login", loginBody("ada", "correct horse"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var token models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))

	w = doJSON(r, http.MethodGet, "/account", "", bearer(token.AccessToken))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp apperr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, apperr.CodeTokensExpired, resp.Code)

	w = doJSON(r, http.MethodGet, "/account", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var missing apperr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &missing))
	assert.NotEmpty(t, missing.Message)
	assert.Empty(t, missing.Code)
}

func TestMiddlewareQueryToken(t *testing.T) {
	r, env := newTestRouter(t, time.Hour)
	env.register(t, "ada", "correct horse")

	w := doJSON(r, http.MethodPost, "/account/login", loginBody("ada", "correct horse"), nil)
	var token models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))

	w = doJSON(r, http.MethodGet, "/account?token="+token.AccessToken, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteAccountEndpoint(t *testing.T) {
	r, env := newTestRouter(t, time.Hour)
	env.register(t, "ada", "correct horse")

	w := doJSON(r, http.MethodPost, "/account/login", loginBody("ada", "correct horse"), nil)
	var token models.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))

	w = doJSON(r, http.MethodDelete, "/account", "", bearer(token.AccessToken))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodPost, "/account/login", loginBody("ada", "correct horse"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
