// Package spotifytest provides an in-process stand-in for the Spotify
// accounts service and Web API.
package spotifytest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	ClientID     = "spotify-client"
	ClientSecret = "spotify-secret"
	// ValidCode is the only authorization code the fake accepts.
	ValidCode = "good-code"
)

// Server fakes the subset of Spotify used by the jukebox. Fields are guarded
// by the embedded mutex; use the setters from tests.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	playing     string // track id, empty means 204
	refreshes   int
	skips       int
	queued      []string
	lastAuth    string
	rotateToken bool
}

func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", s.token)
	mux.HandleFunc("/v1/", s.api)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) TokenURL() string { return s.URL + "/api/token" }
func (s *Server) APIURL() string   { return s.URL + "/v1" }

// SetPlaying sets the currently playing track; "" means nothing plays.
func (s *Server) SetPlaying(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = trackID
}

// RotateRefreshTokens makes refresh answers carry a new refresh token.
func (s *Server) RotateRefreshTokens(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateToken = v
}

func (s *Server) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *Server) Skips() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skips
}

func (s *Server) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queued...)
}

// LastAuthorization returns the Authorization header of the last API call.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(ClientID+":"+ClientSecret))
	if r.Header.Get("Authorization") != want {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != ValidCode {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-0",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-0",
		})
	case "refresh_token":
		if r.PostForm.Get("refresh_token") == "" || r.PostForm.Get("refresh_token") == "revoked" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		s.refreshes++
		body := map[string]any{
			"access_token": fmt.Sprintf("access-%d", s.refreshes),
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if s.rotateToken {
			body["refresh_token"] = fmt.Sprintf("refresh-%d", s.refreshes)
		}
		writeJSON(w, http.StatusOK, body)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (s *Server) api(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAuth = r.Header.Get("Authorization")
	if !strings.HasPrefix(s.lastAuth, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401, "message": "No token provided"}})
		return
	}

	switch path := strings.TrimPrefix(r.URL.Path, "/v1"); {
	case path == "/me/player/currently-playing" && r.Method == http.MethodGet:
		if s.playing == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"is_playing": true,
			"item": map[string]any{
				"id":   s.playing,
				"name": "Track " + s.playing,
				"uri":  "spotify:track:" + s.playing,
			},
		})
	case path == "/me/player/next" && r.Method == http.MethodPost:
		s.skips++
		w.WriteHeader(http.StatusNoContent)
	case path == "/me/player/queue" && r.Method == http.MethodPost:
		s.queued = append(s.queued, r.URL.Query().Get("uri"))
		w.WriteHeader(http.StatusNoContent)
	case path == "/me/player/volume" && r.Method == http.MethodPut:
		w.WriteHeader(http.StatusNoContent)
	case path == "/search" && r.Method == http.MethodGet:
		q := r.URL.Query().Get("q")
		writeJSON(w, http.StatusOK, map[string]any{
			"tracks": map[string]any{"items": []map[string]any{
				{"id": "t-" + q, "name": q, "uri": "spotify:track:t-" + q,
					"artists": []map[string]string{{"id": "a1", "name": "Artist"}}},
			}},
		})
	case path == "/me" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"id": "spotify-user", "display_name": "DJ"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Service not found"}})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
