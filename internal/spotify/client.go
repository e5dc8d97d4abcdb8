package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/venue-jukebox/internal/apperr"
)

const (
	defaultAuthURL  = "https://accounts.spotify.com/authorize"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultAPIURL   = "https://api.spotify.com/v1"
)

var scopes = []string{
	"user-read-private",
	"user-read-email",
	"user-read-playback-state",
	"user-read-currently-playing",
	"user-modify-playback-state",
	"streaming",
}

// Config configures the Spotify client. The URL fields default to Spotify's
// public endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
	RateLimit    float64 // requests per second, <= 0 disables limiting

	AuthURL  string
	TokenURL string
	APIURL   string
}

type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	apiURL     string
	limiter    *rate.Limiter
	now        func() time.Time
}

// Session is a Spotify access/refresh token pair with the access expiry.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Track struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	URI      string   `json:"uri"`
	Artists  []Artist `json:"artists"`
	Duration int      `json:"duration_ms"`
	Album    Album    `json:"album"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Product     string `json:"product"`
}

// CurrentlyPlaying is the subset of the player state the venues care about.
type CurrentlyPlaying struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMS int    `json:"progress_ms"`
	Item       *Track `json:"item"`
}

type searchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// GetAuthURL returns the URL users visit to grant the app access.
func (c *Client) GetAuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	token, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, tokenError(err)
	}
	return sessionFromToken(token, ""), nil
}

// RefreshSession mints a new access token from refreshToken. The returned
// session keeps refreshToken unless Spotify rotated it.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperr.ErrNoSpotifySession
	}
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, tokenError(err)
	}
	return sessionFromToken(token, refreshToken), nil
}

// EnsureFresh returns s unchanged while its access token is still valid and a
// refreshed session otherwise. refreshed reports which case happened.
func (c *Client) EnsureFresh(ctx context.Context, s Session) (fresh Session, refreshed bool, err error) {
	if s.ExpiresAt.After(c.now()) {
		return s, false, nil
	}
	next, err := c.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		return s, false, err
	}
	return *next, true, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func sessionFromToken(token *oauth2.Token, previousRefresh string) *Session {
	s := &Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if s.RefreshToken == "" {
		s.RefreshToken = previousRefresh
	}
	return s
}

func tokenError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		return &apperr.UpstreamError{Status: retrieve.Response.StatusCode, Body: retrieve.Body}
	}
	return fmt.Errorf("spotify: token request failed: %w", err)
}

// Do sends a raw request to the Web API. path is relative to the API root.
// The caller owns the response body.
func (c *Client) Do(ctx context.Context, accessToken, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.apiURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify: request failed: %w", err)
	}
	return resp, nil
}

// call performs a request and decodes a 2xx JSON answer into result. Non-2xx
// answers come back as *apperr.UpstreamError.
func (c *Client) call(ctx context.Context, accessToken, method, path string, query url.Values, result interface{}) (status int, err error) {
	resp, err := c.Do(ctx, accessToken, method, path, query, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, &apperr.UpstreamError{Status: resp.StatusCode, Body: body}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// CurrentlyPlaying returns the track playing on the account, or nil when
// nothing is playing.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*CurrentlyPlaying, error) {
	var playing CurrentlyPlaying
	status, err := c.call(ctx, accessToken, http.MethodGet, "/me/player/currently-playing", nil, &playing)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || playing.Item == nil {
		return nil, nil
	}
	return &playing, nil
}

// Next skips to the next track on deviceID (or the active device if empty).
func (c *Client) Next(ctx context.Context, accessToken, deviceID string) error {
	_, err := c.call(ctx, accessToken, http.MethodPost, "/me/player/next", deviceQuery(deviceID), nil)
	return err
}

// Queue appends the track uri to the playback queue.
func (c *Client) Queue(ctx context.Context, accessToken, uri, deviceID string) error {
	q := deviceQuery(deviceID)
	q.Set("uri", uri)
	_, err := c.call(ctx, accessToken, http.MethodPost, "/me/player/queue", q, nil)
	return err
}

func (c *Client) SearchTracks(ctx context.Context, accessToken, query string, limit int) ([]Track, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprintf("%d", limit))

	var resp searchResponse
	if _, err := c.call(ctx, accessToken, http.MethodGet, "/search", params, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks.Items, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if _, err := c.call(ctx, accessToken, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func deviceQuery(deviceID string) url.Values {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return q
}
