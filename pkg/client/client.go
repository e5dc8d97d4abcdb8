// Package client is the Go SDK for the venue jukebox API. It keeps the
// session in a Store, transparently refreshes expired tokens and polls the
// current track of the venue the user is checked into.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// HostType selects one of the known API deployments.
type HostType string

const (
	HostLocal HostType = "local"
	HostLAN   HostType = "lan"
)

const (
	localBaseURL = "http://localhost:8080"
	lanBaseURL   = "http://192.168.1.100:8080"

	codeTokensExpired = "tokens_expired"
	maxFetchAttempts  = 3
)

// SkipSettleDelay is how long to wait after a vote skipped a track before
// asking for the current track again; Spotify needs a moment to switch.
const SkipSettleDelay = 1500 * time.Millisecond

var ErrNotLoggedIn = errors.New("not logged in")

// BaseURL returns the API address for host. Unknown values fall back to
// the local deployment.
func BaseURL(host HostType) string {
	if host == HostLAN {
		return lanBaseURL
	}
	return localBaseURL
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// TokensExpired reports whether the API rejected the access token because it
// expired, which is the only case the client refreshes for.
func (e *APIError) TokensExpired() bool {
	return e.Status == http.StatusUnauthorized && e.Code == codeTokensExpired
}

type Options struct {
	Host         HostType
	BaseURL      string // overrides Host
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       *log.Logger
	Store        *Store
	RetryDelay   time.Duration
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *log.Logger
	store        *Store
	retryDelay   time.Duration
	now          func() time.Time
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL(opts.Host)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}

	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		store:        opts.Store,
		retryDelay:   opts.RetryDelay,
		now:          time.Now,
	}
}

func (c *Client) Store() *Store {
	return c.store
}

// Call is one API interaction. It must read tokens from the store on every
// invocation so a retry picks up refreshed ones.
type Call func(ctx context.Context) error

// Do runs call. If the API reports expired tokens, the session is refreshed
// (and the Spotify session too, when its own expiry has passed) and call is
// run exactly once more. A second failure is returned as is.
func (c *Client) Do(ctx context.Context, call Call) error {
	err := call(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.TokensExpired() {
		return err
	}

	c.logger.Debug("tokens expired, refreshing")
	if err := c.refreshTokens(ctx); err != nil {
		return err
	}
	return call(ctx)
}

// FetchWithRetry runs call through Do up to three times, stopping early on
// client errors other than 401.
func (c *Client) FetchWithRetry(ctx context.Context, call Call) error {
	var err error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		if err = c.Do(ctx, call); err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return err
		}
		c.logger.Debug("fetch failed", "attempt", attempt, "err", err)
		if attempt == maxFetchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxFetchAttempts, err)
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusUnauthorized
	}
	return !errors.Is(err, ErrNotLoggedIn)
}

// refreshTokens refreshes the internal session, then the Spotify session if
// and only if its stored expiry is in the past.
func (c *Client) refreshTokens(ctx context.Context) error {
	if err := c.RefreshSession(ctx); err != nil {
		return err
	}
	st := c.store.Snapshot()
	if st.Spotify != nil && !st.Spotify.ExpiresAt.After(c.now()) {
		// The internal session is fresh again, so the retry still goes ahead.
		if err := c.RefreshSpotify(ctx); err != nil {
			c.logger.Warn("spotify refresh failed", "err", err)
		}
	}
	return nil
}

type authMode int

const (
	noAuth authMode = iota
	bearerAuth
	spotifyAuth // bearer plus the Spotify token header
)

func (c *Client) request(ctx context.Context, mode authMode, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if mode != noAuth {
		st := c.store.Snapshot()
		if st.Tokens == nil {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+st.Tokens.AccessToken)
		if mode == spotifyAuth && st.Spotify != nil {
			req.Header.Set("X-Spotify-Token", st.Spotify.AccessToken)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
