package spotify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/internal/spotify/spotifytest"
)

func newTestClient(t *testing.T) (*Client, *spotifytest.Server) {
	t.Helper()
	srv := spotifytest.NewServer(t)
	return NewClient(Config{
		ClientID:     spotifytest.ClientID,
		ClientSecret: spotifytest.ClientSecret,
		RedirectURI:  "http://localhost/callback",
		Timeout:      5 * time.Second,
		TokenURL:     srv.TokenURL(),
		APIURL:       srv.APIURL(),
	}), srv
}

func TestGetAuthURL(t *testing.T) {
	c := NewClient(Config{ClientID: "cid", RedirectURI: "http://localhost/callback"})
	u := c.GetAuthURL("xyz")
	assert.True(t, strings.HasPrefix(u, "https://accounts.spotify.com/authorize?"))
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "state=xyz")
	assert.Contains(t, u, "user-modify-playback-state")
}

func TestExchangeCode(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	s, err := c.ExchangeCode(ctx, spotifytest.ValidCode)
	require.NoError(t, err)
	assert.Equal(t, "access-0", s.AccessToken)
	assert.Equal(t, "refresh-0", s.RefreshToken)
	assert.True(t, s.ExpiresAt.After(time.Now().Add(50*time.Minute)))

	_, err = c.ExchangeCode(ctx, "bad")
	var upstream *apperr.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
}

func TestRefreshSession(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	s, err := c.RefreshSession(ctx, "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.Equal(t, "refresh-0", s.RefreshToken, "unrotated refresh token is kept")

	srv.RotateRefreshTokens(true)
	s, err = c.RefreshSession(ctx, "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", s.RefreshToken)

	_, err = c.RefreshSession(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrNoSpotifySession)
}

func TestEnsureFresh(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	valid := Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Minute)}
	got, refreshed, err := c.EnsureFresh(ctx, valid)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, valid, got)
	assert.Zero(t, srv.Refreshes())

	stale := Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Second)}
	got, refreshed, err = c.EnsureFresh(ctx, stale)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, 1, srv.Refreshes())
}

func TestPlayerCalls(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	playing, err := c.CurrentlyPlaying(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, playing, "204 means nothing is playing")

	srv.SetPlaying("abc")
	playing, err = c.CurrentlyPlaying(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, playing)
	assert.Equal(t, "abc", playing.Item.ID)
	assert.Equal(t, "Bearer tok", srv.LastAuthorization())

	require.NoError(t, c.Next(ctx, "tok", "device-1"))
	assert.Equal(t, 1, srv.Skips())

	require.NoError(t, c.Queue(ctx, "tok", "spotify:track:xyz", ""))
	assert.Equal(t, []string{"spotify:track:xyz"}, srv.Queued())

	tracks, err := c.SearchTracks(ctx, "tok", "hello", 5)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "t-hello", tracks[0].ID)

	user, err := c.GetUser(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "spotify-user", user.ID)
}

func TestUpstreamError(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.call(context.Background(), "tok", http.MethodGet, "/nope", nil, nil)

	var upstream *apperr.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusNotFound, upstream.Status)
	assert.Contains(t, string(upstream.Body), "Service not found")
}
