package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type User struct {
	ID            uuid.UUID   `json:"id"`
	Username      string      `json:"username"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	OwnedVenueIDs []uuid.UUID `json:"owned_venue_ids,omitempty"`
}

type CreateVenueRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	SpotifyURI string `json:"spotify_uri,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
}

type VoteResult struct {
	Venue   Venue `json:"venue"`
	Skipped bool  `json:"skipped"`
}

type credentialsRequest struct {
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Accounts

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var user User
	if err := c.request(ctx, noAuth, http.MethodPost, "/account/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login runs the password grant and stores the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var tokens Tokens
	if err := c.request(ctx, noAuth, http.MethodPost, "/account/login", credentialsRequest{
		Username:     username,
		Password:     password,
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
	}, &tokens); err != nil {
		return err
	}
	c.store.Dispatch(SetTokens{Tokens: tokens})
	return nil
}

// RefreshSession rotates the internal token pair.
func (c *Client) RefreshSession(ctx context.Context) error {
	st := c.store.Snapshot()
	if st.Tokens == nil {
		return ErrNotLoggedIn
	}
	var tokens Tokens
	if err := c.request(ctx, noAuth, http.MethodPost, "/account/refresh", credentialsRequest{
		RefreshToken: st.Tokens.RefreshToken,
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
	}, &tokens); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	c.store.Dispatch(SetTokens{Tokens: tokens})
	return nil
}

// Logout revokes the session server side and clears the store either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.request(ctx, bearerAuth, http.MethodPost, "/account/logout", nil, nil)
	c.store.Dispatch(Logout{})
	return err
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	err := c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodGet, "/account", nil, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	err := c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodDelete, "/account", nil, nil)
	})
	if err != nil {
		return err
	}
	c.store.Dispatch(Logout{})
	return nil
}

// Spotify

// SpotifyAuthURL asks the API for the Spotify consent page URL.
func (c *Client) SpotifyAuthURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	err := c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodPost, "/spotify/authorize", nil, &resp)
	})
	return resp.URL, err
}

// LinkSpotify exchanges an authorization code and stores the session.
func (c *Client) LinkSpotify(ctx context.Context, code string) error {
	var tokens SpotifyTokens
	err := c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodPost, "/spotify/tokens", map[string]string{"code": code}, &tokens)
	})
	if err != nil {
		return err
	}
	c.store.Dispatch(SetSpotifyTokens{Tokens: tokens})
	return nil
}

// RefreshSpotify refreshes the Spotify session held in the store.
func (c *Client) RefreshSpotify(ctx context.Context) error {
	st := c.store.Snapshot()
	if st.Spotify == nil {
		return nil
	}
	var tokens SpotifyTokens
	if err := c.request(ctx, bearerAuth, http.MethodPost, "/spotify/refresh", map[string]string{
		"refresh_token": st.Spotify.RefreshToken,
	}, &tokens); err != nil {
		return fmt.Errorf("failed to refresh spotify session: %w", err)
	}
	c.store.Dispatch(SetSpotifyTokens{Tokens: tokens})
	return nil
}

// SpotifyGet calls the Web API through the proxy with the user's Spotify
// token, e.g. SpotifyGet(ctx, "/me/player/devices", &devices).
func (c *Client) SpotifyGet(ctx context.Context, path string, out any) error {
	return c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, spotifyAuth, http.MethodGet, "/spotify"+path, nil, out)
	})
}

// Venues

func (c *Client) Venues(ctx context.Context) ([]Venue, error) {
	var venues []Venue
	err := c.FetchWithRetry(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodGet, "/venue", nil, &venues)
	})
	return venues, err
}

func (c *Client) Venue(ctx context.Context, id uuid.UUID) (*Venue, error) {
	var venue Venue
	err := c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodGet, "/venue/"+id.String(), nil, &venue)
	})
	if err != nil {
		return nil, err
	}
	return &venue, nil
}

func (c *Client) CreateVenue(ctx context.Context, req CreateVenueRequest) (*Venue, error) {
	var venue Venue
	err := c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodPost, "/venue", req, &venue)
	})
	if err != nil {
		return nil, err
	}
	return &venue, nil
}

// CheckIn joins the venue and makes it the current one.
func (c *Client) CheckIn(ctx context.Context, id uuid.UUID) (*Venue, error) {
	var venue Venue
	err := c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodPost, "/venue/"+id.String()+"/checkin", nil, &venue)
	})
	if err != nil {
		return nil, err
	}
	c.store.Dispatch(SetVenue{Venue: venue})
	return &venue, nil
}

// CheckOut leaves the current venue.
func (c *Client) CheckOut(ctx context.Context) error {
	venueID, err := c.currentVenue()
	if err != nil {
		return err
	}
	err = c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodPost, "/venue/"+venueID.String()+"/checkout", nil, nil)
	})
	if err != nil {
		return err
	}
	c.store.Dispatch(LeaveVenue{})
	return nil
}

// Current reconciles and returns the current track of the current venue.
func (c *Client) Current(ctx context.Context) (*CurrentTrack, error) {
	venueID, err := c.currentVenue()
	if err != nil {
		return nil, err
	}
	var current CurrentTrack
	err = c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodGet, "/venue/"+venueID.String()+"/current", nil, &current)
	})
	if err != nil {
		return nil, err
	}
	c.store.Dispatch(SetCurrentTrack{Current: current})
	return &current, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]Track, error) {
	venueID, err := c.currentVenue()
	if err != nil {
		return nil, err
	}
	var tracks []Track
	err = c.FetchWithRetry(ctx, func(ctx context.Context) error {
		path := "/venue/" + venueID.String() + "/search?q=" + url.QueryEscape(query)
		return c.request(ctx, bearerAuth, http.MethodGet, path, nil, &tracks)
	})
	if err != nil {
		return nil, err
	}
	c.store.Dispatch(SetSearchResults{Tracks: tracks})
	return tracks, nil
}

func (c *Client) Queue(ctx context.Context, uri string) error {
	venueID, err := c.currentVenue()
	if err != nil {
		return err
	}
	return c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodPost, "/venue/"+venueID.String()+"/queue", map[string]string{"uri": uri}, nil)
	})
}

// Vote votes on the current track of the current venue.
func (c *Client) Vote(ctx context.Context, vote int) (*VoteResult, error) {
	venueID, err := c.currentVenue()
	if err != nil {
		return nil, err
	}
	var result VoteResult
	err = c.Do(ctx, func(ctx context.Context) error {
		return c.request(ctx, bearerAuth, http.MethodPost, "/vote", map[string]any{
			"venue_id": venueID,
			"vote":     vote,
		}, &result)
	})
	if err != nil {
		return nil, err
	}
	c.store.Dispatch(RefreshVenue{Venue: result.Venue})
	return &result, nil
}

func (c *Client) currentVenue() (uuid.UUID, error) {
	st := c.store.Snapshot()
	if st.Venue == nil {
		return uuid.Nil, fmt.Errorf("not checked in to a venue")
	}
	return st.Venue.ID, nil
}
