package client

import (
	"slices"
	"sync"
	"time"

	"github.com/venue-jukebox/pkg/models"
)

// Tokens is the internal API session.
type Tokens struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// SpotifyTokens is the user's Spotify session.
type SpotifyTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Venue = models.PublicVenue

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	Artists    []Artist `json:"artists"`
	DurationMS int      `json:"duration_ms"`
}

type Playing struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMS int    `json:"progress_ms"`
	Item       *Track `json:"item"`
}

type CurrentTrack struct {
	Venue   Venue    `json:"venue"`
	Playing *Playing `json:"playing"`
	Changed bool     `json:"changed"`
}

// State is everything the client remembers between calls. Values handed out
// by Store.Snapshot must be treated as read-only.
type State struct {
	Tokens        *Tokens
	Spotify       *SpotifyTokens
	Venue         *Venue
	Current       *CurrentTrack
	SearchResults []Track
}

// Action is a state transition applied by Store.Dispatch.
type Action interface {
	apply(s *State)
}

type SetTokens struct{ Tokens Tokens }

func (a SetTokens) apply(s *State) { t := a.Tokens; s.Tokens = &t }

type SetSpotifyTokens struct{ Tokens SpotifyTokens }

func (a SetSpotifyTokens) apply(s *State) { t := a.Tokens; s.Spotify = &t }

// SetVenue makes v the venue the user is checked into.
type SetVenue struct{ Venue Venue }

func (a SetVenue) apply(s *State) {
	if s.Venue == nil || s.Venue.ID != a.Venue.ID {
		s.Current = nil
		s.SearchResults = nil
	}
	v := a.Venue
	s.Venue = &v
}

// RefreshVenue replaces the current venue's projection with a newer one. It
// never changes which venue the user is in.
type RefreshVenue struct{ Venue Venue }

func (a RefreshVenue) apply(s *State) {
	if s.Venue == nil || s.Venue.ID != a.Venue.ID {
		return
	}
	v := a.Venue
	s.Venue = &v
}

// SetCurrentTrack records a poll result. It is ignored when the user has
// left the venue in the meantime.
type SetCurrentTrack struct{ Current CurrentTrack }

func (a SetCurrentTrack) apply(s *State) {
	if s.Venue == nil || s.Venue.ID != a.Current.Venue.ID {
		return
	}
	c := a.Current
	v := c.Venue
	s.Current = &c
	s.Venue = &v
}

type LeaveVenue struct{}

func (LeaveVenue) apply(s *State) {
	s.Venue = nil
	s.Current = nil
	s.SearchResults = nil
}

type SetSearchResults struct{ Tracks []Track }

func (a SetSearchResults) apply(s *State) {
	s.SearchResults = append([]Track(nil), a.Tracks...)
}

// Logout forgets everything.
type Logout struct{}

func (Logout) apply(s *State) { *s = State{} }

// Store holds the client state. All changes go through Dispatch.
type Store struct {
	mu          sync.RWMutex
	state       State
	subscribers []func(State)
}

func NewStore() *Store {
	return &Store{}
}

func (st *Store) Dispatch(actions ...Action) {
	st.mu.Lock()
	for _, a := range actions {
		a.apply(&st.state)
	}
	snapshot := st.state
	subscribers := slices.Clone(st.subscribers)
	st.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}

func (st *Store) Snapshot() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state
}

// Subscribe registers fn to run after every dispatch.
func (st *Store) Subscribe(fn func(State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscribers = append(st.subscribers, fn)
}
