package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username" gorm:"size:191;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Venue struct {
	ID         uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name       string    `json:"name" gorm:"not null"`
	Address    string    `json:"address"`
	SpotifyURI string    `json:"spotify_uri"`
	Attendees  []User    `json:"-" gorm:"many2many:venue_attendees;"`
	Owners     []User    `json:"-" gorm:"many2many:venue_owners;"`
	// CurrentSongID is empty while nothing is playing.
	CurrentSongID string `json:"current_song_id"`
	VoteCount     int    `json:"vote_count" gorm:"not null;default:0"`

	SpotifyAccessToken  string    `json:"-"`
	SpotifyRefreshToken string    `json:"-"`
	SpotifyExpiresAt    time.Time `json:"-"`
	DeviceID            string    `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicVenue is the projection of a venue handed to clients. Spotify
// credentials and the playback device never leave the server.
type PublicVenue struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Address       string      `json:"address"`
	SpotifyURI    string      `json:"spotify_uri"`
	CurrentSongID string      `json:"current_song_id"`
	VoteCount     int         `json:"vote_count"`
	AttendeeCount int         `json:"attendee_count"`
	OwnerIDs      []uuid.UUID `json:"owner_ids"`
}

// Public builds the client projection. Attendees and Owners must be preloaded.
func (v *Venue) Public() PublicVenue {
	owners := make([]uuid.UUID, 0, len(v.Owners))
	for _, o := range v.Owners {
		owners = append(owners, o.ID)
	}
	return PublicVenue{
		ID:            v.ID,
		Name:          v.Name,
		Address:       v.Address,
		SpotifyURI:    v.SpotifyURI,
		CurrentSongID: v.CurrentSongID,
		VoteCount:     v.VoteCount,
		AttendeeCount: len(v.Attendees),
		OwnerIDs:      owners,
	}
}

// Client is an API consumer allowed to exchange credentials for tokens.
type Client struct {
	ID           string    `json:"id" gorm:"size:191;primaryKey"`
	Secret       string    `json:"-" gorm:"not null"`
	Grants       string    `json:"grants"`        // space separated, e.g. "password refresh_token"
	RedirectURIs string    `json:"redirect_uris"` // space separated
	CreatedAt    time.Time `json:"created_at"`
}

// Token is an issued access/refresh pair. Rows whose refresh expiry has
// passed are removed by the auth sweeper.
type Token struct {
	ID                    uuid.UUID `json:"-" gorm:"type:char(36);primaryKey"`
	AccessToken           string    `json:"access_token" gorm:"size:512;uniqueIndex;not null"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token" gorm:"size:191;uniqueIndex;not null"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at" gorm:"index"`
	ClientID              string    `json:"-" gorm:"size:191;index"`
	UserID                uuid.UUID `json:"-" gorm:"type:char(36);index"`
	CreatedAt             time.Time `json:"-"`
}
