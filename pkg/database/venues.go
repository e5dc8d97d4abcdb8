package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venue-jukebox/pkg/models"
)

// CreateVenue stores the venue with owner as its first owner.
func (db *DB) CreateVenue(ctx context.Context, venue *models.Venue, owner *models.User) error {
	venue.Owners = []models.User{*owner}
	return translate(db.WithContext(ctx).Omit("Owners.*").Create(venue).Error)
}

func (db *DB) GetVenue(ctx context.Context, id uuid.UUID) (*models.Venue, error) {
	return getVenue(db.WithContext(ctx), id)
}

func getVenue(tx *gorm.DB, id uuid.UUID) (*models.Venue, error) {
	var venue models.Venue
	if err := tx.Preload("Attendees").Preload("Owners").First(&venue, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &venue, nil
}

func (db *DB) ListVenues(ctx context.Context) ([]*models.Venue, error) {
	var venues []*models.Venue
	if err := db.WithContext(ctx).
		Preload("Attendees").Preload("Owners").
		Order("name ASC").
		Find(&venues).Error; err != nil {
		return nil, err
	}
	return venues, nil
}

// AddAttendee checks the user into the venue. Checking in twice is a no-op.
func (db *DB) AddAttendee(ctx context.Context, venueID, userID uuid.UUID) (*models.Venue, error) {
	return db.changeAttendance(ctx, venueID, userID, func(a *gorm.Association, user *models.User) error {
		return a.Append(user)
	})
}

func (db *DB) RemoveAttendee(ctx context.Context, venueID, userID uuid.UUID) (*models.Venue, error) {
	return db.changeAttendance(ctx, venueID, userID, func(a *gorm.Association, user *models.User) error {
		return a.Delete(user)
	})
}

func (db *DB) changeAttendance(ctx context.Context, venueID, userID uuid.UUID, change func(*gorm.Association, *models.User) error) (*models.Venue, error) {
	var venue *models.Venue
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := getVenue(tx, venueID)
		if err != nil {
			return err
		}
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return translate(err)
		}
		if err := change(tx.Model(v).Association("Attendees"), &user); err != nil {
			return fmt.Errorf("failed to update attendees: %w", err)
		}
		venue, err = getVenue(tx, venueID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return venue, nil
}

func (db *DB) IsAttendee(ctx context.Context, venueID, userID uuid.UUID) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Table("venue_attendees").
		Where("venue_id = ? AND user_id = ?", venueID, userID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) IsOwner(ctx context.Context, venueID, userID uuid.UUID) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Table("venue_owners").
		Where("venue_id = ? AND user_id = ?", venueID, userID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddVote applies delta to the venue's vote counter with a single UPDATE and
// returns the venue as it stands after the update.
func (db *DB) AddVote(ctx context.Context, venueID uuid.UUID, delta int) (*models.Venue, error) {
	var venue *models.Venue
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Venue{}).
			Where("id = ?", venueID).
			UpdateColumn("vote_count", gorm.Expr("vote_count + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var err error
		venue, err = getVenue(tx, venueID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return venue, nil
}

func (db *DB) ResetVotes(ctx context.Context, venueID uuid.UUID) error {
	return db.WithContext(ctx).Model(&models.Venue{}).
		Where("id = ?", venueID).
		UpdateColumn("vote_count", 0).Error
}

// SetCurrentSong records songID as the venue's current track. When it differs
// from the stored one the vote counter is zeroed and changed is true. An empty
// songID means nothing is playing; the counter is zeroed then even if no
// track was stored before.
func (db *DB) SetCurrentSong(ctx context.Context, venueID uuid.UUID, songID string) (venue *models.Venue, changed bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := getVenue(tx, venueID)
		if err != nil {
			return err
		}
		if v.CurrentSongID == songID && (songID != "" || v.VoteCount == 0) {
			venue = v
			return nil
		}
		if err := tx.Model(&models.Venue{}).Where("id = ?", venueID).Updates(map[string]any{
			"current_song_id": songID,
			"vote_count":      0,
		}).Error; err != nil {
			return err
		}
		changed = v.CurrentSongID != songID
		v.CurrentSongID = songID
		v.VoteCount = 0
		venue = v
		return nil
	})
	return venue, changed, err
}

// UpdateVenueSpotifyTokens persists a refreshed Spotify session for the venue.
func (db *DB) UpdateVenueSpotifyTokens(ctx context.Context, venueID uuid.UUID, access, refresh string, expiresAt time.Time) error {
	return db.WithContext(ctx).Model(&models.Venue{}).Where("id = ?", venueID).Updates(map[string]any{
		"spotify_access_token":  access,
		"spotify_refresh_token": refresh,
		"spotify_expires_at":    expiresAt,
	}).Error
}
