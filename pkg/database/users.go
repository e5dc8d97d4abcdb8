package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venue-jukebox/pkg/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	return translate(db.WithContext(ctx).Create(user).Error)
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// OwnedVenueIDs returns the venues the user is listed as an owner of.
func (db *DB) OwnedVenueIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := db.WithContext(ctx).Table("venue_owners").
		Where("user_id = ?", userID).
		Pluck("venue_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteUser removes the user together with its tokens and venue memberships
// and returns the venues it attended or owned. The only owner of a venue
// cannot be deleted; ErrSoleOwner is returned and nothing changes.
func (db *DB) DeleteUser(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var venueIDs []uuid.UUID
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sole int64
		if err := tx.Table("venue_owners AS o").
			Where("o.user_id = ?", id).
			Where("(SELECT COUNT(*) FROM venue_owners AS c WHERE c.venue_id = o.venue_id) = 1").
			Count(&sole).Error; err != nil {
			return fmt.Errorf("failed to check venue ownership: %w", err)
		}
		if sole > 0 {
			return ErrSoleOwner
		}

		for _, table := range []string{"venue_attendees", "venue_owners"} {
			var ids []uuid.UUID
			if err := tx.Table(table).Where("user_id = ?", id).Pluck("venue_id", &ids).Error; err != nil {
				return fmt.Errorf("failed to list memberships: %w", err)
			}
			venueIDs = append(venueIDs, ids...)
			if err := tx.Exec("DELETE FROM "+table+" WHERE user_id = ?", id).Error; err != nil {
				return fmt.Errorf("failed to remove memberships: %w", err)
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Token{}).Error; err != nil {
			return fmt.Errorf("failed to remove tokens: %w", err)
		}
		res := tx.Delete(&models.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return venueIDs, nil
}
