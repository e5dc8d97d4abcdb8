package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/venue-jukebox/pkg/models"
)

// Client operations

// UpsertClient inserts the client or overwrites its secret, grants and
// redirect URIs.
func (db *DB) UpsertClient(ctx context.Context, client *models.Client) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "grants", "redirect_uris"}),
	}).Create(client).Error
}

func (db *DB) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var client models.Client
	if err := db.WithContext(ctx).First(&client, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

// Token operations

func (db *DB) CreateToken(ctx context.Context, token *models.Token) error {
	return translate(db.WithContext(ctx).Create(token).Error)
}

func (db *DB) GetTokenByAccess(ctx context.Context, accessToken string) (*models.Token, error) {
	var token models.Token
	if err := db.WithContext(ctx).First(&token, "access_token = ?", accessToken).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (db *DB) GetTokenByRefresh(ctx context.Context, refreshToken string) (*models.Token, error) {
	var token models.Token
	if err := db.WithContext(ctx).First(&token, "refresh_token = ?", refreshToken).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// DeleteToken removes a token row. Deleting a missing row reports ErrNotFound
// so refresh-token rotation can detect a concurrent use of the same token.
func (db *DB) DeleteToken(ctx context.Context, token *models.Token) error {
	res := db.WithContext(ctx).Delete(&models.Token{}, "id = ?", token.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredTokens removes every token whose refresh expiry is before now.
func (db *DB) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("refresh_token_expires_at < ?", now).Delete(&models.Token{})
	return res.RowsAffected, res.Error
}
