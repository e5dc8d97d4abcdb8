package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("spotify token not found")

// TokenInfo is a user's Spotify session.
type TokenInfo struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// tokenHash is the stored form of TokenInfo, one hash per user.
type tokenHash struct {
	AccessToken  string `redis:"access_token"`
	RefreshToken string `redis:"refresh_token"`
	ExpiresAtMS  int64  `redis:"expires_at_ms"`
}

func (h tokenHash) info() *TokenInfo {
	return &TokenInfo{
		AccessToken:  h.AccessToken,
		RefreshToken: h.RefreshToken,
		ExpiresAt:    time.UnixMilli(h.ExpiresAtMS).UTC(),
	}
}

// TokenStore keeps users' Spotify sessions. Entries never expire on their
// own; the refresh token outlives the access token.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func tokenKey(userID string) string {
	return "spotify:session:" + userID
}

// StoreTokens replaces the user's Spotify session.
func (s *TokenStore) StoreTokens(ctx context.Context, userID string, token *TokenInfo) error {
	key := tokenKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, tokenHash{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAtMS:  token.ExpiresAt.UnixMilli(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store spotify session: %w", err)
	}
	return nil
}

// GetTokens returns the user's Spotify session or ErrTokenNotFound.
func (s *TokenStore) GetTokens(ctx context.Context, userID string) (*TokenInfo, error) {
	res := s.client.HGetAll(ctx, tokenKey(userID))
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get spotify session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrTokenNotFound
	}

	var h tokenHash
	if err := res.Scan(&h); err != nil {
		return nil, fmt.Errorf("failed to decode spotify session: %w", err)
	}
	return h.info(), nil
}

func (s *TokenStore) DeleteToken(ctx context.Context, userID string) error {
	return s.client.Del(ctx, tokenKey(userID)).Err()
}

// RefreshToken records a refreshed access token. Spotify only rotates the
// refresh token sometimes; an empty newRefreshToken keeps the stored one.
// The update is skipped with ErrTokenNotFound if the session was removed
// meanwhile, e.g. by account deletion.
func (s *TokenStore) RefreshToken(ctx context.Context, userID, newAccessToken, newRefreshToken string, newExpiresAt time.Time) (*TokenInfo, error) {
	key := tokenKey(userID)
	var updated *TokenInfo

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var h tokenHash
		res := tx.HGetAll(ctx, key)
		fields, err := res.Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrTokenNotFound
		}
		if err := res.Scan(&h); err != nil {
			return err
		}

		h.AccessToken = newAccessToken
		h.ExpiresAtMS = newExpiresAt.UnixMilli()
		if newRefreshToken != "" {
			h.RefreshToken = newRefreshToken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, h)
			return nil
		})
		updated = h.info()
		return err
	}, key)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh spotify session: %w", err)
	}
	return updated, nil
}
