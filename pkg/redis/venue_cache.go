package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/venue-jukebox/pkg/models"
)

const venueKeyPrefix = "venue:"

// VenueCache keeps public venue projections so reads skip the database.
type VenueCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewVenueCache(client *redis.Client, ttl time.Duration) *VenueCache {
	return &VenueCache{client: client, ttl: ttl}
}

func venueKey(id uuid.UUID) string {
	return venueKeyPrefix + id.String()
}

// Get returns the cached projection; ok is false on a miss.
func (c *VenueCache) Get(ctx context.Context, id uuid.UUID) (venue *models.PublicVenue, ok bool, err error) {
	data, err := c.client.Get(ctx, venueKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get venue: %w", err)
	}

	var v models.PublicVenue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal venue: %w", err)
	}
	return &v, true, nil
}

func (c *VenueCache) Set(ctx context.Context, venue models.PublicVenue) error {
	data, err := json.Marshal(venue)
	if err != nil {
		return fmt.Errorf("failed to marshal venue: %w", err)
	}
	return c.client.Set(ctx, venueKey(venue.ID), data, c.ttl).Err()
}

func (c *VenueCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, venueKey(id)).Err()
}
