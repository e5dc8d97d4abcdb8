// Package venue implements venues: attendance, the shared Spotify player,
// vote-to-skip and current track reconciliation.
package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/internal/spotify"
	"github.com/venue-jukebox/pkg/database"
	"github.com/venue-jukebox/pkg/events"
	"github.com/venue-jukebox/pkg/models"
	"github.com/venue-jukebox/pkg/redis"
)

const (
	searchLimit    = 20
	trackURIPrefix = "spotify:track:"
)

type Service struct {
	db      *database.DB
	cache   *redis.VenueCache
	tokens  *redis.TokenStore
	spotify *spotify.Client
	events  events.Publisher
	logger  zerolog.Logger
}

func NewService(db *database.DB, cache *redis.VenueCache, tokens *redis.TokenStore, spotifyClient *spotify.Client, publisher events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		cache:   cache,
		tokens:  tokens,
		spotify: spotifyClient,
		events:  publisher,
		logger:  logger.With().Str("service", "venue").Logger(),
	}
}

type CreateInput struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	SpotifyURI string `json:"spotify_uri"`
	DeviceID   string `json:"device_id"`
}

// VoteResult is returned by Vote. Skipped tells clients to give Spotify a
// moment before polling the current track again.
type VoteResult struct {
	Venue   models.PublicVenue `json:"venue"`
	Skipped bool               `json:"skipped"`
}

// CurrentTrack is the reconciled player state of a venue. Playing is nil
// when nothing is playing.
type CurrentTrack struct {
	Venue   models.PublicVenue        `json:"venue"`
	Playing *spotify.CurrentlyPlaying `json:"playing"`
	Changed bool                      `json:"changed"`
}

// ShouldSkip reports whether votes has fallen below minus half the
// attendees. Doubling keeps the comparison exact for odd attendee counts.
func ShouldSkip(votes, attendees int) bool {
	return 2*votes < -attendees
}

// Create stores a venue owned by ownerID and links the owner's Spotify
// session to it.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*models.PublicVenue, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}

	owner, err := s.db.GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, notFound(err)
	}

	session, err := s.tokens.GetTokens(ctx, ownerID.String())
	if err != nil {
		if errors.Is(err, redis.ErrTokenNotFound) {
			return nil, apperr.ErrNoSpotifySession
		}
		return nil, err
	}

	venue := &models.Venue{
		ID:                  uuid.New(),
		Name:                in.Name,
		Address:             strings.TrimSpace(in.Address),
		SpotifyURI:          in.SpotifyURI,
		DeviceID:            in.DeviceID,
		SpotifyAccessToken:  session.AccessToken,
		SpotifyRefreshToken: session.RefreshToken,
		SpotifyExpiresAt:    session.ExpiresAt,
	}
	if err := s.db.CreateVenue(ctx, venue, owner); err != nil {
		return nil, fmt.Errorf("failed to create venue: %w", err)
	}

	s.logger.Info().Str("venue_id", venue.ID.String()).Str("owner_id", ownerID.String()).Msg("Venue created")
	return s.Get(ctx, venue.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.PublicVenue, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("venue_id", id.String()).Msg("Venue cache read failed")
		}
		if ok {
			return cached, nil
		}
	}

	venue, err := s.db.GetVenue(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	public := venue.Public()
	s.cacheVenue(ctx, public)
	return &public, nil
}

func (s *Service) List(ctx context.Context) ([]models.PublicVenue, error) {
	venues, err := s.db.ListVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	out := make([]models.PublicVenue, 0, len(venues))
	for _, v := range venues {
		out = append(out, v.Public())
	}
	return out, nil
}

func (s *Service) CheckIn(ctx context.Context, venueID, userID uuid.UUID) (*models.PublicVenue, error) {
	venue, err := s.db.AddAttendee(ctx, venueID, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return s.afterAttendance(ctx, venue, userID, events.EventTypeUserCheckedIn), nil
}

func (s *Service) CheckOut(ctx context.Context, venueID, userID uuid.UUID) (*models.PublicVenue, error) {
	venue, err := s.db.RemoveAttendee(ctx, venueID, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return s.afterAttendance(ctx, venue, userID, events.EventTypeUserCheckedOut), nil
}

func (s *Service) afterAttendance(ctx context.Context, venue *models.Venue, userID uuid.UUID, typ events.EventType) *models.PublicVenue {
	public := venue.Public()
	s.invalidate(ctx, venue.ID)
	s.publish(ctx, typ, venue.ID, userID.String(), events.AttendancePayload{AttendeeCount: public.AttendeeCount})
	return &public
}

// Vote applies a +1/-1 vote and skips the current track once the tally drops
// below the threshold. There is no per-user dedupe.
func (s *Service) Vote(ctx context.Context, venueID, userID uuid.UUID, vote int) (*VoteResult, error) {
	if vote != 1 && vote != -1 {
		return nil, fmt.Errorf("%w: vote must be 1 or -1", apperr.ErrValidation)
	}
	if err := s.requireAttendee(ctx, venueID, userID); err != nil {
		return nil, err
	}

	venue, err := s.db.AddVote(ctx, venueID, vote)
	if err != nil {
		return nil, notFound(err)
	}
	defer s.invalidate(ctx, venueID)

	result := &VoteResult{}
	if ShouldSkip(venue.VoteCount, len(venue.Attendees)) {
		token, err := s.venueToken(ctx, venue)
		if err != nil {
			return nil, err
		}
		if err := s.spotify.Next(ctx, token, venue.DeviceID); err != nil {
			return nil, err
		}
		if err := s.db.ResetVotes(ctx, venueID); err != nil {
			return nil, fmt.Errorf("failed to reset votes: %w", err)
		}
		venue.VoteCount = 0
		result.Skipped = true

		s.logger.Info().Str("venue_id", venueID.String()).Str("song_id", venue.CurrentSongID).Msg("Track skipped by vote")
		s.publish(ctx, events.EventTypeTrackSkipped, venueID, "", events.TrackSkippedPayload{SongID: venue.CurrentSongID})
	}

	result.Venue = venue.Public()
	s.publish(ctx, events.EventTypeVoteCast, venueID, userID.String(), events.VoteCastPayload{
		Vote:      vote,
		VoteCount: result.Venue.VoteCount,
		Skipped:   result.Skipped,
	})
	return result, nil
}

// Current asks Spotify what the venue is playing and records it. A new track
// (or nothing playing) zeroes the vote counter.
func (s *Service) Current(ctx context.Context, venueID uuid.UUID) (*CurrentTrack, error) {
	venue, err := s.db.GetVenue(ctx, venueID)
	if err != nil {
		return nil, notFound(err)
	}
	previous := venue.CurrentSongID
	previousVotes := venue.VoteCount

	token, err := s.venueToken(ctx, venue)
	if err != nil {
		return nil, err
	}
	playing, err := s.spotify.CurrentlyPlaying(ctx, token)
	if err != nil {
		return nil, err
	}

	songID := ""
	if playing != nil {
		songID = playing.Item.ID
	}
	venue, changed, err := s.db.SetCurrentSong(ctx, venueID, songID)
	if err != nil {
		return nil, notFound(err)
	}
	if changed || venue.VoteCount != previousVotes {
		s.invalidate(ctx, venueID)
	}
	if changed {
		s.publish(ctx, events.EventTypeTrackChanged, venueID, "", events.TrackChangedPayload{
			PreviousSongID: previous,
			CurrentSongID:  songID,
		})
	}

	return &CurrentTrack{Venue: venue.Public(), Playing: playing, Changed: changed}, nil
}

func (s *Service) Search(ctx context.Context, venueID uuid.UUID, query string) ([]spotify.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: q is required", apperr.ErrValidation)
	}
	venue, err := s.db.GetVenue(ctx, venueID)
	if err != nil {
		return nil, notFound(err)
	}
	token, err := s.venueToken(ctx, venue)
	if err != nil {
		return nil, err
	}
	tracks, err := s.spotify.SearchTracks(ctx, token, query, searchLimit)
	if err != nil {
		return nil, err
	}
	if tracks == nil {
		tracks = []spotify.Track{}
	}
	return tracks, nil
}

// Queue appends a track to the venue's player. Only attendees may queue.
func (s *Service) Queue(ctx context.Context, venueID, userID uuid.UUID, uri string) error {
	if !strings.HasPrefix(uri, trackURIPrefix) {
		return fmt.Errorf("%w: uri must be a spotify track uri", apperr.ErrValidation)
	}
	if err := s.requireAttendee(ctx, venueID, userID); err != nil {
		return err
	}
	venue, err := s.db.GetVenue(ctx, venueID)
	if err != nil {
		return notFound(err)
	}
	token, err := s.venueToken(ctx, venue)
	if err != nil {
		return err
	}
	if err := s.spotify.Queue(ctx, token, uri, venue.DeviceID); err != nil {
		return err
	}
	s.publish(ctx, events.EventTypeSongQueued, venueID, userID.String(), events.SongQueuedPayload{URI: uri})
	return nil
}

// venueToken returns a usable access token for the venue's Spotify session,
// refreshing and persisting it when the stored one has expired.
func (s *Service) venueToken(ctx context.Context, venue *models.Venue) (string, error) {
	if venue.SpotifyRefreshToken == "" && venue.SpotifyAccessToken == "" {
		return "", apperr.ErrNoSpotifySession
	}
	session, refreshed, err := s.spotify.EnsureFresh(ctx, spotify.Session{
		AccessToken:  venue.SpotifyAccessToken,
		RefreshToken: venue.SpotifyRefreshToken,
		ExpiresAt:    venue.SpotifyExpiresAt,
	})
	if err != nil {
		return "", err
	}
	if refreshed {
		if err := s.db.UpdateVenueSpotifyTokens(ctx, venue.ID, session.AccessToken, session.RefreshToken, session.ExpiresAt); err != nil {
			return "", fmt.Errorf("failed to store venue tokens: %w", err)
		}
		venue.SpotifyAccessToken = session.AccessToken
		venue.SpotifyRefreshToken = session.RefreshToken
		venue.SpotifyExpiresAt = session.ExpiresAt
	}
	return session.AccessToken, nil
}

func (s *Service) requireAttendee(ctx context.Context, venueID, userID uuid.UUID) error {
	ok, err := s.db.IsAttendee(ctx, venueID, userID)
	if err != nil {
		return fmt.Errorf("failed to check attendance: %w", err)
	}
	if !ok {
		if _, err := s.db.GetVenue(ctx, venueID); err != nil {
			return notFound(err)
		}
		return fmt.Errorf("%w: check in to the venue first", apperr.ErrForbidden)
	}
	return nil
}

func (s *Service) cacheVenue(ctx context.Context, venue models.PublicVenue) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, venue); err != nil {
		s.logger.Warn().Err(err).Str("venue_id", venue.ID.String()).Msg("Failed to cache venue")
	}
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("venue_id", id.String()).Msg("Failed to invalidate venue cache")
	}
}

// publish emits a venue event. Delivery failures are logged and never fail
// the request that caused them.
func (s *Service) publish(ctx context.Context, typ events.EventType, venueID uuid.UUID, userID string, payload any) {
	if s.events == nil {
		return
	}
	evt, err := events.NewEvent(typ, venueID.String(), userID, payload)
	if err == nil {
		err = s.events.Publish(ctx, evt)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", string(typ)).Str("venue_id", venueID.String()).Msg("Failed to publish event")
	}
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.ErrNotFound
	}
	return err
}
