package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/internal/config"
	"github.com/venue-jukebox/pkg/database"
	"github.com/venue-jukebox/pkg/jwt"
	"github.com/venue-jukebox/pkg/models"
	"github.com/venue-jukebox/pkg/redis"
)

const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"

	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
)

// dummyHash is compared against when the username does not exist so both
// login failures cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	return h
})

type Service struct {
	db            *database.DB
	tokens        *jwt.Manager
	spotifyTokens *redis.TokenStore
	venues        *redis.VenueCache
	refreshTTL    time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(db *database.DB, tokens *jwt.Manager, spotifyTokens *redis.TokenStore, venues *redis.VenueCache, refreshTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		db:            db,
		tokens:        tokens,
		spotifyTokens: spotifyTokens,
		venues:        venues,
		refreshTTL:    refreshTTL,
		logger:        logger.With().Str("service", "auth").Logger(),
		now:           time.Now,
	}
}

type RegisterInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ClientCredentials identify the API consumer asking for tokens.
type ClientCredentials struct {
	ID     string
	Secret string
}

// Profile is the account view returned to its owner.
type Profile struct {
	*models.User
	OwnedVenueIDs []uuid.UUID `json:"owned_venue_ids"`
}

// SeedClients upserts the configured API clients.
func (s *Service) SeedClients(ctx context.Context, clients []config.ClientConfig) error {
	for _, c := range clients {
		client := &models.Client{
			ID:           c.ID,
			Secret:       c.Secret,
			Grants:       strings.Join(c.Grants, " "),
			RedirectURIs: strings.Join(c.RedirectURIs, " "),
		}
		if err := s.db.UpsertClient(ctx, client); err != nil {
			return fmt.Errorf("failed to seed client %q: %w", c.ID, err)
		}
	}
	s.logger.Info().Int("count", len(clients)).Msg("API clients seeded")
	return nil
}

// Register creates an account. A taken username is rejected before any
// write happens.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if n := utf8.RuneCountInString(in.Username); n < minUsernameLen || n > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be between %d and %d characters", apperr.ErrValidation, minUsernameLen, maxUsernameLen)
	}
	if len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperr.ErrValidation, minPasswordLen)
	}

	exists, err := s.db.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, apperr.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     in.Username,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("User registered")
	return user, nil
}

// Login runs the password grant.
func (s *Service) Login(ctx context.Context, creds ClientCredentials, username, password string) (*models.Token, error) {
	client, err := s.authenticateClient(ctx, creds, GrantPassword)
	if err != nil {
		return nil, err
	}

	user, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(username))
	switch {
	case errors.Is(err, database.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, apperr.ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}

	return s.issue(ctx, user.ID, client.ID)
}

// Refresh rotates a token pair. The old pair stops working immediately.
func (s *Service) Refresh(ctx context.Context, creds ClientCredentials, refreshToken string) (*models.Token, error) {
	client, err := s.authenticateClient(ctx, creds, GrantRefreshToken)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", apperr.ErrValidation)
	}

	old, err := s.db.GetTokenByRefresh(ctx, refreshToken)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, apperr.ErrInvalidToken
	case err != nil:
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if old.ClientID != client.ID {
		return nil, apperr.ErrInvalidToken
	}
	if !old.RefreshTokenExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: refresh token expired", apperr.ErrInvalidToken)
	}

	if err := s.db.DeleteToken(ctx, old); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// lost a race with another refresh of the same token
			return nil, apperr.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}
	return s.issue(ctx, old.UserID, client.ID)
}

// Authenticate resolves a bearer access token to its stored row.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.Token, error) {
	if _, err := s.tokens.ValidateToken(accessToken); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, apperr.ErrTokensExpired
		}
		return nil, apperr.ErrInvalidToken
	}

	token, err := s.db.GetTokenByAccess(ctx, accessToken)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, apperr.ErrInvalidToken
	case err != nil:
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if !token.AccessTokenExpiresAt.After(s.now()) {
		return nil, apperr.ErrTokensExpired
	}
	return token, nil
}

// Logout revokes the token pair. Revoking an already removed pair is a no-op.
func (s *Service) Logout(ctx context.Context, token *models.Token) error {
	if err := s.db.DeleteToken(ctx, token); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	owned, err := s.db.OwnedVenueIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owned venues: %w", err)
	}
	if owned == nil {
		owned = []uuid.UUID{}
	}
	return &Profile{User: user, OwnedVenueIDs: owned}, nil
}

// DeleteAccount removes the user, its tokens, memberships and linked Spotify
// session. The only owner of a venue must hand it over first.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	venueIDs, err := s.db.DeleteUser(ctx, userID)
	if errors.Is(err, database.ErrSoleOwner) {
		return fmt.Errorf("%w: account is the only owner of a venue", apperr.ErrForbidden)
	}
	if err != nil {
		return notFound(err)
	}
	if s.spotifyTokens != nil {
		if err := s.spotifyTokens.DeleteToken(ctx, userID.String()); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to drop Spotify session")
		}
	}
	if s.venues != nil {
		for _, id := range venueIDs {
			if err := s.venues.Invalidate(ctx, id); err != nil {
				s.logger.Warn().Err(err).Str("venue_id", id.String()).Msg("Failed to invalidate venue cache")
			}
		}
	}
	s.logger.Info().Str("user_id", userID.String()).Int("venues", len(venueIDs)).Msg("Account deleted")
	return nil
}

func (s *Service) authenticateClient(ctx context.Context, creds ClientCredentials, grant string) (*models.Client, error) {
	if creds.ID == "" {
		return nil, fmt.Errorf("%w: missing client credentials", apperr.ErrInvalidClient)
	}
	client, err := s.db.GetClient(ctx, creds.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, apperr.ErrInvalidClient
	case err != nil:
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(creds.Secret)) != 1 {
		return nil, apperr.ErrInvalidClient
	}
	if !slices.Contains(strings.Fields(client.Grants), grant) {
		return nil, fmt.Errorf("%w: grant %q not allowed", apperr.ErrInvalidClient, grant)
	}
	return client, nil
}

func (s *Service) issue(ctx context.Context, userID uuid.UUID, clientID string) (*models.Token, error) {
	access, accessExpiresAt, err := s.tokens.GenerateToken(userID.String(), clientID)
	if err != nil {
		return nil, err
	}

	token := &models.Token{
		ID:                    uuid.New(),
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          newRefreshToken(),
		RefreshTokenExpiresAt: s.now().Add(s.refreshTTL),
		ClientID:              clientID,
		UserID:                userID,
	}
	if err := s.db.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// newRefreshToken returns an opaque token built from two random UUIDs.
func newRefreshToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.ErrNotFound
	}
	return err
}
