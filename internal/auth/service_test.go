package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-jukebox/internal/apperr"
	"github.com/venue-jukebox/internal/config"
	"github.com/venue-jukebox/pkg/database"
	"github.com/venue-jukebox/pkg/database/dbtest"
	"github.com/venue-jukebox/pkg/jwt"
	"github.com/venue-jukebox/pkg/models"
	"github.com/venue-jukebox/pkg/redis"
)

const (
	testClientID     = "web"
	testClientSecret = "web-secret"
)

var testCreds = ClientCredentials{ID: testClientID, Secret: testClientSecret}

type serviceEnv struct {
	svc    *Service
	db     *database.DB
	tokens *redis.TokenStore
	venues *redis.VenueCache
}

func newServiceEnv(t *testing.T, accessTTL time.Duration) *serviceEnv {
	t.Helper()
	db := dbtest.New(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := redis.NewTokenStore(rdb)
	venues := redis.NewVenueCache(rdb, time.Minute)

	svc := NewService(db, jwt.NewManager("test-secret", accessTTL), store, venues, 24*time.Hour, zerolog.Nop())
	require.NoError(t, svc.SeedClients(context.Background(), []config.ClientConfig{
		{ID: testClientID, Secret: testClientSecret, Grants: []string{GrantPassword, GrantRefreshToken}},
		{ID: "password-only", Secret: "s", Grants: []string{GrantPassword}},
	}))
	return &serviceEnv{svc: svc, db: db, tokens: store, venues: venues}
}

func (e *serviceEnv) register(t *testing.T, username, password string) *models.User {
	t.Helper()
	user, err := e.svc.Register(context.Background(), RegisterInput{Username: username, Password: password, FirstName: "Ada"})
	require.NoError(t, err)
	return user
}

func countUsers(t *testing.T, db *database.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	return n
}

func TestRegister(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()

	user := env.register(t, "  ada  ", "correct horse")
	assert.Equal(t, "ada", user.Username)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	_, err := env.svc.Register(ctx, RegisterInput{Username: "ab", Password: "long enough"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.svc.Register(ctx, RegisterInput{Username: "grace", Password: "short"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegisterDuplicateWritesNothing(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	env.register(t, "ada", "correct horse")
	before := countUsers(t, env.db)

	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "ada", Password: "another password"})
	assert.ErrorIs(t, err, apperr.ErrUsernameTaken)
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
	assert.Equal(t, before, countUsers(t, env.db))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()
	env.register(t, "ada", "correct horse")

	_, wrongPassword := env.svc.Login(ctx, testCreds, "ada", "battery staple")
	_, unknownUser := env.svc.Login(ctx, testCreds, "nobody", "battery staple")

	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.ErrorIs(t, wrongPassword, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, apperr.ErrInvalidCredentials)
}

func TestLoginClientChecks(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()
	env.register(t, "ada", "correct horse")

	_, err := env.svc.Login(ctx, ClientCredentials{ID: testClientID, Secret: "wrong"}, "ada", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrInvalidClient)

	_, err = env.svc.Login(ctx, ClientCredentials{ID: "ghost"}, "ada", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrInvalidClient)

	_, err = env.svc.Login(ctx, ClientCredentials{}, "ada", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrInvalidClient)

	token, err := env.svc.Login(ctx, testCreds, "ada", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)
	assert.Equal(t, testClientID, token.ClientID)
}

func TestAuthenticate(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()
	user := env.register(t, "ada", "correct horse")

	token, err := env.svc.Login(ctx, testCreds, "ada", "correct horse")
	require.NoError(t, err)

	got, err := env.svc.Authenticate(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	_, err = env.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	// the stored expiry is authoritative even while the JWT still verifies
	env.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = env.svc.Authenticate(ctx, token.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrTokensExpired)

	env.svc.now = time.Now
	require.NoError(t, env.svc.Logout(ctx, got))
	_, err = env.svc.Authenticate(ctx, token.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	require.NoError(t, env.svc.Logout(ctx, got), "second logout is a no-op")
}

func TestAuthenticateExpiredJWT(t *testing.T) {
	env := newServiceEnv(t, -time.Minute)
	ctx := context.Background()
	env.register(t, "ada", "correct horse")

	token, err := env.svc.Login(ctx, testCreds, "ada", "correct horse")
	require.NoError(t, err)

	_, err = env.svc.Authenticate(ctx, token.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrTokensExpired)
}

func TestRefreshRotates(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()
	env.register(t, "ada", "correct horse")

	first, err := env.svc.Login(ctx, testCreds, "ada", "correct horse")
	require.NoError(t, err)

	second, err := env.svc.Refresh(ctx, testCreds, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.UserID, second.UserID)

	_, err = env.svc.Refresh(ctx, testCreds, first.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken, "rotated token cannot be reused")

	_, err = env.svc.Authenticate(ctx, first.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = env.svc.Refresh(ctx, ClientCredentials{ID: "password-only", Secret: "s"}, second.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidClient, "client lacks the refresh grant")

	env.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = env.svc.Refresh(ctx, testCreds, second.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestProfileAndDelete(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()
	owner := env.register(t, "grace", "correct horse")
	user := env.register(t, "ada", "correct horse")

	venue := &models.Venue{ID: uuid.New(), Name: "The Blue Room"}
	require.NoError(t, env.db.CreateVenue(ctx, venue, owner))
	require.NoError(t, env.db.Exec("INSERT INTO venue_owners (venue_id, user_id) VALUES (?, ?)", venue.ID, user.ID).Error)
	_, err := env.db.AddAttendee(ctx, venue.ID, user.ID)
	require.NoError(t, err)
	require.NoError(t, env.tokens.StoreTokens(ctx, user.ID.String(), &redis.TokenInfo{AccessToken: "a", RefreshToken: "r"}))
	_, err = env.svc.Login(ctx, testCreds, "ada", "correct horse")
	require.NoError(t, err)

	profile, err := env.svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", profile.Username)
	assert.Len(t, profile.OwnedVenueIDs, 1)

	stored, err := env.db.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	require.NoError(t, env.venues.Set(ctx, stored.Public()))

	require.NoError(t, env.svc.DeleteAccount(ctx, user.ID))

	_, err = env.svc.Profile(ctx, user.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.tokens.GetTokens(ctx, user.ID.String())
	assert.ErrorIs(t, err, redis.ErrTokenNotFound)
	_, cached, err := env.venues.Get(ctx, venue.ID)
	require.NoError(t, err)
	assert.False(t, cached, "venue cache still lists the deleted user")

	var tokens int64
	require.NoError(t, env.db.Model(&models.Token{}).Where("user_id = ?", user.ID).Count(&tokens).Error)
	assert.Zero(t, tokens)

	assert.ErrorIs(t, env.svc.DeleteAccount(ctx, user.ID), apperr.ErrNotFound)
}

func TestDeleteAccountRefusedForOnlyOwner(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()
	user := env.register(t, "ada", "correct horse")

	venue := &models.Venue{ID: uuid.New(), Name: "The Blue Room"}
	require.NoError(t, env.db.CreateVenue(ctx, venue, user))

	err := env.svc.DeleteAccount(ctx, user.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	profile, err := env.svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{venue.ID}, profile.OwnedVenueIDs)
}

func TestSweeper(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx := context.Background()
	env.register(t, "ada", "correct horse")

	_, err := env.svc.Login(ctx, testCreds, "ada", "correct horse")
	require.NoError(t, err)

	sweeper := NewSweeper(env.db, time.Minute, zerolog.Nop())
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	sweeper.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSweeperRunStops(t *testing.T) {
	env := newServiceEnv(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewSweeper(env.db, 10*time.Millisecond, zerolog.Nop()).Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
