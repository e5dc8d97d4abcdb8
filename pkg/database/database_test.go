package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-jukebox/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedUser(t *testing.T, db *DB, username string) *models.User {
	t.Helper()
	user := &models.User{ID: uuid.New(), Username: username, PasswordHash: "x"}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

func seedVenue(t *testing.T, db *DB, owner *models.User) *models.Venue {
	t.Helper()
	venue := &models.Venue{ID: uuid.New(), Name: "The Blue Room"}
	require.NoError(t, db.CreateVenue(context.Background(), venue, owner))
	return venue
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")

	t.Run("duplicate username", func(t *testing.T) {
		err := db.CreateUser(ctx, &models.User{ID: uuid.New(), Username: "alice", PasswordHash: "y"})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("lookup", func(t *testing.T) {
		got, err := db.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		exists, err := db.UsernameExists(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, exists)

		_, err = db.GetUserByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete removes memberships and tokens", func(t *testing.T) {
		bob := seedUser(t, db, "bob")
		venue := seedVenue(t, db, alice)
		require.NoError(t, db.Exec("INSERT INTO venue_owners (venue_id, user_id) VALUES (?, ?)", venue.ID, bob.ID).Error)
		_, err := db.AddAttendee(ctx, venue.ID, bob.ID)
		require.NoError(t, err)
		require.NoError(t, db.CreateToken(ctx, &models.Token{
			ID: uuid.New(), AccessToken: "a", RefreshToken: "r", UserID: bob.ID,
		}))

		venueIDs, err := db.DeleteUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{venue.ID, venue.ID}, venueIDs)

		_, err = db.GetTokenByAccess(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
		attending, err := db.IsAttendee(ctx, venue.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, attending)
		owners, err := db.OwnedVenueIDs(ctx, alice.ID)
		require.NoError(t, err)
		assert.Contains(t, owners, venue.ID)

		_, err = db.DeleteUser(ctx, bob.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("only owner cannot be deleted", func(t *testing.T) {
		carol := seedUser(t, db, "carol")
		venue := seedVenue(t, db, carol)

		_, err := db.DeleteUser(ctx, carol.ID)
		assert.ErrorIs(t, err, ErrSoleOwner)

		_, err = db.GetUserByID(ctx, carol.ID)
		require.NoError(t, err)
		owner, err := db.IsOwner(ctx, venue.ID, carol.ID)
		require.NoError(t, err)
		assert.True(t, owner)
	})
}

func TestVenueMembership(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := seedUser(t, db, "owner")
	guest := seedUser(t, db, "guest")
	venue := seedVenue(t, db, owner)

	owned, err := db.OwnedVenueIDs(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{venue.ID}, owned)

	isOwner, err := db.IsOwner(ctx, venue.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, isOwner)

	v, err := db.AddAttendee(ctx, venue.ID, guest.ID)
	require.NoError(t, err)
	assert.Len(t, v.Attendees, 1)

	v, err = db.AddAttendee(ctx, venue.ID, guest.ID)
	require.NoError(t, err)
	assert.Len(t, v.Attendees, 1, "checking in twice keeps one membership")

	v, err = db.RemoveAttendee(ctx, venue.ID, guest.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Attendees)

	_, err = db.AddAttendee(ctx, uuid.New(), guest.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddVote(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	venue := seedVenue(t, db, seedUser(t, db, "owner"))

	for i := 0; i < 5; i++ {
		_, err := db.AddVote(ctx, venue.ID, 1)
		require.NoError(t, err)
	}
	var got *models.Venue
	for i := 0; i < 2; i++ {
		var err error
		got, err = db.AddVote(ctx, venue.ID, -1)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, got.VoteCount)

	require.NoError(t, db.ResetVotes(ctx, venue.ID))
	got, err := db.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	assert.Zero(t, got.VoteCount)

	_, err = db.AddVote(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetCurrentSong(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	venue := seedVenue(t, db, seedUser(t, db, "owner"))

	_, changed, err := db.SetCurrentSong(ctx, venue.ID, "track-1")
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = db.AddVote(ctx, venue.ID, 1)
	require.NoError(t, err)

	v, changed, err := db.SetCurrentSong(ctx, venue.ID, "track-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, v.VoteCount)

	v, changed, err = db.SetCurrentSong(ctx, venue.ID, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Zero(t, v.VoteCount)
	assert.Empty(t, v.CurrentSongID)

	_, err = db.AddVote(ctx, venue.ID, -1)
	require.NoError(t, err)
	v, changed, err = db.SetCurrentSong(ctx, venue.ID, "")
	require.NoError(t, err)
	assert.False(t, changed, "still nothing playing")
	assert.Zero(t, v.VoteCount)

	stored, err := db.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.VoteCount)
	assert.Empty(t, stored.CurrentSongID)
}

func TestTokensAndClients(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := seedUser(t, db, "carol")

	require.NoError(t, db.UpsertClient(ctx, &models.Client{ID: "web", Secret: "one", Grants: "password"}))
	require.NoError(t, db.UpsertClient(ctx, &models.Client{ID: "web", Secret: "two", Grants: "password refresh_token"}))
	client, err := db.GetClient(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, "two", client.Secret)

	now := time.Now()
	expired := &models.Token{ID: uuid.New(), AccessToken: "a1", RefreshToken: "r1", UserID: user.ID,
		RefreshTokenExpiresAt: now.Add(-time.Minute)}
	live := &models.Token{ID: uuid.New(), AccessToken: "a2", RefreshToken: "r2", UserID: user.ID,
		RefreshTokenExpiresAt: now.Add(time.Hour)}
	require.NoError(t, db.CreateToken(ctx, expired))
	require.NoError(t, db.CreateToken(ctx, live))

	n, err := db.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := db.GetTokenByRefresh(ctx, "r2")
	require.NoError(t, err)
	require.NoError(t, db.DeleteToken(ctx, got))
	assert.ErrorIs(t, db.DeleteToken(ctx, got), ErrNotFound)
}
