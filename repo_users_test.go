package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestUsersCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)

	created := seedUser(t, store, "bob", "bob@example.com", "abc123")
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.True(t, created.IsActive)
	assert.False(t, created.IsSuperuser)
	require.NotNil(t, created.CreatedAt)
	require.NotNil(t, created.UpdatedAt)

	byName, err := store.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, "bob@example.com", byName.Email)

	byEmail, err := store.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := store.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "bob", byID.Username)
	assert.True(t, newTestHasher().Verify(byID.PasswordHash, "abc123"))
}

func TestUsersLookupMisses(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	seedUser(t, store, "bob", "bob@example.com", "abc123")

	_, err := store.GetByUsername(ctx, "Bob")
	assert.ErrorIs(t, err, accounts.ErrUserNotFound, "username match is exact")

	_, err = store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)

	_, err = store.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)

	_, err = store.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)
}

func TestUsersExists(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	seedUser(t, store, "bob", "bob@example.com", "abc123")

	ok, err := store.ExistsByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ExistsByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ExistsByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsersUniqueness(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	seedUser(t, store, "bob", "bob@example.com", "abc123")

	_, err := store.Create(ctx, accounts.NewUser("Other", "bob", "other@example.com"))
	assert.ErrorIs(t, err, accounts.ErrUsernameInUse)

	_, err = store.Create(ctx, accounts.NewUser("Other", "other", "bob@example.com"))
	assert.ErrorIs(t, err, accounts.ErrEmailInUse)
}

func TestUsersTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newTestUsers(t, accounts.WithUsersClock(clock))

	u := seedUser(t, store, "bob", "bob@example.com", "abc123")
	assert.True(t, u.CreatedAt.Equal(now))
	assert.True(t, u.UpdatedAt.Equal(now))

	now = now.Add(time.Hour)
	u.Name = "Robert"
	_, err := store.Save(ctx, u)
	require.NoError(t, err)

	reloaded, err := store.GetByID(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Robert", reloaded.Name)
	require.NotNil(t, reloaded.CreatedAt)
	require.NotNil(t, reloaded.UpdatedAt)
	assert.True(t, reloaded.CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, reloaded.UpdatedAt.Equal(now))
}

func TestUsersSetPassword(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	u := seedUser(t, store, "bob", "bob@example.com", "abc123")

	require.NoError(t, store.SetPassword(ctx, u, "newpass"))

	reloaded, err := store.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, newTestHasher().Verify(reloaded.PasswordHash, "newpass"))
	assert.False(t, newTestHasher().Verify(reloaded.PasswordHash, "abc123"))

	err = store.SetPassword(ctx, u, "")
	assert.ErrorIs(t, err, accounts.ErrNoEmptyString)
}

func TestUsersTrackSuccessfulLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestUsers(t, accounts.WithUsersClock(func() time.Time { return now }))
	u := seedUser(t, store, "bob", "bob@example.com", "abc123")
	assert.Nil(t, u.LastLogin)

	now = now.Add(2 * time.Hour)
	require.NoError(t, store.TrackSuccessfulLogin(ctx, u))
	require.NotNil(t, u.UpdatedAt)
	assert.True(t, u.UpdatedAt.Equal(now))

	reloaded, err := store.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLogin)
	assert.True(t, reloaded.LastLogin.Equal(now))
	require.NotNil(t, reloaded.UpdatedAt)
	assert.True(t, reloaded.UpdatedAt.Equal(now))
	assert.True(t, reloaded.CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))

	gone := accounts.NewUser("Gone", "gone", "gone@example.com")
	gone.ID = uuid.New()
	assert.ErrorIs(t, store.TrackSuccessfulLogin(ctx, gone), accounts.ErrUserNotFound)
}

func TestUsersDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	u := seedUser(t, store, "bob", "bob@example.com", "abc123")

	require.NoError(t, store.Delete(ctx, u))

	_, err := store.GetByID(ctx, u.ID.String())
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)

	assert.ErrorIs(t, store.Delete(ctx, u), accounts.ErrUserNotFound)
}

func TestUsersHashidIDs(t *testing.T) {
	store := newTestUsers(t, accounts.WithUsersHashid(true))
	u := seedUser(t, store, "bob", "bob@example.com", "abc123")

	expected, err := hashid.NewUUID("bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, expected, u.ID)
}

func TestRepositoryManagerValidate(t *testing.T) {
	mngr := accounts.NewRepositoryManager(newTestDB(t), newTestHasher())
	assert.NoError(t, mngr.Validate())
	assert.NotNil(t, mngr.Users())

	err := mngr.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		return nil
	})
	assert.NoError(t, err)
}
