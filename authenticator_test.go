package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	sink := &capturingSink{}
	authn := accounts.NewAuthenticator(store, newTestHasher()).
		WithLogger(nopLogger{}).
		WithActivitySink(sink)

	seedUser(t, store, "bob", "bob@example.com", "abc123")

	t.Run("success", func(t *testing.T) {
		u, err := authn.Authenticate(ctx, "bob", "abc123")
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", u.Email)
	})

	t.Run("unknown login", func(t *testing.T) {
		u, err := authn.Authenticate(ctx, "alice", "abc123")
		assert.ErrorIs(t, err, accounts.ErrLoginNotFound)
		assert.Equal(t, accounts.TextCodeLoginNotFound, accounts.ErrLoginNotFound.TextCode)
		assert.Nil(t, u)
	})

	t.Run("wrong password", func(t *testing.T) {
		u, err := authn.Authenticate(ctx, "bob", "abc124")
		assert.ErrorIs(t, err, accounts.ErrIncorrectPassword)
		assert.Equal(t, accounts.TextCodeWrongPassword, accounts.ErrIncorrectPassword.TextCode)
		assert.Nil(t, u)
	})

	assert.Equal(t, []accounts.ActivityEventType{
		accounts.ActivityEventLoginFailure,
		accounts.ActivityEventLoginFailure,
	}, sink.Types())
}

func TestAuthenticateStoreFailure(t *testing.T) {
	ctx := context.Background()
	users := new(MockUsers)
	boom := errors.New("connection refused")
	users.On("GetByUsername", ctx, "bob").Return(nil, boom).Once()

	authn := accounts.NewAuthenticator(users, newTestHasher()).WithLogger(nopLogger{})

	_, err := authn.Authenticate(ctx, "bob", "abc123")
	assert.ErrorIs(t, err, boom)
	users.AssertExpectations(t)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	sink := &capturingSink{}
	authn := accounts.NewAuthenticator(store, newTestHasher()).
		WithLogger(nopLogger{}).
		WithActivitySink(sink)

	u := seedUser(t, store, "bob", "bob@example.com", "abc123")
	session := newMapSession()

	assert.Nil(t, authn.CurrentUser(ctx, session))

	authn.Login(ctx, session, u)
	id, ok := session.Get(accounts.SessionUserKey)
	require.True(t, ok)
	assert.Equal(t, u.ID.String(), id)

	current := authn.CurrentUser(ctx, session)
	require.NotNil(t, current)
	assert.Equal(t, "bob", current.Username)
	assert.NotNil(t, current.LastLogin)

	authn.EndSession(ctx, session)
	_, ok = session.Get(accounts.SessionUserKey)
	assert.False(t, ok)
	assert.Nil(t, authn.CurrentUser(ctx, session))

	assert.Equal(t, []accounts.ActivityEventType{
		accounts.ActivityEventLoginSuccess,
		accounts.ActivityEventLogout,
	}, sink.Types())
}

func TestCurrentUserDanglingID(t *testing.T) {
	ctx := context.Background()
	store := newTestUsers(t)
	authn := accounts.NewAuthenticator(store, newTestHasher()).WithLogger(nopLogger{})

	u := seedUser(t, store, "bob", "bob@example.com", "abc123")
	session := newMapSession()
	authn.EstablishSession(session, u)

	require.NoError(t, store.Delete(ctx, u))
	assert.Nil(t, authn.CurrentUser(ctx, session))

	session.Set(accounts.SessionUserKey, "garbage")
	assert.Nil(t, authn.CurrentUser(ctx, session))
}

func TestCurrentUserStoreFailureYieldsNoUser(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()
	users := new(MockUsers)
	users.On("GetByID", ctx, id).Return(nil, errors.New("timeout")).Once()

	authn := accounts.NewAuthenticator(users, newTestHasher()).WithLogger(nopLogger{})
	session := newMapSession()
	session.Set(accounts.SessionUserKey, id)

	assert.Nil(t, authn.CurrentUser(ctx, session))
	users.AssertExpectations(t)
}

func TestLoginTrackingFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	u := accounts.NewUser("Bob", "bob", "bob@example.com")
	u.ID = uuid.New()

	users := new(MockUsers)
	users.On("TrackSuccessfulLogin", ctx, mock.Anything).Return(errors.New("read only")).Once()

	authn := accounts.NewAuthenticator(users, newTestHasher()).WithLogger(nopLogger{})
	session := newMapSession()

	authn.Login(ctx, session, u)

	id, ok := session.Get(accounts.SessionUserKey)
	assert.True(t, ok)
	assert.Equal(t, u.ID.String(), id)
	users.AssertExpectations(t)
}
