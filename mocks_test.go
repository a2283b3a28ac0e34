package accounts_test

import (
	"context"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/mock"
)

// MockUsers implements accounts.Users
type MockUsers struct {
	mock.Mock
}

var _ accounts.Users = (*MockUsers)(nil)

func (m *MockUsers) user(args mock.Arguments) (*accounts.User, error) {
	u, _ := args.Get(0).(*accounts.User)
	return u, args.Error(1)
}

func (m *MockUsers) GetByID(ctx context.Context, id string) (*accounts.User, error) {
	return m.user(m.Called(ctx, id))
}

func (m *MockUsers) GetByUsername(ctx context.Context, username string) (*accounts.User, error) {
	return m.user(m.Called(ctx, username))
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return m.user(m.Called(ctx, email))
}

func (m *MockUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	return m.user(m.Called(ctx, user))
}

func (m *MockUsers) Save(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	return m.user(m.Called(ctx, user))
}

func (m *MockUsers) Delete(ctx context.Context, user *accounts.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUsers) SetPassword(ctx context.Context, user *accounts.User, password string) error {
	return m.Called(ctx, user, password).Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	return m.Called(ctx, user).Error(0)
}

type capturingSink struct {
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt accounts.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []accounts.ActivityEventType {
	out := make([]accounts.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}
