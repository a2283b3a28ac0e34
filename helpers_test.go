package accounts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type testConfig struct {
	siteName       string
	siteURL        string
	secret         string
	sender         string
	signupMaxAge   time.Duration
	recoveryMaxAge time.Duration
}

func newTestConfig() *testConfig {
	return &testConfig{
		siteName:       "Accounts",
		siteURL:        "http://localhost:8080",
		secret:         "test-secret-key",
		sender:         "noreply@localhost",
		signupMaxAge:   48 * time.Hour,
		recoveryMaxAge: 24 * time.Hour,
	}
}

func (c *testConfig) GetSiteName() string                          { return c.siteName }
func (c *testConfig) GetSiteURL() string                           { return c.siteURL }
func (c *testConfig) GetSecretKey() string                         { return c.secret }
func (c *testConfig) GetMailDefaultSender() string                 { return c.sender }
func (c *testConfig) GetSignupTokenMaxAge() time.Duration          { return c.signupMaxAge }
func (c *testConfig) GetRecoverPasswordTokenMaxAge() time.Duration { return c.recoveryMaxAge }

func newTestHasher() accounts.PasswordHasher {
	return accounts.MustPasswordHasher(accounts.HashBcrypt, accounts.WithBcryptCost(bcrypt.MinCost))
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := accounts.OpenDB(ctx, accounts.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, accounts.Migrate(ctx, db, nopLogger{}))
	return db
}

func newTestUsers(t *testing.T, opts ...accounts.UsersOption) accounts.Users {
	t.Helper()
	return accounts.NewUsersRepository(newTestDB(t), newTestHasher(), opts...)
}

func seedUser(t *testing.T, store accounts.Users, username, email, password string) *accounts.User {
	t.Helper()
	u := accounts.NewUser("Test "+username, username, email)
	require.NoError(t, u.SetPassword(newTestHasher(), password))
	created, err := store.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type capturingMailer struct {
	mu   sync.Mutex
	sent []accounts.Message
	err  error
}

func (m *capturingMailer) Send(_ context.Context, msg accounts.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *capturingMailer) Last() (accounts.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return accounts.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *capturingMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mapSession struct {
	values map[string]string
	saved  int
}

func newMapSession() *mapSession {
	return &mapSession{values: map[string]string{}}
}

func (s *mapSession) ID() string { return "test-session" }

func (s *mapSession) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *mapSession) Set(key, value string) { s.values[key] = value }
func (s *mapSession) Delete(key string)     { delete(s.values, key) }
func (s *mapSession) Save() error           { s.saved++; return nil }
