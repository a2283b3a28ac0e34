package accounts

import (
	"context"
	"errors"
)

// SessionUserKey is the session key holding the authenticated user id
const SessionUserKey = "user_id"

// Authenticator validates credentials and manages the session identity
type Authenticator struct {
	users        Users
	hasher       PasswordHasher
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(users Users, hasher PasswordHasher) *Authenticator {
	return &Authenticator{
		users:        users,
		hasher:       hasher,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Authenticator) WithLogger(logger Logger) *Authenticator {
	s.logger = resolveLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// Authenticate looks up username with an exact match and verifies
// password. It returns ErrLoginNotFound or ErrIncorrectPassword.
func (s *Authenticator) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.LoginFailed(ctx, username, ErrLoginNotFound)
			return nil, ErrLoginNotFound
		}
		return nil, err
	}

	if !user.CheckPassword(s.hasher, password) {
		s.LoginFailed(ctx, username, ErrIncorrectPassword)
		return nil, ErrIncorrectPassword
	}

	return user, nil
}

// Login establishes the session for an authenticated user and records
// the login. Tracking failures are logged only.
func (s *Authenticator) Login(ctx context.Context, session Session, user *User) {
	s.EstablishSession(session, user)

	if err := s.users.TrackSuccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	emitActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.SessionID(),
		Email:     user.Email,
	})
}

// LoginFailed records a rejected login attempt
func (s *Authenticator) LoginFailed(ctx context.Context, username string, reason error) {
	meta := map[string]any{"username": username}
	if reason != nil {
		meta["error"] = reason.Error()
	}
	emitActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Metadata:  meta,
	})
}

// EstablishSession stores the user id as the session identity
func (s *Authenticator) EstablishSession(session Session, user *User) {
	session.Set(SessionUserKey, user.SessionID())
}

// CurrentUser resolves the session identity. A missing or dangling id
// yields nil, store failures are logged and also yield nil.
func (s *Authenticator) CurrentUser(ctx context.Context, session Session) *User {
	if session == nil {
		return nil
	}

	id, ok := session.Get(SessionUserKey)
	if !ok || id == "" {
		return nil
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.Error("failed to resolve session user", "user_id", id, "error", err)
		}
		return nil
	}

	return user
}

// EndSession removes the session identity
func (s *Authenticator) EndSession(ctx context.Context, session Session) {
	id, ok := session.Get(SessionUserKey)
	session.Delete(SessionUserKey)

	if ok {
		emitActivity(ctx, s.activitySink, s.logger, ActivityEvent{
			EventType: ActivityEventLogout,
			UserID:    id,
		})
	}
}

// Users returns the store backing this authenticator
func (s *Authenticator) Users() Users {
	return s.users
}

// Hasher returns the password hasher
func (s *Authenticator) Hasher() PasswordHasher {
	return s.hasher
}
