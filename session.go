package accounts

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultSessionCookieName = "accounts_session"
	DefaultSessionExpiration = 14 * 24 * time.Hour
)

// SessionStore loads the session of a request. Session.Save writes it
// back to the response.
type SessionStore interface {
	Load(c *fiber.Ctx) (Session, error)
}

// SessionCookie holds the cookie attributes shared by every store
type SessionCookie struct {
	Name       string
	Secure     bool
	Expiration time.Duration
}

func (sc SessionCookie) withDefaults() SessionCookie {
	if sc.Name == "" {
		sc.Name = DefaultSessionCookieName
	}
	if sc.Expiration <= 0 {
		sc.Expiration = DefaultSessionExpiration
	}
	return sc
}

type sessionClaims struct {
	Data map[string]string `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// CookieSessionStore keeps the whole session in one HS256 signed cookie.
// A cookie that fails verification is discarded and a fresh session
// takes its place.
type CookieSessionStore struct {
	secret []byte
	cookie SessionCookie
	now    func() time.Time
}

// NewCookieSessionStore returns a CookieSessionStore signing with secret
func NewCookieSessionStore(secret string, cookie SessionCookie) *CookieSessionStore {
	return &CookieSessionStore{
		secret: []byte(secret),
		cookie: cookie.withDefaults(),
		now:    time.Now,
	}
}

// WithClock sets the time source used for cookie expiry
func (s *CookieSessionStore) WithClock(now func() time.Time) *CookieSessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *CookieSessionStore) Load(c *fiber.Ctx) (Session, error) {
	sess := &cookieSession{
		store:  s,
		c:      c,
		values: map[string]string{},
	}

	raw := c.Cookies(s.cookie.Name)
	if raw == "" {
		sess.id = uuid.NewString()
		sess.dirty = true
		return sess, nil
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.ID == "" {
		sess.id = uuid.NewString()
		sess.dirty = true
		return sess, nil
	}

	sess.id = claims.ID
	for k, v := range claims.Data {
		sess.values[k] = v
	}
	return sess, nil
}

func (s *CookieSessionStore) encode(id string, values map[string]string) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Data: values,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cookie.Expiration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

type cookieSession struct {
	store  *CookieSessionStore
	c      *fiber.Ctx
	id     string
	values map[string]string
	dirty  bool
}

func (s *cookieSession) ID() string { return s.id }

func (s *cookieSession) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *cookieSession) Set(key, value string) {
	s.values[key] = value
	s.dirty = true
}

func (s *cookieSession) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

func (s *cookieSession) Save() error {
	if !s.dirty {
		return nil
	}

	value, err := s.store.encode(s.id, s.values)
	if err != nil {
		return err
	}

	s.c.Cookie(&fiber.Cookie{
		Name:     s.store.cookie.Name,
		Value:    value,
		Path:     "/",
		Expires:  s.store.now().Add(s.store.cookie.Expiration),
		Secure:   s.store.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	s.dirty = false
	return nil
}

// ServerSessionStore keeps session data in a fiber.Storage and only
// the session id in the cookie. A nil storage uses process memory.
type ServerSessionStore struct {
	store *session.Store
}

// NewServerSessionStore returns a ServerSessionStore backed by storage
func NewServerSessionStore(storage fiber.Storage, cookie SessionCookie) *ServerSessionStore {
	cookie = cookie.withDefaults()
	cfg := session.Config{
		Expiration:     cookie.Expiration,
		KeyLookup:      "cookie:" + cookie.Name,
		CookiePath:     "/",
		CookieSecure:   cookie.Secure,
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return &ServerSessionStore{store: session.New(cfg)}
}

func (s *ServerSessionStore) Load(c *fiber.Ctx) (Session, error) {
	sess, err := s.store.Get(c)
	if err != nil {
		return nil, err
	}
	return &serverSession{id: sess.ID(), sess: sess}, nil
}

// serverSession must not be read or written after Save, fiber recycles
// the underlying session. ID stays valid.
type serverSession struct {
	id    string
	sess  *session.Session
	saved bool
}

func (s *serverSession) ID() string { return s.id }

func (s *serverSession) Get(key string) (string, bool) {
	v, ok := s.sess.Get(key).(string)
	return v, ok
}

func (s *serverSession) Set(key, value string) { s.sess.Set(key, value) }

func (s *serverSession) Delete(key string) { s.sess.Delete(key) }

func (s *serverSession) Save() error {
	if s.saved {
		return nil
	}
	s.saved = true
	return s.sess.Save()
}
