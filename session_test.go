package accounts_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSessionApp serves GET /set?v= to store a value and GET /get to
// read it back
func newSessionApp(store accounts.SessionStore) *fiber.App {
	app := fiber.New()
	app.Get("/set", func(c *fiber.Ctx) error {
		sess, err := store.Load(c)
		if err != nil {
			return err
		}
		sess.Set("value", c.Query("v"))
		if err := sess.Save(); err != nil {
			return err
		}
		return c.SendString(sess.ID())
	})
	app.Get("/get", func(c *fiber.Ctx) error {
		sess, err := store.Load(c)
		if err != nil {
			return err
		}
		v, _ := sess.Get("value")
		id := sess.ID()
		if err := sess.Save(); err != nil {
			return err
		}
		return c.SendString(id + "|" + v)
	})
	return app
}

func sessionRequest(t *testing.T, app *fiber.App, path string, cookies ...*http.Cookie) (string, []*http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	res, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	return readBody(t, res), res.Cookies()
}

func sessionCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestCookieSessionStoreRoundTrip(t *testing.T) {
	store := accounts.NewCookieSessionStore("secret", accounts.SessionCookie{})
	app := newSessionApp(store)

	id, cookies := sessionRequest(t, app, "/set?v=hello")
	cookie := sessionCookie(t, cookies, accounts.DefaultSessionCookieName)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	body, _ := sessionRequest(t, app, "/get", cookie)
	assert.Equal(t, id+"|hello", body)
}

func TestCookieSessionStoreRejectsForeignSignature(t *testing.T) {
	app := newSessionApp(accounts.NewCookieSessionStore("secret", accounts.SessionCookie{}))
	other := newSessionApp(accounts.NewCookieSessionStore("other-secret", accounts.SessionCookie{}))

	id, cookies := sessionRequest(t, other, "/set?v=hello")
	cookie := sessionCookie(t, cookies, accounts.DefaultSessionCookieName)

	body, _ := sessionRequest(t, app, "/get", cookie)
	assert.NotEqual(t, id+"|hello", body)
	assert.Contains(t, body, "|")
	assert.NotContains(t, body, "hello")
}

func TestCookieSessionStoreRejectsNoneAlgorithm(t *testing.T) {
	app := newSessionApp(accounts.NewCookieSessionStore("secret", accounts.SessionCookie{}))

	claims := jwt.MapClaims{
		"data": map[string]string{"value": "forged"},
		"jti":  "abc",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	body, _ := sessionRequest(t, app, "/get", &http.Cookie{Name: accounts.DefaultSessionCookieName, Value: forged})
	assert.NotContains(t, body, "forged")
}

func TestCookieSessionStoreExpiry(t *testing.T) {
	now := time.Now()
	store := accounts.NewCookieSessionStore("secret", accounts.SessionCookie{Expiration: time.Hour}).
		WithClock(func() time.Time { return now })
	app := newSessionApp(store)

	_, cookies := sessionRequest(t, app, "/set?v=hello")
	cookie := sessionCookie(t, cookies, accounts.DefaultSessionCookieName)

	now = now.Add(30 * time.Minute)
	body, _ := sessionRequest(t, app, "/get", cookie)
	assert.Contains(t, body, "|hello")

	now = now.Add(31 * time.Minute)
	body, _ = sessionRequest(t, app, "/get", cookie)
	assert.NotContains(t, body, "hello")
}

func TestCookieSessionStoreCustomCookie(t *testing.T) {
	store := accounts.NewCookieSessionStore("secret", accounts.SessionCookie{Name: "sid", Secure: true})
	_, cookies := sessionRequest(t, newSessionApp(store), "/set?v=x")

	cookie := sessionCookie(t, cookies, "sid")
	assert.True(t, cookie.Secure)
}

func TestServerSessionStoreRoundTrip(t *testing.T) {
	store := accounts.NewServerSessionStore(nil, accounts.SessionCookie{})
	app := newSessionApp(store)

	id, cookies := sessionRequest(t, app, "/set?v=hello")
	cookie := sessionCookie(t, cookies, accounts.DefaultSessionCookieName)
	assert.Equal(t, id, cookie.Value)

	body, _ := sessionRequest(t, app, "/get", cookie)
	assert.Equal(t, id+"|hello", body)

	body, _ = sessionRequest(t, app, "/get", &http.Cookie{Name: accounts.DefaultSessionCookieName, Value: "unknown"})
	assert.NotContains(t, body, "hello")
}

func TestServerSessionStoreOnRedisStorage(t *testing.T) {
	client := newFakeRedis()
	store := accounts.NewServerSessionStore(accounts.NewRedisStorage(client, ""), accounts.SessionCookie{})
	app := newSessionApp(store)

	id, cookies := sessionRequest(t, app, "/set?v=hello")
	assert.Contains(t, client.data, accounts.DefaultRedisPrefix+id)

	body, _ := sessionRequest(t, app, "/get", sessionCookie(t, cookies, accounts.DefaultSessionCookieName))
	assert.Equal(t, id+"|hello", body)
}
