package csrf

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSecureKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func newMockContextWithBase(method, sessionID string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Method").Return(method)
	ctx.On("IP").Return("127.0.0.1")
	ctx.On("Locals", DefaultContextKey, mock.Anything).Return(nil)
	ctx.On("Locals", DefaultContextKey+"_field", mock.Anything).Return(nil)
	if sessionID != "" {
		ctx.LocalsMock[DefaultSessionLocalsKey] = sessionID
	}
	return ctx
}

// postContext submits token through the form field
func postContext(sessionID, token string) *router.MockContext {
	ctx := newMockContextWithBase("POST", sessionID)
	ctx.On("FormValue", DefaultFormFieldName).Return(token)
	ctx.On("GetString", DefaultHeaderName, "").Return("")
	return ctx
}

type captured struct {
	err error
}

func (c *captured) handler(ctx router.Context, err error) error {
	c.err = err
	return err
}

func fetchToken(t *testing.T, handler router.HandlerFunc, sessionID string) string {
	t.Helper()
	ctx := newMockContextWithBase("GET", sessionID)
	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)

	token, ok := ctx.LocalsMock[DefaultContextKey].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func newHandler(cfg Config) (router.HandlerFunc, *captured) {
	c := &captured{}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = c.handler
	}
	return New(cfg)(func(ctx router.Context) error { return nil }), c
}

func TestStatelessTokenValidationSuccess(t *testing.T) {
	handler, _ := newHandler(Config{SecureKey: newTestSecureKey()})
	token := fetchToken(t, handler, "abc")

	ctx := postContext("abc", token)
	require.NoError(t, handler(ctx))
	assert.True(t, ctx.NextCalled)
}

func TestStatelessTokenFromHeader(t *testing.T) {
	handler, _ := newHandler(Config{SecureKey: newTestSecureKey()})
	token := fetchToken(t, handler, "abc")

	ctx := newMockContextWithBase("POST", "abc")
	ctx.On("FormValue", DefaultFormFieldName).Return("")
	ctx.On("GetString", DefaultHeaderName, "").Return(token)

	require.NoError(t, handler(ctx))
	assert.True(t, ctx.NextCalled)
}

func TestStatelessTokenValidationMismatch(t *testing.T) {
	handler, c := newHandler(Config{SecureKey: newTestSecureKey()})
	fetchToken(t, handler, "abc")

	ctx := postContext("abc", "tampered")
	require.Error(t, handler(ctx))
	assert.ErrorIs(t, c.err, ErrTokenMismatch)
	assert.False(t, ctx.NextCalled)
}

func TestStatelessTokenMissing(t *testing.T) {
	handler, c := newHandler(Config{SecureKey: newTestSecureKey()})

	require.Error(t, handler(postContext("abc", "")))
	assert.ErrorIs(t, c.err, ErrTokenMissing)
}

func TestStatelessTokenBoundToSession(t *testing.T) {
	handler, c := newHandler(Config{SecureKey: newTestSecureKey()})
	token := fetchToken(t, handler, "session-a")

	require.Error(t, handler(postContext("session-b", token)))
	assert.ErrorIs(t, c.err, ErrTokenMismatch)
}

func TestStatelessTokenSessionKeyWithColons(t *testing.T) {
	handler, _ := newHandler(Config{SecureKey: newTestSecureKey()})
	token := fetchToken(t, handler, "a:b:c")

	require.NoError(t, handler(postContext("a:b:c", token)))
}

func TestStatelessTokenExpiration(t *testing.T) {
	now := time.Unix(1700000000, 0)
	handler, c := newHandler(Config{
		SecureKey:  newTestSecureKey(),
		Expiration: time.Minute,
		now:        func() time.Time { return now },
	})
	token := fetchToken(t, handler, "abc")

	now = now.Add(time.Minute + time.Second)

	require.Error(t, handler(postContext("abc", token)))
	assert.ErrorIs(t, c.err, ErrTokenExpired)
}

func TestStorageTokenIsStablePerSession(t *testing.T) {
	storage := NewFiberStorage(session.New().Storage)
	handler, c := newHandler(Config{Storage: storage})

	first := fetchToken(t, handler, "abc")
	second := fetchToken(t, handler, "abc")
	assert.Equal(t, first, second)

	stored, err := storage.Get("csrf_abc")
	require.NoError(t, err)
	assert.Equal(t, first, stored)

	require.NoError(t, handler(postContext("abc", first)))

	require.Error(t, handler(postContext("abc", first+"x")))
	assert.ErrorIs(t, c.err, ErrTokenMismatch)
}

func TestSkipBypassesValidation(t *testing.T) {
	handler, _ := newHandler(Config{
		SecureKey: newTestSecureKey(),
		Skip:      func(router.Context) bool { return true },
	})

	ctx := router.NewMockContext()
	require.NoError(t, handler(ctx))
	assert.True(t, ctx.NextCalled)
}

func TestShortSecureKeyPanics(t *testing.T) {
	require.Panics(t, func() {
		New(Config{SecureKey: []byte("short")})
	})
}

func TestDeriveKey(t *testing.T) {
	key := DeriveKey("secret")
	assert.Len(t, key, 32)
	assert.Equal(t, key, DeriveKey("secret"))
	assert.NotEqual(t, key, DeriveKey("other"))
}

func TestTemplateHelpers(t *testing.T) {
	ctx := router.NewMockContext()
	assert.Equal(t, map[string]any{
		"csrf_token":      "",
		"csrf_field_name": DefaultFormFieldName,
	}, TemplateHelpers(ctx))

	ctx.LocalsMock[DefaultContextKey] = "token-123"
	ctx.LocalsMock[DefaultContextKey+"_field"] = "_token"
	assert.Equal(t, map[string]any{
		"csrf_token":      "token-123",
		"csrf_field_name": "_token",
	}, TemplateHelpers(ctx))
}
