package accounts

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

const requestContextKey = "accounts.request_context"

// SessionLocalsKey holds the session id in the fiber locals
const SessionLocalsKey = "session_id"

// Locals reads request scoped values. Both *fiber.Ctx and
// router.Context satisfy it.
type Locals interface {
	Locals(key any, value ...any) any
}

// RequestContext holds the session and the identity resolved for one
// request
type RequestContext struct {
	Session Session
	User    *User
}

// IsAuthenticated reports whether the request carries a logged in user
func (r *RequestContext) IsAuthenticated() bool {
	return r != nil && r.User != nil
}

// SessionMiddleware loads the session, resolves the current user and
// stores both as a RequestContext. The session is saved once the rest
// of the chain returns, also when it returns an error. It runs on the
// fiber app wrapped by the router, ahead of every route.
func SessionMiddleware(store SessionStore, authn *Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Load(c)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session")
		}

		rc := &RequestContext{
			Session: sess,
			User:    authn.CurrentUser(c.UserContext(), sess),
		}
		c.Locals(requestContextKey, rc)
		c.Locals(SessionLocalsKey, sess.ID())

		nextErr := c.Next()

		if err := sess.Save(); err != nil {
			authn.logger.Error("failed to save session", "error", err)
			if nextErr == nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save session")
			}
		}

		return nextErr
	}
}

// FromContext returns the RequestContext stored by SessionMiddleware
func FromContext(c Locals) (*RequestContext, bool) {
	rc, ok := c.Locals(requestContextKey).(*RequestContext)
	return rc, ok
}

// CurrentUser returns the logged in user of the request, or nil
func CurrentUser(c Locals) *User {
	rc, ok := FromContext(c)
	if !ok {
		return nil
	}
	return rc.User
}
