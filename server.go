package accounts

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"

	"github.com/goliatone/go-accounts/middleware/csrf"
)

// NewHTTPServer returns a router server on a fiber app rendering views
// inside LayoutView
func NewHTTPServer(views fiber.Views, cfg Config, logger Logger) router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			Views:                 views,
			ViewsLayout:           LayoutView,
			ErrorHandler:          ErrorHandler(cfg, logger),
			DisableStartupMessage: true,
		})
	})
}

// ErrorHandler is the fiber.ErrorHandler for errors that escape the
// handlers. Client errors keep their status, the rest render ErrorView.
func ErrorHandler(cfg Config, logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ferr *fiber.Error
		if errors.As(err, &ferr) && ferr.Code < fiber.StatusInternalServerError {
			return c.Status(ferr.Code).SendString(ferr.Message)
		}

		resolveLogger(logger).Error("request failed", "path", c.Path(), "error", err)

		status, message := ErrorPage(err)
		data := viewData(c, cfg)
		data["message"] = message
		return c.Status(status).Render(ErrorView, fiber.Map(data))
	}
}

// Server holds what Mount needs to serve the account pages
type Server struct {
	Config   Config
	Logger   Logger
	Sessions SessionStore
	Auth     *Authenticator
	Workflow *ConfirmationWorkflow
	// CSRF enables token checks on unsafe methods
	CSRF bool
	// CSRFStorage keeps one token per session, nil signs stateless
	// tokens with a key derived from the secret key
	CSRFStorage csrf.Storage
	Debug       bool
}

// Mount installs the session, flash and CSRF middleware on srv and
// registers the pages and the account routes
func Mount(srv router.Server[*fiber.App], s Server) *AccountsController {
	srv.WrappedRouter().Use(SessionMiddleware(s.Sessions, s.Auth))

	r := srv.Router()
	r.Use(mflash.New(mflash.ConfigDefault))

	if s.CSRF {
		cfg := csrf.Config{Storage: s.CSRFStorage}
		if s.CSRFStorage == nil {
			cfg.SecureKey = csrf.DeriveKey(s.Config.GetSecretKey())
		}
		r.Use(csrf.New(cfg))
	}

	RegisterPageRoutes(r, s.Config)

	return RegisterAccountRoutes(r,
		WithControllerConfig(s.Config),
		WithControllerLogger(s.Logger),
		WithControllerDebug(s.Debug),
		WithControllerAuthenticator(s.Auth),
		WithControllerWorkflow(s.Workflow),
	)
}
