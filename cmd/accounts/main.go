package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/middleware/csrf"
	"github.com/goliatone/go-accounts/mongostore"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// App holds the wired collaborators of the accounts server
type App struct {
	config   *config.Config
	zap      *zap.Logger
	logger   accounts.Logger
	users    accounts.Users
	hasher   accounts.PasswordHasher
	sessions accounts.SessionStore
	closers  []io.Closer
	csrf     csrf.Storage
	srv      router.Server[*fiber.App]
}

func (a *App) onClose(c io.Closer) {
	a.closers = append(a.closers, c)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	_ = a.zap.Sync()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lgr, err := newZap(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := &App{
		config: cfg,
		zap:    lgr,
		logger: accounts.NewZapLogger(lgr),
	}
	defer app.Close()

	ctx := context.Background()
	if err := run(ctx, app); err != nil {
		app.logger.Error("accounts server failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *App) error {
	if err := app.config.Validate(); err != nil {
		return err
	}

	if err := WithPasswordHasher(app); err != nil {
		return err
	}

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}

	if err := WithSessions(ctx, app); err != nil {
		return err
	}

	if err := WithHTTPServer(app); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		app.logger.Info("accounts server listening", "addr", app.config.HTTP.Addr)
		errc <- app.srv.Serve(app.config.HTTP.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-WaitExitSignal():
		app.logger.Info("shutting down", "signal", sig.String())
	}

	return app.srv.WrappedRouter().ShutdownWithTimeout(app.config.HTTP.ShutdownTimeout)
}

func newZap(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid log level").
			WithMetadata(map[string]any{"level": cfg.Level})
	}
	zcfg.Level = lvl

	return zcfg.Build()
}

func WithPasswordHasher(app *App) error {
	hasher, err := accounts.NewPasswordHasher(app.config.Auth.HashMethod,
		accounts.WithBcryptCost(app.config.Auth.BcryptCost),
	)
	if err != nil {
		return err
	}
	app.hasher = hasher
	return nil
}

// WithPersistence opens the configured user store and applies
// migrations or indexes
func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.config

	if cfg.DB.Driver == config.DriverMongo {
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.DB.DSN))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to connect to mongo")
		}
		app.onClose(closerFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		}))

		store := mongostore.New(client.Database(cfg.DB.Database), app.hasher,
			mongostore.WithHashid(cfg.Auth.HashidIDs),
		)
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		app.users = store
		return nil
	}

	db, err := accounts.OpenDB(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	app.onClose(db)

	if err := accounts.Migrate(ctx, db, app.logger); err != nil {
		return err
	}

	repo := accounts.NewRepositoryManager(db, app.hasher, accounts.WithUsersHashid(cfg.Auth.HashidIDs))
	if err := repo.Validate(); err != nil {
		return err
	}
	app.users = repo.Users()
	return nil
}

// WithSessions picks the session store named by the session driver
func WithSessions(ctx context.Context, app *App) error {
	cfg := app.config
	cookie := accounts.SessionCookie{
		Name:       cfg.Session.CookieName,
		Secure:     cfg.Session.Secure,
		Expiration: cfg.Session.Expiration,
	}

	switch cfg.Session.Driver {
	case config.SessionMemory:
		app.sessions = accounts.NewServerSessionStore(nil, cookie)
	case config.SessionRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reach redis").
				WithMetadata(map[string]any{"addr": cfg.Redis.Addr})
		}

		storage := accounts.NewRedisStorage(client, cfg.Redis.Prefix)
		app.onClose(storage)
		app.sessions = accounts.NewServerSessionStore(storage, cookie)
		app.csrf = csrf.NewFiberStorage(storage)
	default:
		app.sessions = accounts.NewCookieSessionStore(cfg.App.SecretKey, cookie)
	}
	return nil
}

func newMailer(app *App) (accounts.Mailer, error) {
	cfg := app.config.Mail
	if cfg.Driver != config.MailSMTP {
		return accounts.NewLogMailer(app.logger), nil
	}

	mailer, err := accounts.NewSMTPMailer(accounts.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseTLS:   cfg.UseTLS,
	})
	if err != nil {
		return nil, err
	}
	return mailer.WithLogger(app.logger), nil
}

// WithHTTPServer builds the router server and mounts the account pages
func WithHTTPServer(app *App) error {
	cfg := app.config

	views, err := accounts.NewViews()
	if err != nil {
		return err
	}

	signer, err := accounts.NewTokenSigner(cfg.App.SecretKey)
	if err != nil {
		return err
	}

	mailer, err := newMailer(app)
	if err != nil {
		return err
	}

	sink := accounts.LogActivitySink(app.logger)

	authn := accounts.NewAuthenticator(app.users, app.hasher).
		WithLogger(app.logger).
		WithActivitySink(sink)

	workflow := accounts.NewConfirmationWorkflow(cfg, signer, app.users, app.hasher, mailer, views).
		WithLogger(app.logger).
		WithActivitySink(sink)

	app.srv = accounts.NewHTTPServer(views, cfg, app.logger)

	accounts.Mount(app.srv, accounts.Server{
		Config:      cfg,
		Logger:      app.logger,
		Sessions:    app.sessions,
		Auth:        authn,
		Workflow:    workflow,
		CSRF:        cfg.HTTP.CSRF,
		CSRFStorage: app.csrf,
		Debug:       cfg.App.Debug,
	})

	return nil
}

func WaitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
