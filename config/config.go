package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"

	"github.com/goliatone/go-accounts"
)

// Prefix is prepended to every environment variable
const Prefix = "ACCOUNTS_"

type AppConfig struct {
	SiteName  string `env:"SITE_NAME" envDefault:"Accounts"`
	SiteURL   string `env:"SITE_URL" envDefault:"http://localhost:8080"`
	SecretKey string `env:"SECRET_KEY"`
	Debug     bool   `env:"DEBUG" envDefault:"false"`
}

type AuthConfig struct {
	HashMethod                 string        `env:"HASH_METHOD" envDefault:"bcrypt"`
	BcryptCost                 int           `env:"BCRYPT_COST" envDefault:"0"`
	SignupTokenMaxAge          time.Duration `env:"SIGNUP_TOKEN_MAX_AGE" envDefault:"48h"`
	RecoverPasswordTokenMaxAge time.Duration `env:"RECOVER_PASSWORD_TOKEN_MAX_AGE" envDefault:"24h"`
	HashidIDs                  bool          `env:"HASHID_IDS" envDefault:"false"`
}

type DBConfig struct {
	Driver   string `env:"DRIVER" envDefault:"sqlite"`
	DSN      string `env:"DSN" envDefault:"file:accounts.db?cache=shared"`
	Database string `env:"DATABASE" envDefault:"accounts"`
}

type SessionConfig struct {
	Driver     string        `env:"DRIVER" envDefault:"cookie"`
	CookieName string        `env:"COOKIE_NAME" envDefault:"accounts_session"`
	Secure     bool          `env:"SECURE" envDefault:"false"`
	Expiration time.Duration `env:"EXPIRATION" envDefault:"336h"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"accounts:session:"`
}

type MailConfig struct {
	Driver        string `env:"DRIVER" envDefault:"log"`
	DefaultSender string `env:"DEFAULT_SENDER" envDefault:"noreply@localhost"`
	Host          string `env:"HOST"`
	Port          int    `env:"PORT" envDefault:"587"`
	Username      string `env:"USERNAME"`
	Password      string `env:"PASSWORD"`
	UseTLS        bool   `env:"USE_TLS" envDefault:"false"`
}

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	CSRF            bool          `env:"CSRF" envDefault:"true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type LogConfig struct {
	Level       string `env:"LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

// Config is the service configuration. It implements accounts.Config.
type Config struct {
	App     AppConfig     `envPrefix:"APP_"`
	Auth    AuthConfig    `envPrefix:"AUTH_"`
	DB      DBConfig      `envPrefix:"DB_"`
	Session SessionConfig `envPrefix:"SESSION_"`
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	Mail    MailConfig    `envPrefix:"MAIL_"`
	HTTP    HTTPConfig    `envPrefix:"HTTP_"`
	Log     LogConfig     `envPrefix:"LOG_"`
}

var _ accounts.Config = (*Config)(nil)

// Load reads the given dotenv files, ".env" when none is given, and
// parses the environment. A missing file is not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read dotenv file")
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses configuration from environ instead of the process
// environment
func FromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	return validation.Errors{
		"app": validation.ValidateStruct(&c.App,
			validation.Field(&c.App.SiteName, validation.Required),
			validation.Field(&c.App.SiteURL, validation.Required, is.URL),
			validation.Field(&c.App.SecretKey, validation.Required, validation.Length(16, 0)),
		),
		"auth": validation.ValidateStruct(&c.Auth,
			validation.Field(&c.Auth.HashMethod, validation.Required),
			validation.Field(&c.Auth.BcryptCost, validation.Min(0), validation.Max(31)),
			validation.Field(&c.Auth.SignupTokenMaxAge, validation.Required, validation.Min(time.Second)),
			validation.Field(&c.Auth.RecoverPasswordTokenMaxAge, validation.Required, validation.Min(time.Second)),
		),
		"db": validation.ValidateStruct(&c.DB,
			validation.Field(&c.DB.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres, DriverMongo)),
			validation.Field(&c.DB.DSN, validation.Required),
			validation.Field(&c.DB.Database, requiredWhen(c.DB.Driver == DriverMongo)),
		),
		"session": validation.ValidateStruct(&c.Session,
			validation.Field(&c.Session.Driver, validation.Required, validation.In(SessionCookie, SessionMemory, SessionRedis)),
			validation.Field(&c.Session.CookieName, validation.Required),
			validation.Field(&c.Session.Expiration, validation.Min(time.Minute)),
		),
		"redis": validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.Addr, requiredWhen(c.Session.Driver == SessionRedis)),
		),
		"mail": validation.ValidateStruct(&c.Mail,
			validation.Field(&c.Mail.Driver, validation.Required, validation.In(MailSMTP, MailLog)),
			validation.Field(&c.Mail.DefaultSender, validation.Required),
			validation.Field(&c.Mail.Host, requiredWhen(c.Mail.Driver == MailSMTP)),
			validation.Field(&c.Mail.Port, validation.Min(1), validation.Max(65535)),
		),
		"http": validation.ValidateStruct(&c.HTTP,
			validation.Field(&c.HTTP.Addr, validation.Required),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		),
	}.Filter()
}

// requiredWhen applies validation.Required only when cond holds
func requiredWhen(cond bool) validation.Rule {
	return validation.By(func(value any) error {
		if !cond {
			return nil
		}
		return validation.Validate(value, validation.Required)
	})
}

const (
	DriverSQLite   = accounts.DriverSQLite
	DriverPostgres = accounts.DriverPostgres
	DriverMongo    = "mongo"

	SessionCookie = "cookie"
	SessionMemory = "memory"
	SessionRedis  = "redis"

	MailSMTP = "smtp"
	MailLog  = "log"
)

func (c *Config) GetSiteName() string { return c.App.SiteName }

func (c *Config) GetSiteURL() string { return c.App.SiteURL }

func (c *Config) GetSecretKey() string { return c.App.SecretKey }

func (c *Config) GetMailDefaultSender() string { return c.Mail.DefaultSender }

func (c *Config) GetSignupTokenMaxAge() time.Duration { return c.Auth.SignupTokenMaxAge }

func (c *Config) GetRecoverPasswordTokenMaxAge() time.Duration {
	return c.Auth.RecoverPasswordTokenMaxAge
}
