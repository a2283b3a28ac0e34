package accounts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Logger is the logging contract used across the package
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the options the account flows need
type Config interface {
	GetSiteName() string
	GetSiteURL() string
	GetSecretKey() string
	GetMailDefaultSender() string
	GetSignupTokenMaxAge() time.Duration
	GetRecoverPasswordTokenMaxAge() time.Duration
}

// PasswordHasher derives and verifies salted password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// Renderer renders a named template with the given binding.
// fiber.Views implementations satisfy it.
type Renderer interface {
	Render(out io.Writer, name string, binding any, layout ...string) error
}

// Mailer dispatches outbound email
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is an outbound email
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Session is the per-request key/value session mapping. ID is stable
// for the lifetime of the session.
type Session interface {
	ID() string
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Save() error
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + line(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + line(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + line(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + line(msg, args...))
}

func line(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteString(" ")
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, "%v", args[i])
	}
	b.WriteString("\n")
	return b.String()
}

func resolveLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
