package accounts

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SignupEmailTemplate          = "accounts/emails/signup"
	RecoverPasswordEmailTemplate = "accounts/emails/recover_password"
)

// commandTimeout bounds every confirmation command
var commandTimeout = time.Second * 10

// ConfirmationWorkflow carries the collaborators of the signup and
// password recovery flows. The command handlers share one instance.
type ConfirmationWorkflow struct {
	config       Config
	signer       *TokenSigner
	users        Users
	hasher       PasswordHasher
	mailer       Mailer
	views        Renderer
	logger       Logger
	activitySink ActivitySink
}

// NewConfirmationWorkflow returns a new ConfirmationWorkflow
func NewConfirmationWorkflow(cfg Config, signer *TokenSigner, users Users, hasher PasswordHasher, mailer Mailer, views Renderer) *ConfirmationWorkflow {
	return &ConfirmationWorkflow{
		config:       cfg,
		signer:       signer,
		users:        users,
		hasher:       hasher,
		mailer:       mailer,
		views:        views,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (w *ConfirmationWorkflow) WithLogger(logger Logger) *ConfirmationWorkflow {
	w.logger = resolveLogger(logger)
	return w
}

// WithActivitySink configures an ActivitySink for emitting account events.
func (w *ConfirmationWorkflow) WithActivitySink(sink ActivitySink) *ConfirmationWorkflow {
	w.activitySink = normalizeActivitySink(sink)
	return w
}

func (w *ConfirmationWorkflow) maxAge(intent TokenIntent) time.Duration {
	if intent == IntentSignup {
		return w.config.GetSignupTokenMaxAge()
	}
	return w.config.GetRecoverPasswordTokenMaxAge()
}

// ConfirmationLink builds the absolute link for a token
func (w *ConfirmationWorkflow) ConfirmationLink(intent TokenIntent, token string) string {
	base := strings.TrimRight(w.config.GetSiteURL(), "/")
	return fmt.Sprintf("%s/%s/%s/", base, intent, url.PathEscape(token))
}

type confirmationEmail struct {
	intent   TokenIntent
	template string
	subject  string
}

func signupEmail(site string) confirmationEmail {
	return confirmationEmail{
		intent:   IntentSignup,
		template: SignupEmailTemplate,
		subject:  fmt.Sprintf("Confirm your account - %s.", site),
	}
}

func recoverPasswordEmail(site string) confirmationEmail {
	return confirmationEmail{
		intent:   IntentRecoverPassword,
		template: RecoverPasswordEmailTemplate,
		subject:  fmt.Sprintf("Recover your password - %s.", site),
	}
}

// issue signs a fresh token for email and mails the confirmation
// link. Every call produces an independent token.
func (w *ConfirmationWorkflow) issue(ctx context.Context, email string, kind confirmationEmail) (string, error) {
	token, err := w.signer.Sign(TokenPayload{Email: email, Intent: kind.intent})
	if err != nil {
		return "", err
	}

	binding := map[string]any{
		"site_name":   w.config.GetSiteName(),
		"site_url":    w.config.GetSiteURL(),
		"email":       email,
		"signed_data": token,
		"link":        w.ConfirmationLink(kind.intent, token),
	}

	var body bytes.Buffer
	if err := w.views.Render(&body, kind.template, binding); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render confirmation email").
			WithMetadata(map[string]any{"template": kind.template})
	}

	msg := Message{
		From:    w.config.GetMailDefaultSender(),
		To:      email,
		Subject: kind.subject,
		HTML:    body.String(),
	}

	if err := w.mailer.Send(ctx, msg); err != nil {
		w.logger.Error("confirmation email dispatch failed", "intent", kind.intent, "to", email, "error", err)
		return "", ErrEmailDispatch
	}

	return token, nil
}

// present verifies a token for intent and returns the email it carries
func (w *ConfirmationWorkflow) present(token string, intent TokenIntent) (string, error) {
	payload, err := w.signer.UnsignIntent(token, intent, w.maxAge(intent))
	if err != nil {
		w.logger.Debug("rejected confirmation token", "intent", intent, "error", err)
		return "", err
	}
	return payload.Email, nil
}

func (w *ConfirmationWorkflow) emit(ctx context.Context, evt ActivityEvent) {
	emitActivity(ctx, w.activitySink, w.logger, evt)
}

// richError returns err as is when it already carries a category and
// wraps it as an internal failure otherwise
func richError(err error, msg string) error {
	if _, ok := AsFieldErrors(err); ok {
		return err
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
