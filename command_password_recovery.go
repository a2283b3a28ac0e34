package accounts

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// PasswordRecoveryRequestMessage mails a recovery link to a registered
// email address.
type PasswordRecoveryRequestMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *PasswordRecoveryRequestResponse)
}

func (e PasswordRecoveryRequestMessage) Type() string { return "account.password.recovery.request" }

type PasswordRecoveryRequestResponse struct {
	Email string
	Token string
}

type PasswordRecoveryRequestHandler struct {
	Workflow *ConfirmationWorkflow
}

func (h *PasswordRecoveryRequestHandler) Execute(ctx context.Context, event PasswordRecoveryRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password recovery request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordRecoveryRequestHandler) execute(ctx context.Context, event PasswordRecoveryRequestMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	w := h.Workflow

	user, err := w.users.GetByEmail(ctx, event.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrEmailNotFound
		}
		return richError(err, "failed to look up email")
	}

	token, err := w.issue(ctx, user.Email, recoverPasswordEmail(w.config.GetSiteName()))
	if err != nil {
		return err
	}

	w.emit(ctx, ActivityEvent{
		EventType: ActivityEventPasswordRecoveryRequested,
		UserID:    user.SessionID(),
		Email:     user.Email,
	})

	if event.OnResponse != nil {
		event.OnResponse(&PasswordRecoveryRequestResponse{Email: user.Email, Token: token})
	}
	return nil
}

// PasswordRecoveryVerifyMessage checks a recovery link before rendering
// the new password form.
type PasswordRecoveryVerifyMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *PasswordRecoveryVerifyResponse)
}

func (e PasswordRecoveryVerifyMessage) Type() string { return "account.password.recovery.verify" }

type PasswordRecoveryVerifyResponse struct {
	User *User
}

type PasswordRecoveryVerifyHandler struct {
	Workflow *ConfirmationWorkflow
}

func (h *PasswordRecoveryVerifyHandler) Execute(ctx context.Context, event PasswordRecoveryVerifyMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password recovery verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordRecoveryVerifyHandler) execute(ctx context.Context, event PasswordRecoveryVerifyMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	user, err := h.Workflow.verifyRecovery(ctx, event.Token)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&PasswordRecoveryVerifyResponse{User: user})
	}
	return nil
}

// PasswordResetMessage sets a new password for the account named by a
// recovery token.
type PasswordResetMessage struct {
	Token      string `json:"token"`
	Password   string `json:"-"`
	OnResponse func(resp *PasswordResetResponse)
}

func (e PasswordResetMessage) Type() string { return "account.password.reset" }

type PasswordResetResponse struct {
	User *User
}

type PasswordResetHandler struct {
	Workflow *ConfirmationWorkflow
}

func (h *PasswordResetHandler) Execute(ctx context.Context, event PasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordResetHandler) execute(ctx context.Context, event PasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	w := h.Workflow

	user, err := w.verifyRecovery(ctx, event.Token)
	if err != nil {
		return err
	}

	if err := w.users.SetPassword(ctx, user, event.Password); err != nil {
		return richError(err, "failed to update password")
	}

	w.emit(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		UserID:    user.SessionID(),
		Email:     user.Email,
	})

	if event.OnResponse != nil {
		event.OnResponse(&PasswordResetResponse{User: user})
	}
	return nil
}

// verifyRecovery validates the token and loads the account it names.
// An account removed after the link was sent reports ErrEmailNotFound.
func (w *ConfirmationWorkflow) verifyRecovery(ctx context.Context, token string) (*User, error) {
	email, err := w.present(token, IntentRecoverPassword)
	if err != nil {
		return nil, err
	}

	user, err := w.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, richError(err, "failed to look up email")
	}

	return user, nil
}

// IsRecoveryLinkError reports errors that end a password recovery
// confirmation with a redirect instead of a form
func IsRecoveryLinkError(err error) bool {
	return IsTokenError(err) || errors.Is(err, ErrEmailNotFound)
}
