package accounts

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// SignupVerifyMessage checks a signup link before rendering the
// completion form. It has no side effects.
type SignupVerifyMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *SignupVerifyResponse)
}

func (e SignupVerifyMessage) Type() string { return "account.signup.verify" }

type SignupVerifyResponse struct {
	Email string
}

type SignupVerifyHandler struct {
	Workflow *ConfirmationWorkflow
}

func (h *SignupVerifyHandler) Execute(ctx context.Context, event SignupVerifyMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupVerifyHandler) execute(ctx context.Context, event SignupVerifyMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	email, err := h.Workflow.verifySignup(ctx, event.Token)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&SignupVerifyResponse{Email: email})
	}
	return nil
}

// SignupConfirmMessage completes a signup. The email is always taken
// from the token.
type SignupConfirmMessage struct {
	Token      string `json:"token"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	OnResponse func(resp *SignupConfirmResponse)
}

func (e SignupConfirmMessage) Type() string { return "account.signup.confirm" }

type SignupConfirmResponse struct {
	User *User
}

type SignupConfirmHandler struct {
	Workflow *ConfirmationWorkflow
}

func (h *SignupConfirmHandler) Execute(ctx context.Context, event SignupConfirmMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupConfirmHandler) execute(ctx context.Context, event SignupConfirmMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	w := h.Workflow

	email, err := w.verifySignup(ctx, event.Token)
	if err != nil {
		return err
	}

	user := NewUser(event.Name, event.Username, email)
	if err := user.SetPassword(w.hasher, event.Password); err != nil {
		return richError(err, "failed to hash password")
	}

	if user, err = w.users.Create(ctx, user); err != nil {
		return richError(err, "could not create user")
	}

	w.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignupCompleted,
		UserID:    user.SessionID(),
		Email:     email,
	})

	if event.OnResponse != nil {
		event.OnResponse(&SignupConfirmResponse{User: user})
	}
	return nil
}

// verifySignup validates the token and requires its email to still be
// free. A token whose account was already created reports ErrEmailInUse.
func (w *ConfirmationWorkflow) verifySignup(ctx context.Context, token string) (string, error) {
	email, err := w.present(token, IntentSignup)
	if err != nil {
		return "", err
	}

	exists, err := w.users.ExistsByEmail(ctx, email)
	if err != nil {
		return "", richError(err, "failed to check email availability")
	}

	if exists {
		return "", ErrEmailInUse
	}

	return email, nil
}

// IsSignupLinkError reports errors that end a signup confirmation with
// a redirect instead of a form
func IsSignupLinkError(err error) bool {
	return IsTokenError(err) || errors.Is(err, ErrEmailInUse)
}
