package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// SignupRequestMessage asks for a signup confirmation email
type SignupRequestMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *SignupRequestResponse)
}

func (e SignupRequestMessage) Type() string { return "account.signup.request" }

type SignupRequestResponse struct {
	Email string
	Token string
}

// SignupRequestHandler issues a signup token and mails the link.
// The email must not belong to an account.
type SignupRequestHandler struct {
	Workflow *ConfirmationWorkflow
}

func (h *SignupRequestHandler) Execute(ctx context.Context, event SignupRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupRequestHandler) execute(ctx context.Context, event SignupRequestMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	w := h.Workflow

	exists, err := w.users.ExistsByEmail(ctx, event.Email)
	if err != nil {
		return richError(err, "failed to check email availability")
	}

	if exists {
		return ErrEmailInUse
	}

	token, err := w.issue(ctx, event.Email, signupEmail(w.config.GetSiteName()))
	if err != nil {
		return richError(err, "failed to issue signup confirmation")
	}

	w.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignupRequested,
		Email:     event.Email,
	})

	if event.OnResponse != nil {
		event.OnResponse(&SignupRequestResponse{Email: event.Email, Token: token})
	}

	return nil
}
