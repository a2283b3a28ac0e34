package accounts

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"

	"github.com/goliatone/go-accounts/middleware/csrf"
)

const (
	MsgLoginSuccess          = "Login successfully"
	MsgLogoutSuccess         = "Logout successfully"
	MsgSignupRequested       = "Check your email to confirm registration."
	MsgSignupCompleted       = "Account registered successfully."
	MsgInvalidActivationLink = "Invalid activation Link."
	MsgRecoveryRequested     = "Check it out at your email instructions for setting a new password."
	MsgInvalidLink           = "Invalid Link."
	MsgPasswordSet           = "Password set successfully."
)

type AccountsControllerRoutes struct {
	Index           string
	Login           string
	Logout          string
	Signup          string
	RecoverPassword string
}

type AccountsControllerViews struct {
	Login                  string
	Signup                 string
	SignupConfirm          string
	RecoverPassword        string
	RecoverPasswordConfirm string
	Error                  string
}

// AccountsController serves the login, logout, signup and password
// recovery pages
type AccountsController struct {
	Debug        bool
	Logger       Logger
	Config       Config
	Auth         *Authenticator
	Workflow     *ConfirmationWorkflow
	Routes       *AccountsControllerRoutes
	Views        *AccountsControllerViews
	ErrorHandler router.ErrorHandler
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func WithControllerDebug(debug bool) AccountsControllerOption {
	return func(a *AccountsController) *AccountsController {
		a.Debug = debug
		return a
	}
}

func WithControllerLogger(logger Logger) AccountsControllerOption {
	return func(a *AccountsController) *AccountsController {
		a.Logger = resolveLogger(logger)
		return a
	}
}

func WithControllerConfig(cfg Config) AccountsControllerOption {
	return func(a *AccountsController) *AccountsController {
		a.Config = cfg
		return a
	}
}

func WithControllerAuthenticator(authn *Authenticator) AccountsControllerOption {
	return func(a *AccountsController) *AccountsController {
		a.Auth = authn
		return a
	}
}

func WithControllerWorkflow(w *ConfirmationWorkflow) AccountsControllerOption {
	return func(a *AccountsController) *AccountsController {
		a.Workflow = w
		return a
	}
}

func WithControllerErrorHandler(h router.ErrorHandler) AccountsControllerOption {
	return func(a *AccountsController) *AccountsController {
		a.ErrorHandler = h
		return a
	}
}

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	a := &AccountsController{
		Logger: defLogger{},
		Routes: &AccountsControllerRoutes{
			Index:           "/",
			Login:           "/login/",
			Logout:          "/logout/",
			Signup:          "/signup/",
			RecoverPassword: "/recover-password/",
		},
		Views: &AccountsControllerViews{
			Login:                  "accounts/login",
			Signup:                 "accounts/signup",
			SignupConfirm:          "accounts/signup_confirm",
			RecoverPassword:        "accounts/recover_password",
			RecoverPasswordConfirm: "accounts/recover_password_confirm",
			Error:                  "errors/500",
		},
	}

	for _, opt := range opts {
		a = opt(a)
	}

	if a.Config == nil {
		panic("Missing Config in accounts controller...")
	}

	if a.Auth == nil {
		panic("Missing Authenticator in accounts controller...")
	}

	if a.Workflow == nil {
		panic("Missing ConfirmationWorkflow in accounts controller...")
	}

	if a.ErrorHandler == nil {
		a.ErrorHandler = a.defaultErrHandler
	}

	return a
}

// RegisterAccountRoutes mounts the account pages on app. SessionMiddleware
// must run before them.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) *AccountsController {
	a := NewAccountsController(opts...)

	app.Get(a.Routes.Login, a.LoginShow).SetName("login.get")
	app.Post(a.Routes.Login, a.LoginPost).SetName("login.post")

	app.Get(a.Routes.Logout, a.Logout).SetName("logout.get")

	app.Get(a.Routes.Signup, a.SignupShow).SetName("signup.get")
	app.Post(a.Routes.Signup, a.SignupPost).SetName("signup.post")

	app.Get(a.Routes.Signup+":token/", a.SignupConfirmShow).SetName("signup-confirm.get")
	app.Post(a.Routes.Signup+":token/", a.SignupConfirmPost).SetName("signup-confirm.post")

	app.Get(a.Routes.RecoverPassword, a.RecoverPasswordShow).SetName("recover-password.get")
	app.Post(a.Routes.RecoverPassword, a.RecoverPasswordPost).SetName("recover-password.post")

	app.Get(a.Routes.RecoverPassword+":token/", a.RecoverPasswordConfirmShow).SetName("recover-password-confirm.get")
	app.Post(a.Routes.RecoverPassword+":token/", a.RecoverPasswordConfirmPost).SetName("recover-password-confirm.post")

	return a
}

func (a *AccountsController) LoginShow(ctx router.Context) error {
	return a.render(ctx, a.Views.Login, router.ViewContext{
		"form": &LoginForm{Next: nextURL(ctx)},
	})
}

func (a *AccountsController) LoginPost(ctx router.Context) error {
	form := new(LoginForm)
	if err := ctx.Bind(form); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse login form"))
	}
	if form.Next == "" {
		form.Next = nextURL(ctx)
	}

	if err := form.Validate(ctx.Context(), a.Auth.Users(), a.Auth.Hasher()); err != nil {
		fieldErrs, ok := AsFieldErrors(err)
		if !ok {
			return a.ErrorHandler(ctx, err)
		}
		a.Auth.LoginFailed(ctx.Context(), form.Username, fieldErrs)
		return a.render(ctx, a.Views.Login, router.ViewContext{
			"form":   form,
			"errors": fieldErrs,
		})
	}

	a.Auth.Login(ctx.Context(), a.session(ctx), form.User())

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgLoginSuccess,
	}).Redirect(form.Next, http.StatusFound)
}

func (a *AccountsController) Logout(ctx router.Context) error {
	a.Auth.EndSession(ctx.Context(), a.session(ctx))

	next := ctx.Query("next")
	if next == "" {
		next = a.Routes.Index
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgLogoutSuccess,
	}).Redirect(next, http.StatusFound)
}

func (a *AccountsController) SignupShow(ctx router.Context) error {
	return a.render(ctx, a.Views.Signup, router.ViewContext{
		"form": &SignupForm{},
	})
}

func (a *AccountsController) SignupPost(ctx router.Context) error {
	form := new(SignupForm)
	if err := ctx.Bind(form); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse signup form"))
	}

	if err := form.Validate(ctx.Context(), a.Auth.Users()); err != nil {
		return a.formFailure(ctx, a.Views.Signup, form, err)
	}

	var res *SignupRequestResponse
	cmd := SignupRequestHandler{Workflow: a.Workflow}
	err := cmd.Execute(ctx.Context(), SignupRequestMessage{
		Email: form.Email,
		OnResponse: func(resp *SignupRequestResponse) {
			res = resp
		},
	})
	if errors.Is(err, ErrEmailInUse) {
		return a.formFailure(ctx, a.Views.Signup, form, FieldErrors{}.Add("email", MsgEmailInUse))
	}
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.debug("SIGNUP REQUEST", res)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgSignupRequested,
	}).Redirect(a.Routes.Index, http.StatusFound)
}

func (a *AccountsController) SignupConfirmShow(ctx router.Context) error {
	token := ctx.Param("token")

	var email string
	cmd := SignupVerifyHandler{Workflow: a.Workflow}
	err := cmd.Execute(ctx.Context(), SignupVerifyMessage{
		Token: token,
		OnResponse: func(resp *SignupVerifyResponse) {
			email = resp.Email
		},
	})
	if err != nil {
		return a.signupLinkFailure(ctx, err)
	}

	return a.render(ctx, a.Views.SignupConfirm, router.ViewContext{
		"form":  &SignupConfirmForm{Next: nextURL(ctx)},
		"token": token,
		"email": email,
	})
}

func (a *AccountsController) SignupConfirmPost(ctx router.Context) error {
	token := ctx.Param("token")

	var email string
	verify := SignupVerifyHandler{Workflow: a.Workflow}
	err := verify.Execute(ctx.Context(), SignupVerifyMessage{
		Token: token,
		OnResponse: func(resp *SignupVerifyResponse) {
			email = resp.Email
		},
	})
	if err != nil {
		return a.signupLinkFailure(ctx, err)
	}

	form := new(SignupConfirmForm)
	if err := ctx.Bind(form); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse signup form"))
	}
	if form.Next == "" {
		form.Next = nextURL(ctx)
	}

	extra := router.ViewContext{"token": token, "email": email}

	if err := form.Validate(ctx.Context(), a.Auth.Users()); err != nil {
		return a.formFailure(ctx, a.Views.SignupConfirm, form, err, extra)
	}

	var user *User
	confirm := SignupConfirmHandler{Workflow: a.Workflow}
	err = confirm.Execute(ctx.Context(), SignupConfirmMessage{
		Token:    token,
		Name:     form.Name,
		Username: form.Username,
		Password: form.Password,
		OnResponse: func(resp *SignupConfirmResponse) {
			user = resp.User
		},
	})
	switch {
	case errors.Is(err, ErrUsernameInUse):
		return a.formFailure(ctx, a.Views.SignupConfirm, form, FieldErrors{}.Add("username", MsgLoginInUse), extra)
	case IsSignupLinkError(err):
		return a.signupLinkFailure(ctx, err)
	case err != nil:
		return a.ErrorHandler(ctx, err)
	}

	a.Auth.Login(ctx.Context(), a.session(ctx), user)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgSignupCompleted,
	}).Redirect(form.Next, http.StatusFound)
}

func (a *AccountsController) RecoverPasswordShow(ctx router.Context) error {
	return a.render(ctx, a.Views.RecoverPassword, router.ViewContext{
		"form": &RecoverPasswordForm{},
	})
}

func (a *AccountsController) RecoverPasswordPost(ctx router.Context) error {
	form := new(RecoverPasswordForm)
	if err := ctx.Bind(form); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse recovery form"))
	}

	if err := form.Validate(ctx.Context(), a.Auth.Users()); err != nil {
		return a.formFailure(ctx, a.Views.RecoverPassword, form, err)
	}

	var res *PasswordRecoveryRequestResponse
	cmd := PasswordRecoveryRequestHandler{Workflow: a.Workflow}
	err := cmd.Execute(ctx.Context(), PasswordRecoveryRequestMessage{
		Email: form.Email,
		OnResponse: func(resp *PasswordRecoveryRequestResponse) {
			res = resp
		},
	})
	if errors.Is(err, ErrEmailNotFound) {
		return a.formFailure(ctx, a.Views.RecoverPassword, form, FieldErrors{}.Add("email", MsgEmailNotFound))
	}
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.debug("PASSWORD RECOVERY REQUEST", res)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgRecoveryRequested,
	}).Redirect(a.Routes.Index, http.StatusFound)
}

func (a *AccountsController) RecoverPasswordConfirmShow(ctx router.Context) error {
	token := ctx.Param("token")

	var user *User
	cmd := PasswordRecoveryVerifyHandler{Workflow: a.Workflow}
	err := cmd.Execute(ctx.Context(), PasswordRecoveryVerifyMessage{
		Token: token,
		OnResponse: func(resp *PasswordRecoveryVerifyResponse) {
			user = resp.User
		},
	})
	if err != nil {
		return a.recoveryLinkFailure(ctx, err)
	}

	return a.render(ctx, a.Views.RecoverPasswordConfirm, router.ViewContext{
		"form":  &RecoverPasswordConfirmForm{},
		"token": token,
		"user":  user,
	})
}

func (a *AccountsController) RecoverPasswordConfirmPost(ctx router.Context) error {
	token := ctx.Param("token")

	var user *User
	verify := PasswordRecoveryVerifyHandler{Workflow: a.Workflow}
	err := verify.Execute(ctx.Context(), PasswordRecoveryVerifyMessage{
		Token: token,
		OnResponse: func(resp *PasswordRecoveryVerifyResponse) {
			user = resp.User
		},
	})
	if err != nil {
		return a.recoveryLinkFailure(ctx, err)
	}

	form := new(RecoverPasswordConfirmForm)
	if err := ctx.Bind(form); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse password form"))
	}

	if err := form.Validate(); err != nil {
		return a.formFailure(ctx, a.Views.RecoverPasswordConfirm, form, err, router.ViewContext{
			"token": token,
			"user":  user,
		})
	}

	reset := PasswordResetHandler{Workflow: a.Workflow}
	err = reset.Execute(ctx.Context(), PasswordResetMessage{
		Token:    token,
		Password: form.Password,
	})
	if IsRecoveryLinkError(err) {
		return a.recoveryLinkFailure(ctx, err)
	}
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgPasswordSet,
	}).Redirect(a.Routes.Login, http.StatusFound)
}

func (a *AccountsController) signupLinkFailure(ctx router.Context, err error) error {
	var message string
	switch {
	case IsTokenError(err):
		message = MsgInvalidActivationLink
	case errors.Is(err, ErrEmailInUse):
		message = MsgEmailInUse
	default:
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithError(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect(a.Routes.Signup, http.StatusFound)
}

func (a *AccountsController) recoveryLinkFailure(ctx router.Context, err error) error {
	var message string
	switch {
	case IsTokenError(err):
		message = MsgInvalidLink
	case errors.Is(err, ErrEmailNotFound):
		message = MsgEmailNotFound
	default:
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithError(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect(a.Routes.Index, http.StatusFound)
}

// formFailure re-renders view with the field errors of err. Any other
// error goes to the error handler.
func (a *AccountsController) formFailure(ctx router.Context, view string, form any, err error, extra ...router.ViewContext) error {
	fieldErrs, ok := AsFieldErrors(err)
	if !ok {
		return a.ErrorHandler(ctx, err)
	}

	data := router.ViewContext{
		"form":   form,
		"errors": fieldErrs,
	}
	for _, m := range extra {
		for k, v := range m {
			data[k] = v
		}
	}
	return a.render(ctx, view, data)
}

func (a *AccountsController) render(ctx router.Context, view string, data router.ViewContext) error {
	return ctx.Render(view, ViewContext(ctx, a.Config, data))
}

func (a *AccountsController) session(ctx router.Context) Session {
	if rc, ok := FromContext(ctx); ok && rc.Session != nil {
		return rc.Session
	}
	panic("accounts: SessionMiddleware is not installed")
}

func (a *AccountsController) debug(title string, v any) {
	if !a.Debug {
		return
	}
	a.Logger.Debug(fmt.Sprintf("======= %s ======\n%s", title, print.MaybePrettyJSON(v)))
}

func (a *AccountsController) defaultErrHandler(ctx router.Context, err error) error {
	return RenderError(ctx, a.Config, a.Logger, a.Views.Error, err)
}

// RenderError logs err and renders view with the status matching its
// category. Internal details are not shown to the client.
func RenderError(ctx router.Context, cfg Config, logger Logger, view string, err error) error {
	resolveLogger(logger).Error("request failed", "path", ctx.Path(), "error", err)

	status, message := ErrorPage(err)
	return ctx.Status(status).Render(view, ViewContext(ctx, cfg, router.ViewContext{
		"message": message,
	}))
}

// ErrorPage returns the status and the client safe message for err
func ErrorPage(err error) (int, string) {
	status := ErrorStatus(err)

	message := "Internal server error"
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && status < http.StatusInternalServerError {
		message = richErr.Message
	}
	if errors.Is(err, ErrEmailDispatch) {
		message = ErrEmailDispatch.Message
	}
	return status, message
}

// ErrorStatus maps err to an HTTP status. An explicit error code wins
// over the category, anything unknown is a 500.
func ErrorStatus(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// ViewContext merges the per request template values into data:
// current_user, the pending flash, csrf_token, csrf_field_name and
// site_name. Reading the flash consumes it.
func ViewContext(ctx router.Context, cfg Config, data router.ViewContext) map[string]any {
	out := viewData(ctx, cfg)
	out["flash"] = map[string]any(flash.Get(ctx))

	for k, v := range csrf.TemplateHelpers(ctx) {
		out[k] = v
	}

	for k, v := range data {
		out[k] = v
	}

	return out
}

// viewData holds the values every page shows, flash and csrf aside
func viewData(c Locals, cfg Config) map[string]any {
	out := map[string]any{}

	if cfg != nil {
		out["site_name"] = cfg.GetSiteName()
	}

	if user := CurrentUser(c); user != nil {
		out["current_user"] = user
	}

	return out
}

// nextURL is the post action redirect target, "/" when absent
func nextURL(ctx router.Context) string {
	if next := ctx.FormValue("next"); next != "" {
		return next
	}
	return "/"
}
