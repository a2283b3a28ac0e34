package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	MsgRequired         = "This field is required."
	MsgInvalidEmail     = "Invalid email address."
	MsgLoginNotFound    = "Login not found."
	MsgIncorrectPass    = "Incorrect password."
	MsgEmailInUse       = "E-mail in use."
	MsgEmailNotFound    = "E-mail not found."
	MsgLoginInUse       = "Login in use."
	MsgLettersAndDigits = "Just letters and numbers."
)

var usernamePattern = regexp.MustCompile(`^\w+$`)

// FieldErrors maps a form field to its validation messages
type FieldErrors map[string][]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(f[k], ", ")))
	}
	return strings.Join(parts, "; ")
}

// Add appends msg to field
func (f FieldErrors) Add(field, msg string) FieldErrors {
	f[field] = append(f[field], msg)
	return f
}

// First returns the first message for field
func (f FieldErrors) First(field string) string {
	if msgs := f[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Has reports whether field failed validation
func (f FieldErrors) Has(field string) bool {
	return len(f[field]) > 0
}

// AsFieldErrors extracts form errors from err
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func lengthBetween(min, max int) validation.Rule {
	return validation.Length(min, max).
		Error(fmt.Sprintf("Field must be between %d and %d characters long.", min, max))
}

func lengthMax(max int) validation.Rule {
	return validation.Length(0, max).
		Error(fmt.Sprintf("Field cannot be longer than %d characters.", max))
}

var required = validation.Required.Error(MsgRequired)

// ValidateStringEquals will check that the field matches *str at
// validation time
func ValidateStringEquals(str *string, msg string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != *str {
			return errors.New(msg)
		}
		return nil
	}
}

// emailRules are shared by the signup and recovery request forms
func emailRules(predicate validation.RuleFunc) []validation.Rule {
	return []validation.Rule{
		required,
		lengthMax(100),
		is.Email.Error(MsgInvalidEmail),
		validation.By(predicate),
	}
}

// LoginForm is the credentials form
type LoginForm struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
	Next     string `form:"next" json:"next"`

	user *User `form:"-"`
}

// Validate checks the credentials. On success User returns the
// account they belong to.
func (f *LoginForm) Validate(ctx context.Context, users Users, hasher PasswordHasher) error {
	f.user = nil
	err := validation.ValidateStruct(f,
		validation.Field(&f.Username,
			required,
			validation.By(func(value any) error {
				u, err := users.GetByUsername(ctx, value.(string))
				if errors.Is(err, ErrUserNotFound) {
					return errors.New(MsgLoginNotFound)
				}
				if err != nil {
					return validation.NewInternalError(err)
				}
				f.user = u
				return nil
			}),
		),
		validation.Field(&f.Password,
			required,
			validation.By(func(value any) error {
				if f.user == nil {
					return nil
				}
				if !f.user.CheckPassword(hasher, value.(string)) {
					return errors.New(MsgIncorrectPass)
				}
				return nil
			}),
		),
	)
	if err != nil {
		f.user = nil
	}
	return formErrors(err)
}

// User is the account matched by a successful Validate
func (f *LoginForm) User() *User {
	return f.user
}

// SignupForm requests a signup confirmation email
type SignupForm struct {
	Email string `form:"email" json:"email"`
}

func (f *SignupForm) Validate(ctx context.Context, users Users) error {
	return formErrors(validation.ValidateStruct(f,
		validation.Field(&f.Email, emailRules(func(value any) error {
			exists, err := users.ExistsByEmail(ctx, value.(string))
			if err != nil {
				return validation.NewInternalError(err)
			}
			if exists {
				return errors.New(MsgEmailInUse)
			}
			return nil
		})...),
	))
}

// SignupConfirmForm completes a signup. The email comes from the token.
type SignupConfirmForm struct {
	Name            string `form:"name" json:"name"`
	Username        string `form:"username" json:"username"`
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
	Next            string `form:"next" json:"next"`
}

func (f *SignupConfirmForm) Validate(ctx context.Context, users Users) error {
	return formErrors(validation.ValidateStruct(f,
		validation.Field(&f.Name, required, lengthMax(100)),
		validation.Field(&f.Username,
			required,
			lengthBetween(3, 30),
			validation.Match(usernamePattern).Error(MsgLettersAndDigits),
			validation.By(func(value any) error {
				exists, err := users.ExistsByUsername(ctx, value.(string))
				if err != nil {
					return validation.NewInternalError(err)
				}
				if exists {
					return errors.New(MsgLoginInUse)
				}
				return nil
			}),
		),
		validation.Field(&f.Password, required, lengthBetween(6, 16)),
		validation.Field(&f.PasswordConfirm,
			required,
			validation.By(ValidateStringEquals(&f.Password, MsgIncorrectPass)),
		),
	))
}

// RecoverPasswordForm requests a password recovery email
type RecoverPasswordForm struct {
	Email string `form:"email" json:"email"`
}

func (f *RecoverPasswordForm) Validate(ctx context.Context, users Users) error {
	return formErrors(validation.ValidateStruct(f,
		validation.Field(&f.Email, emailRules(func(value any) error {
			exists, err := users.ExistsByEmail(ctx, value.(string))
			if err != nil {
				return validation.NewInternalError(err)
			}
			if !exists {
				return errors.New(MsgEmailNotFound)
			}
			return nil
		})...),
	))
}

// RecoverPasswordConfirmForm sets a new password
type RecoverPasswordConfirmForm struct {
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

func (f *RecoverPasswordConfirmForm) Validate() error {
	return formErrors(validation.ValidateStruct(f,
		validation.Field(&f.Password, required, lengthBetween(6, 16)),
		validation.Field(&f.PasswordConfirm,
			required,
			validation.By(ValidateStringEquals(&f.Password, MsgIncorrectPass)),
		),
	))
}

// formErrors converts ozzo errors into FieldErrors. Rule failures
// caused by a dependency come back as internal errors.
func formErrors(err error) error {
	if err == nil {
		return nil
	}

	var internal validation.InternalError
	if errors.As(err, &internal) {
		return goerrors.Wrap(internal.InternalError(), goerrors.CategoryInternal, "form validation failed")
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		out := FieldErrors{}
		for field, e := range verrs {
			if e != nil {
				out.Add(field, e.Error())
			}
		}
		return out
	}

	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid form")
}
