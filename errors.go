package accounts

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidSignature    = "INVALID_SIGNATURE"
	TextCodeTokenExpired        = "EXPIRED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeLoginNotFound       = "NOT_FOUND"
	TextCodeWrongPassword       = "WRONG_PASSWORD"
	TextCodeEmailInUse          = "EMAIL_IN_USE"
	TextCodeEmailNotFound       = "EMAIL_NOT_FOUND"
	TextCodeUsernameInUse       = "USERNAME_IN_USE"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeUnknownHashMethod   = "UNKNOWN_HASH_METHOD"
	TextCodeEmailDispatchFailed = "EMAIL_DISPATCH_FAILED"
	TextCodeValidation          = "VALIDATION_FAILED"
)

// ErrTokenInvalid is returned when a token fails its integrity check
var ErrTokenInvalid = goerrors.New("invalid token signature", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeInvalidSignature)

// ErrTokenExpired is returned when a token is older than its max age
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeTokenExpired)

// ErrUserNotFound is returned by stores on lookup misses
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeUserNotFound)

// ErrLoginNotFound no user with the given username
var ErrLoginNotFound = goerrors.New("login not found", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeLoginNotFound)

// ErrIncorrectPassword password did not match the stored hash
var ErrIncorrectPassword = goerrors.New("incorrect password", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeWrongPassword)

// ErrEmailInUse an account already owns the email
var ErrEmailInUse = goerrors.New("e-mail in use", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeEmailInUse)

// ErrEmailNotFound no account owns the email
var ErrEmailNotFound = goerrors.New("e-mail not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeEmailNotFound)

// ErrUsernameInUse an account already owns the username
var ErrUsernameInUse = goerrors.New("login in use", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeUsernameInUse)

// ErrNoEmptyString we do not hash empty passwords
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeEmptyPassword)

// ErrUnknownHashMethod the configured hash method is not supported
var ErrUnknownHashMethod = goerrors.New("unknown password hash method", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeUnknownHashMethod)

// ErrEmailDispatch the mailer failed, the request can not succeed
var ErrEmailDispatch = goerrors.New("failed to dispatch email", goerrors.CategoryInternal).
	WithCode(goerrors.CodeInternal).
	WithTextCode(TextCodeEmailDispatchFailed)

// IsTokenError reports whether err is one of the token errors
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired)
}
