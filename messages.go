package portalauth

import "errors"

const (
	msgInvalidCredentials = "Invalid email or password"
	msgEmailNotConfirmed  = "Please verify your email address before logging in"
	msgRateLimited        = "Too many login attempts. Please wait a few minutes and try again."
	msgStorage            = "Browser storage issue. Please ensure cookies are enabled and try again in a private/incognito window if the issue persists."
	msgInitialize         = "Failed to initialize session. Please try again."
	msgInvalidInput       = "Please enter a valid email address and password"
	msgAccountExists      = "An account with this email already exists"
	msgWeakPassword       = "Password does not meet the requirements"
	msgSignOut            = "Sign out failed. Please try again."
	msgGeneric            = "An error occurred during login. Please try again."
)

// FailureMessage returns the inline message shown for a SignIn, SignUp or
// SignOut failure, or "" for a nil error.
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return msgInvalidCredentials
	case errors.Is(err, ErrEmailNotConfirmed):
		return msgEmailNotConfirmed
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, ErrStorageUnavailable):
		return msgStorage
	case errors.Is(err, ErrInitializeFailed), errors.Is(err, ErrNoSession):
		return msgInitialize
	case errors.Is(err, ErrInvalidInput):
		return msgInvalidInput
	case errors.Is(err, ErrAccountExists):
		return msgAccountExists
	case errors.Is(err, ErrWeakPassword):
		return msgWeakPassword
	case errors.Is(err, ErrSignOutFailed):
		return msgSignOut
	default:
		return msgGeneric
	}
}

// FailureMessage is the engine-bound form of the package FailureMessage.
func (e *Engine) FailureMessage(err error) string {
	return FailureMessage(err)
}
