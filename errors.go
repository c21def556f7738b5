package portalauth

import "errors"

var (
	// ErrInvalidCredentials is returned by SignIn for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotConfirmed is returned by SignIn for an account whose email is unverified.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrRateLimited is returned by SignIn after too many failed attempts.
	ErrRateLimited = errors.New("too many sign-in attempts")
	// ErrStorageUnavailable is returned when the provider can not persist its session.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNoSession is returned by SignIn when the provider reports success but holds no session.
	ErrNoSession = errors.New("no session after sign in")
	// ErrInitializeFailed is returned by SignIn when the store did not resolve the signed-in user.
	ErrInitializeFailed = errors.New("failed to initialize session")
	// ErrProviderUnavailable wraps transport or backend failures of the identity provider.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrInvalidInput is returned for a malformed email or empty password.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAccountExists is returned by SignUp for an already registered email.
	ErrAccountExists = errors.New("account already exists")
	// ErrWeakPassword is returned by SignUp when the password is rejected by policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrSignOutFailed is returned by SignOut when the provider could not end the session.
	ErrSignOutFailed = errors.New("sign out failed")
	// ErrEngineClosed is returned by Engine operations after Close.
	ErrEngineClosed = errors.New("engine closed")
)
