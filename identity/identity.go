package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned by SignInWithPassword for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailNotConfirmed is returned by SignInWithPassword for an unverified account.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrNoSession is returned when an operation needs an active session and none exists.
	ErrNoSession = errors.New("no active session")
	// ErrUnavailable wraps transport or backend failures.
	ErrUnavailable = errors.New("identity provider unavailable")
	// ErrAccountExists is returned by SignUp for a registered email.
	ErrAccountExists = errors.New("account already exists")
	// ErrWeakPassword is returned by SignUp when the password is rejected by policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrRateLimited is returned by SignInWithPassword after too many failures.
	ErrRateLimited = errors.New("too many sign-in attempts")
	// ErrStorage is returned when the provider can not persist its own session.
	ErrStorage = errors.New("provider storage unavailable")
)

// User is a verified identity.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Clone returns a copy of u, or nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Session is a credential proving an authenticated identity until ExpiresAt.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Clone returns a copy of s, or nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Valid reports whether s carries an access token that has not expired at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}

// EventKind tags a change notification.
type EventKind uint8

const (
	EventSignedIn EventKind = iota + 1
	EventSignedOut
	EventTokenRefreshed
	EventUserUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	case EventUserUpdated:
		return "USER_UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Event is one change notification. Session is the provider's view after
// the change and is nil for EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
	At      time.Time
}

// Subscription delivers events until Unsubscribe is called. After
// Unsubscribe returns, Events is closed and receives nothing further.
type Subscription interface {
	Events() <-chan Event
	Unsubscribe()
}

// Provider is the identity backend consumed by portalauth.
type Provider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	CurrentUser(ctx context.Context) (*User, error)
	Subscribe(buffer int) Subscription
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
}
