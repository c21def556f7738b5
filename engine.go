package portalauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/hwlegacy/portalauth/identity"
	internalaudit "github.com/hwlegacy/portalauth/internal/audit"
	internalmetrics "github.com/hwlegacy/portalauth/internal/metrics"
)

// Engine wires the session store, the event coordinator and the identity
// provider together. Build one with New().Build().
type Engine struct {
	config      Config
	provider    identity.Provider
	store       *Store
	coordinator *Coordinator
	audit       *internalaudit.Dispatcher
	metrics     *internalmetrics.Metrics
	tel         telemetry

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
}

// Store returns the engine's session store.
func (e *Engine) Store() *Store {
	return e.store
}

// Coordinator returns the engine's event coordinator.
func (e *Engine) Coordinator() *Coordinator {
	return e.coordinator
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Start describes the start operation and its observable behavior.
//
// Start subscribes the coordinator to provider events and runs the first
// initialization cycle, waiting for it while ctx allows. Calling Start on a
// started engine only waits for initialization.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.unsubscribe == nil {
		e.unsubscribe = e.coordinator.Subscribe(context.WithoutCancel(ctx))
	}
	e.mu.Unlock()

	e.store.Initialize(ctx)
	e.coordinator.RedirectAfterAuth()
	return nil
}

// Close describes the close operation and its observable behavior.
//
// Close detaches the coordinator and drains the audit dispatcher. It is
// safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	alreadyClosed := e.closed
	e.closed = true
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if !alreadyClosed && e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SignIn describes the signin operation and its observable behavior.
//
// SignIn clears any existing provider session (best effort), signs in with
// email and password, verifies that the provider now holds a session and
// reconciles the store with a cycle that starts after the sign-in, so the
// caller sees the new user when SignIn returns. It returns a sentinel error (ErrInvalidCredentials,
// ErrEmailNotConfirmed, ErrStorageUnavailable, ErrNoSession,
// ErrInitializeFailed, ErrProviderUnavailable, ErrInvalidInput) usable with
// FailureMessage.
func (e *Engine) SignIn(ctx context.Context, email, password string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	email = strings.TrimSpace(email)
	err := e.signIn(ctx, email, password)
	if err != nil {
		e.tel.inc(MetricSignInFailure)
		glog.V(1).Infof("portalauth: sign in failed for %s: %v", email, err)
	} else {
		e.tel.inc(MetricSignInSuccess)
	}
	var userID string
	if st := e.store.State(); st.User != nil && err == nil {
		userID = st.User.ID
	}
	e.tel.emit(ctx, auditEventSignIn, userID, email, err, nil)
	return err
}

func (e *Engine) signIn(ctx context.Context, email, password string) error {
	if err := validateCredentials(email, password); err != nil {
		return err
	}

	if err := e.provider.SignOut(ctx); err != nil {
		glog.Warningf("portalauth: clearing existing session before sign in: %v", err)
	} else {
		e.store.Reset()
	}

	session, err := e.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return classifySignInError(err)
	}
	if session == nil {
		return ErrNoSession
	}

	current, err := e.provider.CurrentSession(ctx)
	if err != nil {
		return classifySignInError(err)
	}
	if current == nil {
		return ErrNoSession
	}

	e.store.Reconcile(ctx)
	st := e.store.State()
	if !st.Initialized || st.User == nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInitializeFailed, ctx.Err())
		}
		return ErrInitializeFailed
	}
	e.coordinator.RedirectAfterAuth()
	return nil
}

// SignUp describes the signup operation and its observable behavior.
//
// SignUp registers an account with the provider. It does not sign in.
func (e *Engine) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	email = strings.TrimSpace(email)

	user, err := e.signUp(ctx, email, password)
	var userID string
	if err != nil {
		e.tel.inc(MetricSignUpFailure)
	} else {
		e.tel.inc(MetricSignUpSuccess)
		userID = user.ID
	}
	e.tel.emit(ctx, auditEventSignUp, userID, email, err, nil)
	return user, err
}

func (e *Engine) signUp(ctx context.Context, email, password string) (*identity.User, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	user, err := e.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, classifySignUpError(err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: provider returned no user", ErrProviderUnavailable)
	}
	return user, nil
}

// SignOut describes the signout operation and its observable behavior.
//
// SignOut ends the provider session, resets the store (removing the
// persisted copy) and re-arms the post-authentication redirect. On provider
// failure the store is left untouched and ErrSignOutFailed is returned.
func (e *Engine) SignOut(ctx context.Context) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	var userID string
	if st := e.store.State(); st.User != nil {
		userID = st.User.ID
	}

	if err := e.provider.SignOut(ctx); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrSignOutFailed, err)
		e.tel.inc(MetricSignOutFailure)
		e.tel.emit(ctx, auditEventSignOut, userID, "", wrapped, nil)
		glog.Warningf("portalauth: sign out: %v", err)
		return wrapped
	}

	e.store.Reset()
	e.coordinator.Rearm()
	e.tel.inc(MetricSignOut)
	e.tel.emit(ctx, auditEventSignOut, userID, "", nil, nil)
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return nil
}

func classifySignInError(err error) error {
	switch {
	case errors.Is(err, identity.ErrRateLimited):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case errors.Is(err, identity.ErrInvalidCredentials):
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		return fmt.Errorf("%w: %v", ErrEmailNotConfirmed, err)
	case errors.Is(err, identity.ErrStorage):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	case errors.Is(err, identity.ErrNoSession):
		return fmt.Errorf("%w: %v", ErrNoSession, err)
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}

func classifySignUpError(err error) error {
	switch {
	case errors.Is(err, identity.ErrAccountExists):
		return fmt.Errorf("%w: %v", ErrAccountExists, err)
	case errors.Is(err, identity.ErrWeakPassword):
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	case errors.Is(err, identity.ErrStorage):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}
