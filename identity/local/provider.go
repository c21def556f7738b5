package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hwlegacy/portalauth/identity"
	"github.com/hwlegacy/portalauth/internal/throttle"
	"github.com/hwlegacy/portalauth/jwt"
	"github.com/hwlegacy/portalauth/password"
	"github.com/hwlegacy/portalauth/storage"
)

// DefaultStorageKey is the key under which the provider persists its
// session. Accounts are stored under DefaultStorageKey + "-accounts".
const DefaultStorageKey = "hw-legacy-auth"

// Config configures a Provider. Tokens and Passwords are required.
type Config struct {
	Tokens                *jwt.Manager
	Passwords             *password.Hasher
	RefreshTTL            time.Duration
	RequireConfirmedEmail bool
	AutoConfirm           bool
	Storage               *storage.Guarded
	// Throttle, when set, limits failed sign-ins per email.
	Throttle              Throttle
	StorageKey            string
	Now                   func() time.Time
}

type account struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"password_hash"`
	EmailConfirmed bool      `json:"email_confirmed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *account) user() *identity.User {
	return &identity.User{
		ID:             a.ID,
		Email:          a.Email,
		EmailConfirmed: a.EmailConfirmed,
		UpdatedAt:      a.UpdatedAt,
	}
}

type activeSession struct {
	UserID           string            `json:"user_id"`
	SessionID        string            `json:"sid"`
	Session          *identity.Session `json:"session"`
	RefreshExpiresAt time.Time         `json:"refresh_expires_at"`
}

// Throttle counts failed sign-ins. internal/throttle provides Redis and
// in-memory implementations.
type Throttle interface {
	Check(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Provider implements identity.Provider. It holds at most one active
// session, like a browser client.
type Provider struct {
	cfg Config

	mu       sync.Mutex
	accounts map[string]*account // keyed by normalized email
	active   *activeSession
	subs     map[*subscription]struct{}
}

var _ identity.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("local provider requires a token manager")
	}
	if cfg.Passwords == nil {
		return nil, errors.New("local provider requires a password hasher")
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.RefreshTTL < cfg.Tokens.AccessTTL() {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := &Provider{
		cfg:      cfg,
		accounts: make(map[string]*account),
		subs:     make(map[*subscription]struct{}),
	}
	p.load()
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CurrentSession returns the active session, rotating its access token when
// it has expired. It returns nil without error when nobody is signed in.
func (p *Provider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return nil, nil
	}

	claims, err := p.cfg.Tokens.ParseAccess(p.active.Session.AccessToken)
	switch {
	case err == nil && claims.SID == p.active.SessionID:
		return p.active.Session.Clone(), nil
	case err != nil && jwt.IsExpired(err):
		return p.refreshLocked()
	default:
		glog.Warningf("local: dropping session with unverifiable access token: %v", err)
		p.endSessionLocked()
		return nil, nil
	}
}

func (p *Provider) refreshLocked() (*identity.Session, error) {
	now := p.cfg.Now()
	if !now.Before(p.active.RefreshExpiresAt) {
		glog.V(1).Infof("local: refresh token expired for user %s", p.active.UserID)
		p.endSessionLocked()
		return nil, nil
	}

	acct := p.accountByIDLocked(p.active.UserID)
	if acct == nil {
		p.endSessionLocked()
		return nil, nil
	}

	session, err := p.issueLocked(acct, p.active.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	p.active.Session = session
	p.persistSessionLocked()
	p.broadcastLocked(identity.EventTokenRefreshed, session)
	return session.Clone(), nil
}

// CurrentUser validates the active access token and returns its account.
func (p *Provider) CurrentUser(ctx context.Context) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return nil, identity.ErrNoSession
	}
	claims, err := p.cfg.Tokens.ParseAccess(p.active.Session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrNoSession, err)
	}
	acct := p.accountByIDLocked(claims.UID)
	if acct == nil {
		return nil, nil
	}
	return acct.user(), nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, pass string) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	key := normalizeEmail(email)
	if err := p.checkThrottle(ctx, key); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct := p.accounts[key]
	var stored string
	if acct != nil {
		stored = acct.PasswordHash
	}
	p.mu.Unlock()
	if acct == nil {
		return nil, p.failThrottle(ctx, key)
	}

	// Verify outside the lock, argon2 is slow.
	ok, err := p.cfg.Passwords.Verify(pass, stored)
	if err != nil {
		glog.Warningf("local: stored hash for %s unreadable: %v", acct.ID, err)
		return nil, p.failThrottle(ctx, key)
	}
	if !ok {
		return nil, p.failThrottle(ctx, key)
	}
	p.resetThrottle(ctx, key)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.RequireConfirmedEmail && !acct.EmailConfirmed {
		return nil, identity.ErrEmailNotConfirmed
	}
	if needs, _ := p.cfg.Passwords.NeedsRehash(acct.PasswordHash); needs {
		if upgraded, err := p.cfg.Passwords.Hash(pass); err == nil {
			acct.PasswordHash = upgraded
			p.persistAccountsLocked()
		}
	}

	sid := uuid.NewString()
	session, err := p.issueLocked(acct, sid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	p.active = &activeSession{
		UserID:           acct.ID,
		SessionID:        sid,
		Session:          session,
		RefreshExpiresAt: p.cfg.Now().Add(p.cfg.RefreshTTL),
	}
	p.persistSessionLocked()
	p.broadcastLocked(identity.EventSignedIn, session)
	return session.Clone(), nil
}

// checkThrottle refuses a sign-in for an exhausted budget. Throttle backend
// failures are logged and let the attempt through.
func (p *Provider) checkThrottle(ctx context.Context, key string) error {
	if p.cfg.Throttle == nil {
		return nil
	}
	err := p.cfg.Throttle.Check(ctx, key)
	if errors.Is(err, throttle.ErrRateLimited) {
		return identity.ErrRateLimited
	}
	if err != nil {
		glog.Warningf("local: sign-in throttle check failed: %v", err)
	}
	return nil
}

// failThrottle records a failed sign-in and returns the error to report.
func (p *Provider) failThrottle(ctx context.Context, key string) error {
	if p.cfg.Throttle == nil {
		return identity.ErrInvalidCredentials
	}
	err := p.cfg.Throttle.Fail(ctx, key)
	if errors.Is(err, throttle.ErrRateLimited) {
		return fmt.Errorf("%w: %w", identity.ErrInvalidCredentials, identity.ErrRateLimited)
	}
	if err != nil {
		glog.Warningf("local: sign-in throttle record failed: %v", err)
	}
	return identity.ErrInvalidCredentials
}

func (p *Provider) resetThrottle(ctx context.Context, key string) {
	if p.cfg.Throttle == nil {
		return
	}
	if err := p.cfg.Throttle.Reset(ctx, key); err != nil {
		glog.Warningf("local: sign-in throttle reset failed: %v", err)
	}
}

// SignUp registers an account. It does not sign the account in.
func (p *Provider) SignUp(ctx context.Context, email, pass string) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	key := normalizeEmail(email)

	p.mu.Lock()
	_, exists := p.accounts[key]
	p.mu.Unlock()
	if exists {
		return nil, identity.ErrAccountExists
	}

	hash, err := p.cfg.Passwords.Hash(pass)
	if errors.Is(err, password.ErrTooShort) {
		return nil, fmt.Errorf("%w: minimum length is %d", identity.ErrWeakPassword, p.cfg.Passwords.MinLength())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[key]; exists {
		return nil, identity.ErrAccountExists
	}
	acct := &account{
		ID:             uuid.NewString(),
		Email:          key,
		PasswordHash:   hash,
		EmailConfirmed: p.cfg.AutoConfirm,
		UpdatedAt:      p.cfg.Now().UTC(),
	}
	p.accounts[key] = acct
	p.persistAccountsLocked()
	return acct.user(), nil
}

// SignOut ends the active session. Signing out with no session is not an
// error and emits nothing.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	p.endSessionLocked()
	return nil
}

// ConfirmEmail marks the account for email as confirmed.
func (p *Provider) ConfirmEmail(email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct := p.accounts[normalizeEmail(email)]
	if acct == nil {
		return identity.ErrInvalidCredentials
	}
	if acct.EmailConfirmed {
		return nil
	}
	acct.EmailConfirmed = true
	acct.UpdatedAt = p.cfg.Now().UTC()
	p.persistAccountsLocked()
	if p.active != nil && p.active.UserID == acct.ID {
		p.broadcastLocked(identity.EventUserUpdated, p.active.Session)
	}
	return nil
}

// UpdateEmail changes the signed-in account's email and emits
// identity.EventUserUpdated.
func (p *Provider) UpdateEmail(ctx context.Context, email string) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
	}
	key := normalizeEmail(email)
	if !strings.Contains(key, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return nil, identity.ErrNoSession
	}
	acct := p.accountByIDLocked(p.active.UserID)
	if acct == nil {
		return nil, identity.ErrNoSession
	}
	if other, ok := p.accounts[key]; ok && other != acct {
		return nil, identity.ErrAccountExists
	}

	delete(p.accounts, acct.Email)
	acct.Email = key
	acct.UpdatedAt = p.cfg.Now().UTC()
	p.accounts[key] = acct
	p.persistAccountsLocked()
	p.broadcastLocked(identity.EventUserUpdated, p.active.Session)
	return acct.user(), nil
}

func (p *Provider) issueLocked(acct *account, sid string) (*identity.Session, error) {
	token, expiresAt, err := p.cfg.Tokens.CreateAccess(acct.ID, acct.Email, sid)
	if err != nil {
		return nil, err
	}
	return &identity.Session{
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    expiresAt,
	}, nil
}

func (p *Provider) endSessionLocked() {
	p.active = nil
	p.persistSessionLocked()
	p.broadcastLocked(identity.EventSignedOut, nil)
}

func (p *Provider) accountByIDLocked(id string) *account {
	for _, acct := range p.accounts {
		if acct.ID == id {
			return acct
		}
	}
	return nil
}

func (p *Provider) accountsKey() string {
	return p.cfg.StorageKey + "-accounts"
}

func (p *Provider) load() {
	if !p.cfg.Storage.Available() {
		return
	}
	if raw, ok := p.cfg.Storage.Get(p.accountsKey()); ok {
		var list []*account
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			glog.Warningf("local: discarding unreadable accounts: %v", err)
		}
		for _, acct := range list {
			if acct != nil && acct.ID != "" {
				p.accounts[normalizeEmail(acct.Email)] = acct
			}
		}
	}
	if raw, ok := p.cfg.Storage.Get(p.cfg.StorageKey); ok {
		var active activeSession
		if err := json.Unmarshal([]byte(raw), &active); err != nil || active.Session == nil {
			glog.Warningf("local: discarding unreadable session: %v", err)
			p.cfg.Storage.Remove(p.cfg.StorageKey)
			return
		}
		p.active = &active
	}
}

func (p *Provider) persistAccountsLocked() {
	list := make([]*account, 0, len(p.accounts))
	for _, acct := range p.accounts {
		list = append(list, acct)
	}
	raw, err := json.Marshal(list)
	if err != nil {
		glog.Warningf("local: encode accounts: %v", err)
		return
	}
	p.cfg.Storage.Set(p.accountsKey(), string(raw))
}

func (p *Provider) persistSessionLocked() {
	if p.active == nil {
		p.cfg.Storage.Remove(p.cfg.StorageKey)
		return
	}
	raw, err := json.Marshal(p.active)
	if err != nil {
		glog.Warningf("local: encode session: %v", err)
		return
	}
	p.cfg.Storage.Set(p.cfg.StorageKey, string(raw))
}
