package portalauth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hwlegacy/portalauth/identity"
	internalmetrics "github.com/hwlegacy/portalauth/internal/metrics"
	"github.com/hwlegacy/portalauth/roles"
	"github.com/hwlegacy/portalauth/storage"
)

type fakeProvider struct {
	mu       sync.Mutex
	session  *identity.Session
	user     *identity.User
	password string
	subs     map[*fakeSub]struct{}

	sessionErr error
	userErr    error
	signInErr  error
	signUpErr  error
	signOutErr error
	panicUser  bool
	noSession  bool

	gate    chan struct{}
	entered chan struct{}

	sessionCalls atomic.Int32
	userCalls    atomic.Int32
	signOuts     atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[*fakeSub]struct{})}
}

func testUser() *identity.User {
	return &identity.User{ID: "u1", Email: "a@b.com"}
}

func testSession() *identity.Session {
	return &identity.Session{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second)}
}

// signedIn puts the provider in a signed-in state without emitting events.
func (p *fakeProvider) signedIn(user *identity.User) *fakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = user
	p.session = testSession()
	return p
}

func (p *fakeProvider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	p.sessionCalls.Add(1)
	if p.entered != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
	}
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	return p.session.Clone(), nil
}

func (p *fakeProvider) CurrentUser(ctx context.Context) (*identity.User, error) {
	p.userCalls.Add(1)
	if p.panicUser {
		panic("user lookup exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userErr != nil {
		return nil, p.userErr
	}
	return p.user.Clone(), nil
}

func (p *fakeProvider) Subscribe(buffer int) identity.Subscription {
	s := &fakeSub{p: p, ch: make(chan identity.Event, buffer)}
	p.mu.Lock()
	p.subs[s] = struct{}{}
	p.mu.Unlock()
	return s
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	if p.signInErr != nil {
		err := p.signInErr
		p.mu.Unlock()
		return nil, err
	}
	if p.noSession {
		p.mu.Unlock()
		return nil, nil
	}
	if p.user == nil {
		p.user = &identity.User{ID: "u1", Email: email}
	}
	p.session = testSession()
	session := p.session.Clone()
	p.mu.Unlock()

	p.emit(identity.EventSignedIn, session)
	return session, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	if p.signUpErr != nil {
		return nil, p.signUpErr
	}
	return &identity.User{ID: "new-user", Email: email}, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.signOuts.Add(1)
	p.mu.Lock()
	if p.signOutErr != nil {
		err := p.signOutErr
		p.mu.Unlock()
		return err
	}
	had := p.session != nil
	p.session = nil
	p.mu.Unlock()
	if had {
		p.emit(identity.EventSignedOut, nil)
	}
	return nil
}

func (p *fakeProvider) emit(kind identity.EventKind, session *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for s := range p.subs {
		s.ch <- identity.Event{Kind: kind, Session: session.Clone(), At: time.Now()}
	}
}

func (p *fakeProvider) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

type fakeSub struct {
	p    *fakeProvider
	ch   chan identity.Event
	once sync.Once
}

func (s *fakeSub) Events() <-chan identity.Event { return s.ch }

func (s *fakeSub) Unsubscribe() {
	s.once.Do(func() {
		s.p.mu.Lock()
		delete(s.p.subs, s)
		close(s.ch)
		s.p.mu.Unlock()
	})
}

type countingRoles struct {
	calls atomic.Int32
	admin bool
	err   error
}

func (r *countingRoles) IsAdmin(ctx context.Context, userID string) (bool, error) {
	r.calls.Add(1)
	return r.admin, r.err
}

var _ roles.Lookup = (*countingRoles)(nil)

type recordingNavigator struct {
	mu    sync.Mutex
	path  string
	moves []string
}

func newNavigator(path string) *recordingNavigator {
	return &recordingNavigator{path: path}
}

func (n *recordingNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.moves = append(n.moves, path)
	n.path = path
}

func (n *recordingNavigator) SetPath(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

func (n *recordingNavigator) Moves() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.moves...)
}

type failingBackend struct{}

func (failingBackend) GetItem(string) (string, bool, error) { return "", false, errors.New("denied") }
func (failingBackend) SetItem(string, string) error         { return errors.New("denied") }
func (failingBackend) RemoveItem(string) error              { return errors.New("denied") }

func newTestStore(t *testing.T, cfg Config, p identity.Provider, lookup roles.Lookup, backend storage.Backend) *Store {
	t.Helper()
	var guarded *storage.Guarded
	if backend != nil {
		guarded = storage.Guard(backend)
	}
	return newStore(cfg, p, lookup, guarded, telemetry{
		metrics: internalmetrics.New(internalmetrics.Config{Enabled: true, EnableLatency: true}),
	})
}

func assertInvariants(t *testing.T, st State) {
	t.Helper()
	if st.IsAdmin && st.User == nil {
		t.Fatalf("invariant violated: admin without user: %+v", st)
	}
	if st.Session != nil && st.User == nil {
		t.Fatalf("invariant violated: session without user: %+v", st)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
