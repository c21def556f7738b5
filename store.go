package portalauth

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	"github.com/hwlegacy/portalauth/identity"
	"github.com/hwlegacy/portalauth/roles"
	"github.com/hwlegacy/portalauth/storage"
)

const initializeKey = "initialize"

type flight uint8

const (
	flightKeep flight = iota
	flightStart
	flightEnd
)

type storeState struct {
	user        *identity.User
	session     *identity.Session
	isAdmin     bool
	initialized bool
}

type cycleOutcome uint8

const (
	outcomeAnonymous cycleOutcome = iota
	outcomeUserMissing
	outcomeAuthenticated
	outcomeAdmin
	outcomeRecovered
)

func (o cycleOutcome) String() string {
	switch o {
	case outcomeAnonymous:
		return "anonymous"
	case outcomeUserMissing:
		return "user_missing"
	case outcomeAuthenticated:
		return "authenticated"
	case outcomeAdmin:
		return "admin"
	default:
		return "recovered"
	}
}

// Store holds the client-side authentication state and reconciles it with
// the identity provider. All methods are safe for concurrent use.
//
// The store keeps two invariants at every publish: IsAdmin implies a user,
// and a session implies a user.
type Store struct {
	provider identity.Provider
	roles    roles.Lookup
	storage  *storage.Guarded
	cfg      Config
	tel      telemetry

	group singleflight.Group

	mu       sync.RWMutex
	state    storeState
	inFlight bool
	cycles   uint64
	gen      uint64

	persistMu    sync.Mutex
	persistedGen uint64

	listenersMu sync.Mutex
	listeners   map[uint64]func(State)
	nextID      uint64
	pending     []State
	draining    bool
}

func newStore(cfg Config, provider identity.Provider, lookup roles.Lookup, guarded *storage.Guarded, tel telemetry) *Store {
	s := &Store{
		provider:  provider,
		roles:     lookup,
		storage:   guarded,
		cfg:       cfg,
		tel:       tel,
		listeners: make(map[uint64]func(State)),
	}
	s.rehydrate()
	return s
}

// State returns a snapshot copy.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	return State{
		User:         s.state.user.Clone(),
		Session:      s.state.session.Clone(),
		IsAdmin:      s.state.isAdmin,
		Initialized:  s.state.initialized,
		Initializing: s.inFlight,
	}
}

// Initialize reconciles the store with the provider. It returns immediately
// when the store already holds an initialized session and user, joins the
// cycle in flight if there is one, and otherwise starts a new cycle.
//
// The cycle does not observe ctx cancellation; ctx only bounds how long the
// caller waits. Initialize never reports provider or role-lookup errors,
// they are folded into the published state.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.RLock()
	done := s.state.initialized && s.state.session != nil && s.state.user != nil
	s.mu.RUnlock()

	if done {
		s.tel.inc(MetricInitializeShortCircuit)
		return
	}
	s.await(ctx, false)
}

// Reconcile is Initialize without the short-circuit: it waits for a cycle
// that started after the call, so the published state reflects the
// provider as of now. A cycle already in flight is waited out first.
func (s *Store) Reconcile(ctx context.Context) {
	s.await(ctx, true)
}

func (s *Store) await(ctx context.Context, fresh bool) {
	s.mu.RLock()
	joining := s.inFlight
	after := s.cycles
	s.mu.RUnlock()

	if joining {
		s.tel.inc(MetricInitializeCoalesced)
	}

	detached := context.WithoutCancel(ctx)
	for {
		ch := s.group.DoChan(initializeKey, func() (any, error) {
			return s.runCycle(detached), nil
		})
		select {
		case res := <-ch:
			if seq, _ := res.Val.(uint64); !fresh || seq > after {
				return
			}
		case <-ctx.Done():
			glog.V(2).Infof("portalauth: caller stopped waiting for initialize: %v", ctx.Err())
			return
		}
	}
}

// runCycle returns the cycle's sequence number.
func (s *Store) runCycle(parent context.Context) uint64 {
	start := time.Now()
	s.tel.inc(MetricInitializeCycle)

	s.publish(func(st *storeState) {
		st.initialized = false
	}, flightStart)
	s.mu.RLock()
	seq := s.cycles
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(parent, s.cfg.Initialize.Timeout)
	defer cancel()

	next, outcome := s.resolve(ctx)

	s.publish(func(st *storeState) {
		*st = next
		st.initialized = true
	}, flightEnd)

	switch outcome {
	case outcomeAnonymous:
		s.tel.inc(MetricInitializeAnonymous)
	case outcomeUserMissing:
		s.tel.inc(MetricInitializeUserMissing)
	case outcomeAuthenticated:
		s.tel.inc(MetricInitializeAuthenticated)
	case outcomeAdmin:
		s.tel.inc(MetricInitializeAdmin)
	case outcomeRecovered:
		s.tel.inc(MetricInitializeRecovered)
	}
	s.tel.observe(MetricInitializeLatency, time.Since(start))

	var userID string
	if next.user != nil {
		userID = next.user.ID
	}
	s.tel.emit(parent, auditEventInitialize, userID, "", nil, map[string]string{"outcome": outcome.String()})
	glog.V(2).Infof("portalauth: initialize finished outcome=%s in %s", outcome, time.Since(start))
	return seq
}

// resolve runs session, user and role lookups in that order. Any failure
// before the role lookup yields the cleared state.
func (s *Store) resolve(ctx context.Context) (next storeState, outcome cycleOutcome) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("portalauth: initialize recovered from panic: %v", r)
			next, outcome = storeState{}, outcomeRecovered
		}
	}()

	if s.provider == nil {
		return storeState{}, outcomeAnonymous
	}

	session, err := s.provider.CurrentSession(ctx)
	if err != nil {
		glog.Warningf("portalauth: get session failed, treating as signed out: %v", err)
		return storeState{}, outcomeAnonymous
	}
	if session == nil {
		return storeState{}, outcomeAnonymous
	}

	user, err := s.provider.CurrentUser(ctx)
	if err != nil {
		glog.Warningf("portalauth: get user failed, treating as signed out: %v", err)
		return storeState{}, outcomeUserMissing
	}
	if user == nil {
		return storeState{}, outcomeUserMissing
	}

	next = storeState{user: user.Clone(), session: session.Clone()}
	if s.roles == nil {
		return next, outcomeAuthenticated
	}

	isAdmin, err := s.roles.IsAdmin(ctx, user.ID)
	if err != nil {
		s.tel.inc(MetricRoleLookupFailure)
		s.tel.emit(ctx, auditEventRoleLookup, user.ID, user.Email, err, map[string]string{
			"policy": s.cfg.Initialize.RoleFailurePolicy.String(),
		})
		if s.cfg.Initialize.RoleFailurePolicy == RoleFailureClear {
			glog.Warningf("portalauth: role lookup for %s failed, clearing state: %v", user.ID, err)
			return storeState{}, outcomeAnonymous
		}
		glog.Warningf("portalauth: role lookup for %s failed, continuing as non-admin: %v", user.ID, err)
		return next, outcomeAuthenticated
	}
	if isAdmin {
		next.isAdmin = true
		return next, outcomeAdmin
	}
	return next, outcomeAuthenticated
}

// SetUser replaces the user. A nil user also clears the session and the
// admin flag.
func (s *Store) SetUser(user *identity.User) {
	s.publish(func(st *storeState) {
		st.user = user.Clone()
		if user == nil {
			st.session = nil
			st.isAdmin = false
		}
	}, flightKeep)
}

// SetSession replaces the session. A non-nil session is ignored while no
// user is set.
func (s *Store) SetSession(session *identity.Session) {
	s.publish(func(st *storeState) {
		if session != nil && st.user == nil {
			glog.Warning("portalauth: ignoring session without a user")
			return
		}
		st.session = session.Clone()
	}, flightKeep)
}

// SetIsAdmin replaces the admin flag. true is ignored while no user is set.
func (s *Store) SetIsAdmin(isAdmin bool) {
	s.publish(func(st *storeState) {
		if isAdmin && st.user == nil {
			glog.Warning("portalauth: ignoring admin flag without a user")
			return
		}
		st.isAdmin = isAdmin
	}, flightKeep)
}

func (s *Store) SetInitialized(initialized bool) {
	s.publish(func(st *storeState) {
		st.initialized = initialized
	}, flightKeep)
}

// Reset clears the state to signed-out and initialized, and removes the
// persisted copy.
func (s *Store) Reset() {
	s.publish(func(st *storeState) {
		*st = storeState{initialized: true}
	}, flightKeep)
}

// Subscribe registers fn to receive every published snapshot in publish
// order. fn runs outside the store lock and may call store methods,
// Initialize included: snapshots published by an initialization cycle are
// delivered from a separate goroutine, so the cycle never waits on fn.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// publish applies mutate under the state lock, persists the result when the
// durable fields changed and notifies listeners.
func (s *Store) publish(mutate func(*storeState), f flight) {
	s.mu.Lock()
	before := s.state
	mutate(&s.state)
	switch f {
	case flightStart:
		s.inFlight = true
		s.cycles++
	case flightEnd:
		s.inFlight = false
	}
	durableChanged := before.user != s.state.user || before.session != s.state.session || before.isAdmin != s.state.isAdmin
	var (
		payload string
		gen     uint64
		remove  bool
	)
	if durableChanged {
		s.gen++
		gen = s.gen
		payload, remove = s.encodeLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if durableChanged {
		s.persist(gen, payload, remove)
	}
	s.notify(snap, f != flightKeep)
}

// notify queues snap for delivery. The goroutine that finds the queue idle
// drains it, unless detach is set, in which case a new goroutine does.
func (s *Store) notify(snap State, detach bool) {
	s.listenersMu.Lock()
	s.pending = append(s.pending, snap)
	if s.draining {
		s.listenersMu.Unlock()
		return
	}
	s.draining = true
	s.listenersMu.Unlock()

	if detach {
		go s.drain()
		return
	}
	s.drain()
}

func (s *Store) drain() {
	for {
		s.listenersMu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.listenersMu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		fns := make([]func(State), 0, len(s.listeners))
		for _, fn := range s.listeners {
			fns = append(fns, fn)
		}
		s.listenersMu.Unlock()

		for _, fn := range fns {
			s.callListener(fn, next)
		}
	}
}

func (s *Store) callListener(fn func(State), st State) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("portalauth: store listener panicked: %v", r)
		}
	}()
	fn(st)
}

