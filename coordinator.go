package portalauth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/hwlegacy/portalauth/identity"
)

// Coordinator reacts to identity provider change notifications by
// reconciling the Store, and performs the one-shot redirect away from the
// sign-in pages once a user is resolved.
type Coordinator struct {
	store    *Store
	provider identity.Provider
	nav      Navigator
	cfg      Config
	tel      telemetry

	armed atomic.Bool
}

func newCoordinator(cfg Config, store *Store, provider identity.Provider, nav Navigator, tel telemetry) *Coordinator {
	c := &Coordinator{
		store:    store,
		provider: provider,
		nav:      nav,
		cfg:      cfg,
		tel:      tel,
	}
	c.armed.Store(true)
	return c
}

// Subscribe starts consuming provider events on a dedicated goroutine. Each
// event triggers Store.Initialize. SignedOut triggers Store.Reconcile
// instead, and re-arms the redirect only when the provider really has no
// session left; a SignedOut overtaken by a new sign-in changes nothing. The
// returned function detaches from the provider and blocks until the
// goroutine has exited. It is safe to call more than once.
func (c *Coordinator) Subscribe(ctx context.Context) (unsubscribe func()) {
	sub := c.provider.Subscribe(c.cfg.Events.Buffer)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				c.handle(runCtx, ev)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			sub.Unsubscribe()
			<-done
		})
	}
}

func (c *Coordinator) handle(ctx context.Context, ev identity.Event) {
	if ctx.Err() != nil {
		return
	}
	c.tel.inc(MetricAuthEvent)
	c.tel.emit(ctx, auditEventProviderChange, "", "", nil, map[string]string{"kind": ev.Kind.String()})
	glog.V(2).Infof("portalauth: provider event %s", ev.Kind)

	signedOut := ev.Kind == identity.EventSignedOut
	if signedOut {
		c.store.Reconcile(ctx)
	} else {
		c.store.Initialize(ctx)
	}
	if ctx.Err() != nil {
		return
	}
	if st := c.store.State(); signedOut && st.Initialized && st.User == nil {
		c.Rearm()
	}
	c.RedirectAfterAuth()
}

// Rearm allows RedirectAfterAuth to fire again.
func (c *Coordinator) Rearm() {
	c.armed.Store(true)
}

// RedirectAfterAuth navigates a resolved user away from the sign-in pages:
// to the admin area for administrators, to the investor area otherwise. It
// fires at most once until the next sign-out and reports whether it did.
func (c *Coordinator) RedirectAfterAuth() bool {
	if c.nav == nil {
		return false
	}
	st := c.store.State()
	if !st.Initialized || st.User == nil {
		return false
	}
	if !c.onAuthPath(c.nav.CurrentPath()) {
		return false
	}
	if !c.armed.CompareAndSwap(true, false) {
		return false
	}

	target := c.cfg.Redirect.InvestorPath
	if st.IsAdmin {
		target = c.cfg.Redirect.AdminPath
	}
	c.nav.Navigate(target)
	c.tel.inc(MetricRedirect)
	c.tel.emit(context.Background(), auditEventRedirect, st.User.ID, st.User.Email, nil, map[string]string{"target": target})
	return true
}

func (c *Coordinator) onAuthPath(path string) bool {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, p := range c.cfg.Redirect.AuthPaths {
		if p == path {
			return true
		}
	}
	return false
}

// Phase reports the store's current authentication phase.
func (c *Coordinator) Phase() Phase {
	return c.store.State().Phase()
}
