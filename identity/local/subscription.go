package local

import (
	"github.com/golang/glog"

	"github.com/hwlegacy/portalauth/identity"
)

type subscription struct {
	p      *Provider
	events chan identity.Event
	closed bool
}

func (s *subscription) Events() <-chan identity.Event {
	return s.events
}

func (s *subscription) Unsubscribe() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.p.subs, s)
	close(s.events)
}

// Subscribe registers a listener for change notifications. A full buffer
// drops the event for that listener; every event only signals that state
// should be reconciled, so a later one supersedes it.
func (p *Provider) Subscribe(buffer int) identity.Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &subscription{p: p, events: make(chan identity.Event, buffer)}
	p.mu.Lock()
	p.subs[s] = struct{}{}
	p.mu.Unlock()
	return s
}

func (p *Provider) broadcastLocked(kind identity.EventKind, session *identity.Session) {
	for s := range p.subs {
		ev := identity.Event{Kind: kind, Session: session.Clone(), At: p.cfg.Now()}
		select {
		case s.events <- ev:
		default:
			glog.Warningf("local: subscriber buffer full, dropped %s", kind)
		}
	}
}
