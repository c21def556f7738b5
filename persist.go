package portalauth

import (
	"encoding/json"

	"github.com/golang/glog"

	"github.com/hwlegacy/portalauth/identity"
)

const persistVersion = 1

type persistedEnvelope struct {
	Version int            `json:"version"`
	State   persistedState `json:"state"`
}

type persistedState struct {
	User    *identity.User    `json:"user"`
	Session *identity.Session `json:"session"`
	IsAdmin bool              `json:"isAdmin"`
}

func (s *Store) persistenceEnabled() bool {
	return s.cfg.Persistence.Enabled && s.storage.Available()
}

// encodeLocked renders the durable fields. An empty state is removed rather
// than written.
func (s *Store) encodeLocked() (payload string, remove bool) {
	if !s.persistenceEnabled() {
		return "", false
	}
	if s.state.user == nil && s.state.session == nil && !s.state.isAdmin {
		return "", true
	}
	raw, err := json.Marshal(persistedEnvelope{
		Version: persistVersion,
		State: persistedState{
			User:    s.state.user,
			Session: s.state.session,
			IsAdmin: s.state.isAdmin,
		},
	})
	if err != nil {
		glog.Warningf("portalauth: encode persisted state: %v", err)
		return "", false
	}
	return string(raw), false
}

// persist writes generation gen unless a newer generation already landed.
func (s *Store) persist(gen uint64, payload string, remove bool) {
	if !s.persistenceEnabled() || (payload == "" && !remove) {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if gen <= s.persistedGen {
		return
	}
	s.persistedGen = gen
	if remove {
		s.storage.Remove(s.cfg.Persistence.Key)
	} else {
		s.storage.Set(s.cfg.Persistence.Key, payload)
	}
	s.tel.inc(MetricPersistWrite)
}

// rehydrate loads the persisted user, session and admin flag. The result is
// normalised so a session or admin flag without a user is dropped.
// Unreadable payloads, and payloads that normalise to nothing, are removed.
func (s *Store) rehydrate() {
	if !s.persistenceEnabled() {
		return
	}
	raw, ok := s.storage.Get(s.cfg.Persistence.Key)
	if !ok {
		return
	}

	var env persistedEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Version != persistVersion {
		glog.Warningf("portalauth: discarding persisted state (version=%d): %v", env.Version, err)
		s.storage.Remove(s.cfg.Persistence.Key)
		return
	}

	st := storeState{
		user:    env.State.User,
		session: env.State.Session,
		isAdmin: env.State.IsAdmin,
	}
	if st.user == nil || st.user.ID == "" {
		glog.Warning("portalauth: discarding persisted state without a user")
		s.storage.Remove(s.cfg.Persistence.Key)
		return
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.tel.inc(MetricRehydrate)
}
