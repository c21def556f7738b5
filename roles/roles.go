package roles

import (
	"context"
	"sync"
)

// Lookup resolves administrator membership for a user id.
type Lookup interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, userID string) (bool, error)

func (f LookupFunc) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// Static is an in-memory admin set. The zero value holds no admins.
type Static struct {
	mu     sync.RWMutex
	admins map[string]struct{}
}

func NewStatic(adminIDs ...string) *Static {
	s := &Static{}
	for _, id := range adminIDs {
		s.Grant(id)
	}
	return s
}

func (s *Static) IsAdmin(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[userID]
	return ok, nil
}

func (s *Static) Grant(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admins == nil {
		s.admins = make(map[string]struct{})
	}
	s.admins[userID] = struct{}{}
}

func (s *Static) Revoke(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.admins, userID)
}
