package throttle

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	expires time.Time
}

// Memory keeps counters in process. The zero value is not usable; call
// NewMemory.
type Memory struct {
	mu      sync.Mutex
	config  Config
	now     func() time.Time
	windows map[string]window
}

// NewMemory validates cfg and returns an in-process throttle. A nil now
// uses time.Now.
func NewMemory(cfg Config, now func() time.Time) (*Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{config: cfg, now: now, windows: make(map[string]window)}, nil
}

func (m *Memory) Check(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveLocked(key).count >= m.config.MaxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (m *Memory) Fail(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.liveLocked(key)
	if w.count == 0 {
		w.expires = m.now().Add(m.config.Window)
	}
	w.count++
	m.windows[key] = w
	if w.count >= m.config.MaxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.windows, key)
	m.mu.Unlock()
	return nil
}

// liveLocked returns the window for key, dropping it when expired.
func (m *Memory) liveLocked(key string) window {
	w, ok := m.windows[key]
	if !ok {
		return window{}
	}
	if !m.now().Before(w.expires) {
		delete(m.windows, key)
		return window{}
	}
	return w
}
