package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"
)

// ErrUnavailable is wrapped by backend errors caused by the underlying medium.
var ErrUnavailable = errors.New("storage unavailable")

const probeKey = "__storage_test__"

// Backend is a synchronous key/value store. Implementations may fail.
type Backend interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Guarded wraps a Backend so that no call ever fails or panics. When the
// probe at construction fails, every operation becomes a no-op.
type Guarded struct {
	backend   Backend
	available bool
	failures  atomic.Uint64
}

// Guard probes backend by writing and removing a marker key. A nil backend
// yields an unavailable Guarded.
func Guard(backend Backend) *Guarded {
	g := &Guarded{backend: backend}
	if backend == nil {
		return g
	}
	err := g.call(func() error {
		if err := backend.SetItem(probeKey, probeKey); err != nil {
			return err
		}
		return backend.RemoveItem(probeKey)
	})
	if err != nil {
		glog.Warningf("storage: backend unavailable, persistence disabled: %v", err)
		return g
	}
	g.available = true
	return g
}

// Available reports whether the probe succeeded.
func (g *Guarded) Available() bool {
	return g != nil && g.available
}

// Failures counts swallowed backend errors since construction.
func (g *Guarded) Failures() uint64 {
	if g == nil {
		return 0
	}
	return g.failures.Load()
}

func (g *Guarded) Get(key string) (string, bool) {
	if !g.Available() {
		return "", false
	}
	var (
		value string
		found bool
	)
	err := g.call(func() error {
		var err error
		value, found, err = g.backend.GetItem(key)
		return err
	})
	if err != nil {
		glog.Warningf("storage: get %q failed: %v", key, err)
		return "", false
	}
	return value, found
}

func (g *Guarded) Set(key, value string) {
	if !g.Available() {
		return
	}
	if err := g.call(func() error { return g.backend.SetItem(key, value) }); err != nil {
		glog.Warningf("storage: set %q failed: %v", key, err)
	}
}

func (g *Guarded) Remove(key string) {
	if !g.Available() {
		return
	}
	if err := g.call(func() error { return g.backend.RemoveItem(key) }); err != nil {
		glog.Warningf("storage: remove %q failed: %v", key, err)
	}
}

func (g *Guarded) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrUnavailable, r)
		}
		if err != nil {
			g.failures.Add(1)
		}
	}()
	return fn()
}
