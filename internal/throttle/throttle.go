package throttle

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned once a key exceeds its attempt budget.
	ErrRateLimited = errors.New("too many attempts")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("throttle backend unavailable")
)

// Config sizes the attempt budget.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	// Prefix namespaces keys in shared backends.
	Prefix string
}

// DefaultConfig allows five failures per fifteen minutes.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Window: 15 * time.Minute, Prefix: "throttle:"}
}

func (c Config) validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("throttle: MaxAttempts must be > 0")
	}
	if c.Window <= 0 {
		return errors.New("throttle: Window must be > 0")
	}
	return nil
}
