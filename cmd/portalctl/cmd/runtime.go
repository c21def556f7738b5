package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/glog"
	"github.com/hwlegacy/portalauth"
	"github.com/hwlegacy/portalauth/identity/local"
	"github.com/hwlegacy/portalauth/internal/throttle"
	"github.com/hwlegacy/portalauth/jwt"
	"github.com/hwlegacy/portalauth/password"
	"github.com/hwlegacy/portalauth/roles"
	"github.com/hwlegacy/portalauth/storage"
	"github.com/redis/go-redis/v9"
)

const (
	signingKeyEnv  = "PORTALCTL_SIGNING_KEY"
	signingKeyFile = "signing.key"
	accessTTL      = 15 * time.Minute
)

// runtime is everything one command needs, torn down by close.
type runtime struct {
	engine   *portalauth.Engine
	provider *local.Provider
	roles    *roles.SQL
	nav      *terminalNavigator
	redis    redis.UniversalClient
	closers  []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// openRuntime wires storage, the local provider, the role database and the
// engine. startPath is the route the navigator reports before any redirect;
// empty means the configured login path.
func openRuntime(ctx context.Context, out io.Writer, startPath string) (*runtime, error) {
	rt := &runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.close()
		}
	}()

	dir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	backend, err := rt.openBackend(dir)
	if err != nil {
		return nil, err
	}
	guarded := storage.Guard(backend)
	if !guarded.Available() {
		glog.Warning("portalctl: durable storage unavailable, session will not survive this process")
	}

	key, err := loadSigningKey(dir)
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     accessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        "portalctl",
		Leeway:        5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	limiter, err := rt.openThrottle()
	if err != nil {
		return nil, err
	}
	rt.provider, err = local.New(local.Config{
		Tokens:      tokens,
		Passwords:   hasher,
		AutoConfirm: true,
		Storage:     guarded,
		Throttle:    limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}

	rt.roles, err = rt.openRoles(ctx, dir)
	if err != nil {
		return nil, err
	}

	cfg, err := portalauth.ConfigFromEnv(envPrefix)
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if startPath == "" {
		startPath = cfg.Redirect.LoginPath
	}
	rt.nav = newTerminalNavigator(out, startPath)
	b := portalauth.New().
		WithConfig(cfg).
		WithProvider(rt.provider).
		WithRoles(rt.roles).
		WithGuardedStorage(guarded).
		WithNavigator(rt.nav)
	if auditLog {
		b = b.WithAuditSink(portalauth.NewJSONWriterSink(os.Stderr))
	}
	rt.engine, err = b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.closers = append(rt.closers, rt.engine.Close)

	ok = true
	return rt, nil
}

func (r *runtime) openBackend(dir string) (storage.Backend, error) {
	addr := redisAddr
	if addr == "" {
		return storage.NewFile(filepath.Join(dir, "store"))
	}
	if addr == "embedded" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		r.closers = append(r.closers, mr.Close)
		addr = mr.Addr()
		glog.V(1).Infof("portalctl: embedded redis at %s", addr)
	}
	r.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	r.closers = append(r.closers, func() { _ = r.redis.Close() })
	return storage.NewRedis(r.redis, redisPrefix, 2*time.Second, 0), nil
}

// openThrottle shares sign-in budgets through Redis when it backs storage.
func (r *runtime) openThrottle() (local.Throttle, error) {
	cfg := throttle.DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.Prefix = redisPrefix + "signin:"
	if r.redis != nil {
		return throttle.NewRedis(r.redis, cfg)
	}
	return throttle.NewMemory(cfg, nil)
}

func (r *runtime) openRoles(ctx context.Context, dir string) (*roles.SQL, error) {
	dsn := rolesDSN
	if dsn == "" && rolesDriver == "sqlite3" {
		dsn = "file:" + filepath.Join(dir, "roles.db") + "?_busy_timeout=5000"
	}
	if dsn == "" {
		return nil, errors.New("--roles-dsn is required for " + rolesDriver)
	}
	db, err := roles.Open(rolesDriver, dsn)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() { _ = db.Close() })
	lookup, err := roles.NewSQL(db, roles.AdminTable)
	if err != nil {
		return nil, err
	}
	if err := lookup.CreateSchema(ctx); err != nil {
		return nil, fmt.Errorf("role schema: %w", err)
	}
	return lookup, nil
}

// loadSigningKey prefers the environment, then the key file, generating
// the file on first use.
func loadSigningKey(dir string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(signingKeyEnv)); v != "" {
		if len(v) < 32 {
			return nil, fmt.Errorf("%s must be at least 32 bytes", signingKeyEnv)
		}
		return []byte(v), nil
	}
	path := filepath.Join(dir, signingKeyFile)
	data, err := os.ReadFile(path)
	if err == nil {
		key, derr := hex.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil || len(key) < 32 {
			return nil, fmt.Errorf("signing key file %s is malformed", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	return key, nil
}

// terminalNavigator reports redirects on the command output instead of
// changing a browser location.
type terminalNavigator struct {
	mu      sync.Mutex
	out     io.Writer
	current string
}

func newTerminalNavigator(out io.Writer, start string) *terminalNavigator {
	return &terminalNavigator{out: out, current: start}
}

func (n *terminalNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *terminalNavigator) Navigate(path string) {
	n.mu.Lock()
	n.current = path
	n.mu.Unlock()
	fmt.Fprintf(n.out, "redirect: %s\n", path)
}
