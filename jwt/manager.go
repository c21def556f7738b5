package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrConfig wraps every NewManager validation failure.
	ErrConfig = errors.New("jwt: invalid configuration")
	// ErrUnknownKey is returned for a token whose kid has no verification key.
	ErrUnknownKey = errors.New("jwt: unknown key id")
	// ErrIssuedInFuture is returned for an iat beyond MaxFutureIAT.
	ErrIssuedInFuture = errors.New("jwt: token issued in the future")
)

// Config controls token issuance and verification.
//
// HS256 signs and verifies with PrivateKey (at least 32 bytes). Ed25519
// signs with PrivateKey and verifies with PublicKey, or with VerifyKeys
// selected by the token's kid when that map is set. Keys are raw or PEM.
// Now overrides the clock; nil uses time.Now.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// AccessClaims is the access-token payload.
type AccessClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	SID   string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and parses access tokens. Keys are decoded once by
// NewManager. Safe for concurrent use.
type Manager struct {
	cfg     Config
	method  jwt.SigningMethod
	signKey any            // nil for a verify-only manager
	verify  any            // used when byKID is empty
	byKID   map[string]any // kid -> verification key
	parser  *jwt.Parser
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, configErr("AccessTTL must be > 0")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, configErr("Leeway must be within [0, 2m]")
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, configErr("MaxFutureIAT must be within [0, 24h]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{cfg: cfg, byKID: make(map[string]any, len(cfg.VerifyKeys))}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, configErr("hs256 needs a key of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey, m.verify = cfg.PrivateKey, cfg.PrivateKey
		for kid, key := range cfg.VerifyKeys {
			m.byKID[kid] = key
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			if m.signKey, err = edPrivate(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.verify, err = edPublic(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		for kid, key := range cfg.VerifyKeys {
			if m.byKID[kid], err = edPublic(key); err != nil {
				return nil, fmt.Errorf("kid %q: %w", kid, err)
			}
		}
		if m.verify == nil && len(m.byKID) == 0 {
			return nil, configErr("ed25519 needs PublicKey or VerifyKeys")
		}
	default:
		return nil, configErr("unsupported signing method %q", cfg.SigningMethod)
	}
	if _, empty := m.byKID[""]; empty {
		return nil, configErr("VerifyKeys contains an empty kid")
	}
	if cfg.KeyID != "" && len(m.byKID) > 0 {
		if _, ok := m.byKID[cfg.KeyID]; !ok {
			return nil, configErr("KeyID %q is not in VerifyKeys", cfg.KeyID)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return m.cfg.Now() }),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

// AccessTTL returns the configured token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.cfg.AccessTTL
}

// CreateAccess signs a token for uid/email bound to session sid. The
// returned expiry is truncated to the second, matching the exp claim.
func (m *Manager) CreateAccess(uid, email, sid string) (string, time.Time, error) {
	if m.signKey == nil {
		return "", time.Time{}, errors.New("jwt: manager has no signing key")
	}
	now := m.cfg.Now()
	exp := now.Add(m.cfg.AccessTTL)

	claims := AccessClaims{
		UID:   uid,
		Email: email,
		SID:   sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}
	token := jwt.NewWithClaims(m.method, claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}
	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, exp.Truncate(time.Second), nil
}

// ParseAccess verifies raw and returns its claims. Use IsExpired to tell
// an expired token from an invalid one.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := m.parser.ParseWithClaims(raw, claims, m.keyFor); err != nil {
		return nil, err
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(m.cfg.Now().Add(m.cfg.MaxFutureIAT)) {
		return nil, ErrIssuedInFuture
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if len(m.byKID) > 0 {
		key, ok := m.byKID[kid]
		if !ok {
			return nil, ErrUnknownKey
		}
		return key, nil
	}
	if m.cfg.KeyID != "" && kid != m.cfg.KeyID {
		return nil, ErrUnknownKey
	}
	if m.verify == nil {
		return nil, ErrUnknownKey
	}
	return m.verify, nil
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func edPrivate(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, configErr("ed25519 private key: %v", err)
	}
	k, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, configErr("ed25519 private key has type %T", parsed)
	}
	return k, nil
}

func edPublic(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, configErr("ed25519 public key: %v", err)
	}
	k, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, configErr("ed25519 public key has type %T", parsed)
	}
	return k, nil
}
