package roles

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Strategy selects how administrator membership is stored.
type Strategy int

const (
	// AdminTable treats a row in admin_users as membership.
	AdminTable Strategy = iota
	// RoleColumn treats users.role = 'admin' as membership.
	RoleColumn
)

const (
	RoleAdmin    = "admin"
	RoleInvestor = "investor"
)

type adminUser struct {
	bun.BaseModel `bun:"table:admin_users,alias:au"`

	UserID    string    `bun:"user_id,pk"`
	GrantedAt time.Time `bun:"granted_at,nullzero,notnull,default:current_timestamp"`
}

type userRole struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID   string `bun:"id,pk"`
	Role string `bun:"role,notnull"`
}

// SQL is a Lookup backed by a bun database.
type SQL struct {
	db       *bun.DB
	strategy Strategy
}

// Open connects to driver ("sqlite3" or "postgres") and wraps the handle
// with the matching bun dialect.
func Open(driver, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("roles: open %s: %w", driver, err)
	}
	switch driver {
	case "sqlite3":
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case "postgres":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		_ = sqldb.Close()
		return nil, fmt.Errorf("roles: unsupported driver %q", driver)
	}
}

func NewSQL(db *bun.DB, strategy Strategy) (*SQL, error) {
	if db == nil {
		return nil, fmt.Errorf("roles: bun db is required")
	}
	switch strategy {
	case AdminTable, RoleColumn:
	default:
		return nil, fmt.Errorf("roles: unknown strategy %d", strategy)
	}
	return &SQL{db: db, strategy: strategy}, nil
}

func (s *SQL) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var (
		ok  bool
		err error
	)
	switch s.strategy {
	case RoleColumn:
		ok, err = s.db.NewSelect().
			Model((*userRole)(nil)).
			Where("?TableAlias.id = ?", userID).
			Where("?TableAlias.role = ?", RoleAdmin).
			Exists(ctx)
	default:
		ok, err = s.db.NewSelect().
			Model((*adminUser)(nil)).
			Where("?TableAlias.user_id = ?", userID).
			Exists(ctx)
	}
	if err != nil {
		return false, fmt.Errorf("roles: lookup %s: %w", userID, err)
	}
	return ok, nil
}

// CreateSchema creates the tables used by both strategies.
func (s *SQL) CreateSchema(ctx context.Context) error {
	for _, model := range []any{(*adminUser)(nil), (*userRole)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("roles: create schema: %w", err)
		}
	}
	return nil
}

// Grant adds userID to admin_users. Granting twice is a no-op.
func (s *SQL) Grant(ctx context.Context, userID string) error {
	_, err := s.db.NewInsert().
		Model(&adminUser{UserID: userID, GrantedAt: time.Now().UTC()}).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roles: grant %s: %w", userID, err)
	}
	return nil
}

func (s *SQL) Revoke(ctx context.Context, userID string) error {
	_, err := s.db.NewDelete().
		Model((*adminUser)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roles: revoke %s: %w", userID, err)
	}
	return nil
}

// SetRole upserts the role column for userID.
func (s *SQL) SetRole(ctx context.Context, userID, role string) error {
	_, err := s.db.NewInsert().
		Model(&userRole{ID: userID, Role: role}).
		On("CONFLICT (id) DO UPDATE").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("roles: set role %s: %w", userID, err)
	}
	return nil
}
