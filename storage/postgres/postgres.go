// Package postgres provides a PostgreSQL implementation of the subsync.UserStore interface.
// Each entitlement change is a single UPDATE statement, so it is atomic without
// an explicit transaction.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultTable is the users table created by the bundled migrations
const DefaultTable = "users"

// Storage implements subsync.UserStore using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Table is the users table name. Default: users
	Table string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Table:           DefaultTable,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		// Parse errors may echo the DSN password
		return nil, fmt.Errorf("failed to parse connection string")
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpdateEntitlement implements subsync.UserStore
func (s *Storage) UpdateEntitlement(
	ctx context.Context, key subsync.LookupKey, match subsync.MatchMode, fields subsync.EntitlementFields,
) (int64, error) {
	query, args, err := buildUpdate(s.config.Table, key, match, fields)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update entitlement: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Migrate runs a goose command ("up", "down", "status", ...) with the bundled migrations
func (s *Storage) Migrate(ctx context.Context, command string, args ...string) error {
	if s.config.Table != DefaultTable {
		return fmt.Errorf("bundled migrations manage the %q table, storage is configured for %q", DefaultTable, s.config.Table)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, "migrations", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

func lookupColumn(kind subsync.LookupKind) (string, error) {
	switch kind {
	case subsync.LookupEmail:
		return "email", nil
	case subsync.LookupCustomerID:
		return "stripe_customer_id", nil
	default:
		return "", fmt.Errorf("unsupported lookup kind %q", kind)
	}
}

// buildUpdate renders the single UPDATE statement for a mutation
func buildUpdate(
	table string, key subsync.LookupKey, match subsync.MatchMode, fields subsync.EntitlementFields,
) (string, []any, error) {
	column, err := lookupColumn(key.Kind)
	if err != nil {
		return "", nil, err
	}

	sets := []string{
		"subscription_status = $1",
		"plan = $2",
		"credits = $3",
		"subscription_updated_at = $4",
	}
	args := []any{
		string(fields.SubscriptionStatus),
		fields.Plan,
		fields.Credits,
		fields.SubscriptionUpdatedAt.UTC(),
	}
	if fields.StripeCustomerID != "" {
		args = append(args, fields.StripeCustomerID)
		sets = append(sets, fmt.Sprintf("stripe_customer_id = $%d", len(args)))
	}

	args = append(args, key.Value)
	var where string
	switch match {
	case subsync.MatchExact:
		where = fmt.Sprintf("%s = $%d", column, len(args))
	case subsync.MatchCaseInsensitive:
		where = fmt.Sprintf("lower(%s) = lower($%d)", column, len(args))
	default:
		return "", nil, fmt.Errorf("unsupported match mode %q", match)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "), where)
	return query, args, nil
}
