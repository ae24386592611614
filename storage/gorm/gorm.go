// Package gormstore provides a GORM implementation of the subsync.UserStore interface.
// It serves the SQL databases GORM has dialects for: PostgreSQL, MySQL and SQLite.
package gormstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// DefaultTable is the table used when none is configured
const DefaultTable = "users"

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// User is the GORM model of a stored user.
// Only the entitlement columns are written by reconciliation.
type User struct {
	ID                    string  `gorm:"primaryKey;size:36"`
	Email                 string  `gorm:"size:320;not null;uniqueIndex"`
	StripeCustomerID      *string `gorm:"size:255;index"`
	SubscriptionStatus    string  `gorm:"size:32;not null;default:inactive"`
	Plan                  string  `gorm:"size:64;not null;default:free"`
	Credits               int     `gorm:"not null;default:1000"`
	SubscriptionUpdatedAt *time.Time
	CreatedAt             time.Time
}

// BeforeCreate assigns a UUID to new records
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Record converts the model to a subsync.UserRecord
func (u *User) Record() subsync.UserRecord {
	rec := subsync.UserRecord{
		ID:                 u.ID,
		Email:              u.Email,
		SubscriptionStatus: subsync.SubscriptionStatus(u.SubscriptionStatus),
		Plan:               u.Plan,
		Credits:            u.Credits,
	}
	if u.StripeCustomerID != nil {
		rec.StripeCustomerID = *u.StripeCustomerID
	}
	if u.SubscriptionUpdatedAt != nil {
		rec.SubscriptionUpdatedAt = u.SubscriptionUpdatedAt.UTC()
	}
	return rec
}

// Storage implements subsync.UserStore using GORM
type Storage struct {
	db    *gorm.DB
	table string
}

// New wraps an open GORM connection. An empty table selects DefaultTable.
func New(db *gorm.DB, table string) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm connection is required")
	}
	if table == "" {
		table = DefaultTable
	}
	return &Storage{db: db, table: table}, nil
}

// Open connects to dsn with the named driver.
// MySQL connections report matched rather than changed rows, so re-applying
// identical fields still counts the user as matched.
func Open(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	case DriverMySQL:
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mysql DSN")
		}
		cfg.ClientFoundRows = true
		cfg.ParseTime = true
		dialector = mysql.New(mysql.Config{DSN: cfg.FormatDSN(), DefaultStringSize: 256})
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", log.LstdFlags), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the users table
func (s *Storage) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).AutoMigrate(&User{})
}

// Insert provisions a user record (tests and local development)
func (s *Storage) Insert(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).Table(s.table).Create(u).Error
}

// Get loads a user by id
func (s *Storage) Get(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Ping verifies the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpdateEntitlement implements subsync.UserStore
func (s *Storage) UpdateEntitlement(
	ctx context.Context, key subsync.LookupKey, match subsync.MatchMode, fields subsync.EntitlementFields,
) (int64, error) {
	where, err := whereClause(key, match)
	if err != nil {
		return 0, err
	}

	updatedAt := fields.SubscriptionUpdatedAt.UTC()
	values := map[string]any{
		"subscription_status":     string(fields.SubscriptionStatus),
		"plan":                    fields.Plan,
		"credits":                 fields.Credits,
		"subscription_updated_at": updatedAt,
	}
	if fields.StripeCustomerID != "" {
		values["stripe_customer_id"] = fields.StripeCustomerID
	}

	res := s.db.WithContext(ctx).Table(s.table).Where(where, key.Value).Updates(values)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update entitlement: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func whereClause(key subsync.LookupKey, match subsync.MatchMode) (string, error) {
	var column string
	switch key.Kind {
	case subsync.LookupEmail:
		column = "email"
	case subsync.LookupCustomerID:
		column = "stripe_customer_id"
	default:
		return "", fmt.Errorf("unsupported lookup kind %q", key.Kind)
	}

	switch match {
	case subsync.MatchExact:
		return column + " = ?", nil
	case subsync.MatchCaseInsensitive:
		return "lower(" + column + ") = lower(?)", nil
	default:
		return "", fmt.Errorf("unsupported match mode %q", match)
	}
}
