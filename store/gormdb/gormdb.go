/*
Package gormdb provides a gorm-backed implementation of vacation.Store.

PURPOSE:
  Production storage on PostgreSQL. Rows that decide a mutation are read
  with SELECT ... FOR UPDATE, so concurrent requests for the same user
  serialize on their grants instead of on the whole database.

LOCKING:
  - FindGrants(ForUpdate) locks in ORDER BY expiry_date, id, the same order
    every writer uses, which keeps lock acquisition deadlock-free.
  - Each transaction sets lock_timeout; lock_not_available, deadlock and
    serialization failures map to generic.ErrLockTimeout (retryable).
  - Dialects without row locks (SQLite, used in tests) are serialized by a
    TxGate instead, with the same timeout semantics.

USAGE:
  db, err := gormdb.OpenPostgres(dsn, logger)
  store := gormdb.New(db, 5*time.Second)
  if err := store.Migrate(ctx); err != nil { ... }

SEE ALSO:
  - vacation/store.go: Interface definitions
  - store/sqlite: database/sql implementation
*/
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements vacation.Store on a *gorm.DB.
type Store struct {
	db          *gorm.DB
	lockTimeout time.Duration
	rowLocks    bool
	gate        *generic.TxGate
}

var _ vacation.Store = (*Store)(nil)

// New wraps db. lockTimeout bounds every lock wait; zero means
// generic.DefaultLockTimeout.
func New(db *gorm.DB, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = generic.DefaultLockTimeout
	}
	s := &Store{
		db:          db,
		lockTimeout: lockTimeout,
		rowLocks:    db.Dialector.Name() == "postgres",
	}
	if !s.rowLocks {
		s.gate = generic.NewTxGate(lockTimeout)
	}
	return s
}

// OpenPostgres connects to PostgreSQL with gorm's SQL log routed to logger at
// WARN (slow queries and errors only).
func OpenPostgres(dsn string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	gormLogger := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.Exec(`SET TIME ZONE 'UTC'`).Error; err != nil {
		return nil, fmt.Errorf("failed to set time zone: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// =============================================================================
// TRANSACTION SUPPORT
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Tx) error) error {
	if s.gate != nil {
		release, err := s.gate.Enter(ctx)
		if err != nil {
			return err
		}
		defer release()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.rowLocks {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(&txView{db: tx, rowLocks: s.rowLocks})
	})
	return mapError(err)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// PostgreSQL SQLSTATE codes treated as lock contention.
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return fmt.Errorf("%w: %s", generic.ErrLockTimeout, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
