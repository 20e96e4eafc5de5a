/*
Package sqlite provides a SQLite-backed implementation of vacation.Store.

PURPOSE:
  Persists policies, assignments, grants, usages, deductions and approvals
  with database/sql and go-sqlite3. In production, the same schema runs on
  PostgreSQL through store/gormdb - only the locking dialect differs.

KEY TABLES:
  policies:     Grant rules (soft-deleted via deleted_at)
  assignments:  User-to-policy links (one live row per pair)
  grants:       Credits; remain_time is the live balance
  usages:       Debits (soft-deleted on cancel)
  deductions:   Usage-to-grant allocation lines
  approvals:    Approval chain, UNIQUE(grant_id, approval_order)

CONCURRENCY:
  Transactions are opened with _txlock=immediate, so SQLite takes the write
  lock at BEGIN and every transaction is serializable. That makes row locks
  (forUpdate) implicit. A writer waits at most the lock timeout, either in
  the TxGate (same process) or in SQLite's busy handler (other processes);
  both surface as generic.ErrLockTimeout.

ENCODING:
  Amounts are stored as decimal TEXT (never REAL). Grant validity dates are
  "2006-01-02" so that text comparison orders them; timestamps are RFC3339.

USAGE:
  store, err := sqlite.New("./data/vacation.db", 5*time.Second)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := vacation.NewService(store)

SEE ALSO:
  - vacation/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
  - store/gormdb: PostgreSQL implementation with row locks
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// Store implements vacation.Store using SQLite.
type Store struct {
	db   *sql.DB
	gate *generic.TxGate
}

var _ vacation.Store = (*Store)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database. lockTimeout bounds how long a
// transaction waits for the write lock; zero means generic.DefaultLockTimeout.
func New(dbPath string, lockTimeout time.Duration) (*Store, error) {
	if lockTimeout <= 0 {
		lockTimeout = generic.DefaultLockTimeout
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_txlock=immediate&_busy_timeout=%d",
		dbPath, lockTimeout.Milliseconds())
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, gate: generic.NewTxGate(lockTimeout)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		vacation_type TEXT NOT NULL,
		grant_method TEXT NOT NULL,
		fixed_amount TEXT NOT NULL,
		is_flexible_grant BOOLEAN NOT NULL DEFAULT FALSE,
		approval_required_count INTEGER,
		effective_type TEXT NOT NULL,
		expiration_type TEXT NOT NULL,
		repeat_unit TEXT,
		repeat_month INTEGER,
		repeat_day INTEGER,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		policy_id INTEGER NOT NULL REFERENCES policies(id),
		assigned_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- One live assignment per (user, policy)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_live
		ON assignments(user_id, policy_id) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_assignments_policy
		ON assignments(policy_id);

	CREATE TABLE IF NOT EXISTS grants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		policy_id INTEGER NOT NULL REFERENCES policies(id),
		vacation_type TEXT NOT NULL,
		grant_time TEXT NOT NULL,
		remain_time TEXT NOT NULL,
		grant_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		request_start TEXT,
		request_end TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- FIFO allocation scan (hot path)
	CREATE INDEX IF NOT EXISTS idx_grants_user_type_expiry
		ON grants(user_id, vacation_type, status, expiry_date, id);
	CREATE INDEX IF NOT EXISTS idx_grants_policy
		ON grants(policy_id);

	CREATE TABLE IF NOT EXISTS usages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		vacation_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		time_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		used_time TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_usages_user
		ON usages(user_id);

	CREATE TABLE IF NOT EXISTS deductions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		usage_id INTEGER NOT NULL REFERENCES usages(id),
		grant_id INTEGER NOT NULL REFERENCES grants(id),
		deducted_time TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deductions_usage
		ON deductions(usage_id);

	CREATE TABLE IF NOT EXISTS approvals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		grant_id INTEGER NOT NULL REFERENCES grants(id),
		approver_id TEXT NOT NULL,
		approval_order INTEGER NOT NULL,
		status TEXT NOT NULL,
		approval_date TEXT,
		rejection_reason TEXT NOT NULL DEFAULT '',
		UNIQUE(grant_id, approval_order)
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_approver_status
		ON approvals(approver_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION SUPPORT
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Tx) error) error {
	release, err := s.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin: %w", err))
	}

	if err := fn(&txView{tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// mapError turns driver errors into domain errors. Busy/locked means another
// writer held the lock past busy_timeout.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", generic.ErrLockTimeout, err)
		}
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

const timestampLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timestampLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timestampLayout, s) }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDays(s string) (generic.Amount, error) {
	return generic.ParseAmount(s, generic.UnitDays)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
