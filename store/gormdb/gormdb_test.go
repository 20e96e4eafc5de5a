package gormdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/store/gormdb"
	"github.com/warp/vacation-engine/store/storetest"
	"github.com/warp/vacation-engine/vacation"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestStore opens an in-memory SQLite database through gorm. Row locks are
// not available there, so the store falls back to its TxGate.
func newTestStore(t *testing.T, lockTimeout time.Duration) *gormdb.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := gormdb.New(db, lockTimeout)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGormStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) vacation.Store {
		return newTestStore(t, time.Second)
	})
}

func TestGormStore_MigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t, time.Second)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestGormStore_LockTimeoutWithoutRowLocks(t *testing.T) {
	store := newTestStore(t, 20*time.Millisecond)
	ctx := context.Background()

	// GIVEN: a transaction that holds the store
	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.WithTx(ctx, func(vacation.Tx) error {
			close(entered)
			<-done
			return nil
		})
	}()
	<-entered

	// WHEN: a second transaction starts
	err := store.WithTx(ctx, func(vacation.Tx) error { return nil })
	close(done)

	// THEN: it gives up with a retryable error
	assert.ErrorIs(t, err, generic.ErrLockTimeout)
}

func TestGormStore_DuplicateLiveAssignment(t *testing.T) {
	store := newTestStore(t, time.Second)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx vacation.Tx) error {
		p := &vacation.Policy{
			Name: "Annual", VacationType: "ANNUAL", GrantMethod: vacation.GrantManual,
			FixedAmount:   generic.MustParseAmount("15", generic.UnitDays),
			EffectiveType: vacation.EffectiveImmediate, ExpirationType: vacation.ExpireNever,
		}
		if err := tx.SavePolicy(ctx, p); err != nil {
			return err
		}
		if err := tx.SaveAssignment(ctx, &vacation.Assignment{UserID: "alice", PolicyID: p.ID}); err != nil {
			return err
		}
		return tx.SaveAssignment(ctx, &vacation.Assignment{UserID: "alice", PolicyID: p.ID})
	})

	assert.ErrorIs(t, err, generic.ErrBusinessRule)
}
