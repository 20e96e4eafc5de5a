package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/config"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const orgFile = `
users:
  - id: lead
    country: KR
  - id: alice
    country: KR
    manager: lead
`

const policiesFile = `
policies:
  - name: Annual
    vacation_type: ANNUAL
    grant_method: manual_grant
    amount: 15
    assign_to: [alice]
`

func TestOpenStore_Drivers(t *testing.T) {
	ctx := context.Background()

	mem, err := openStore(&config.Config{DB: config.DBConfig{Driver: config.DriverMemory, LockTimeout: time.Second}}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, mem.migrate(ctx))
	require.NoError(t, mem.Close())

	path := filepath.Join(t.TempDir(), "vacation.db")
	lite, err := openStore(&config.Config{DB: config.DBConfig{Driver: config.DriverSQLite, DSN: path, LockTimeout: time.Second}}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, lite.migrate(ctx))
	require.NoError(t, lite.Close())
	_, err = os.Stat(path)
	assert.NoError(t, err, "sqlite file created")

	_, err = openStore(&config.Config{DB: config.DBConfig{Driver: "oracle"}}, discardLogger())
	assert.Error(t, err)
}

func TestBuildService_WiresDirectoryAndTimeTypes(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DB:        config.DBConfig{Driver: config.DriverMemory, LockTimeout: time.Second},
		Directory: config.FileConfig{File: writeFile(t, dir, "org.yaml", orgFile)},
		TimeTypes: map[string]config.TimeTypeConfig{"hour_4": {Multiplier: "0.75"}},
	}
	store, err := openStore(cfg, discardLogger())
	require.NoError(t, err)

	svc, err := buildService(cfg, store, discardLogger())
	require.NoError(t, err)

	// Time type override merged into the defaults.
	assert.Equal(t, "0.75", svc.TimeTypes()[vacation.TimeHour4].Multiplier.String())
	assert.Equal(t, "1", svc.TimeTypes()[vacation.TimeDay].Multiplier.String())

	// Users outside the directory are unknown.
	_, err = svc.AssignPolicy(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	cfg.Directory.File = filepath.Join(dir, "missing.yaml")
	_, err = buildService(cfg, store, discardLogger())
	assert.Error(t, err)
}

func TestSeedPolicies_OnlyIfEmpty(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DB:        config.DBConfig{Driver: config.DriverMemory, LockTimeout: time.Second},
		Directory: config.FileConfig{File: writeFile(t, dir, "org.yaml", orgFile)},
	}
	store, err := openStore(cfg, discardLogger())
	require.NoError(t, err)
	svc, err := buildService(cfg, store, discardLogger())
	require.NoError(t, err)

	path := writeFile(t, dir, "policies.yaml", policiesFile)
	ctx := context.Background()

	n, err := seedPolicies(ctx, svc, path, true, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A restart does not duplicate policies.
	n, err = seedPolicies(ctx, svc, path, true, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	policies, err := svc.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1)

	// alice was assigned, so a manual grant goes through.
	_, err = svc.GrantManually(ctx, vacation.ManualGrantInput{
		UserID: "alice", PolicyID: policies[0].ID,
		GrantDate: generic.NewDate(2025, 1, 1), ExpiryDate: generic.NewDate(2025, 12, 31),
		Desc: "seeded",
	})
	assert.NoError(t, err)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "seed"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
