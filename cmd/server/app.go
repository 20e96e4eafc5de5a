package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/vacation-engine/config"
	"github.com/warp/vacation-engine/directory"
	"github.com/warp/vacation-engine/factory"
	"github.com/warp/vacation-engine/store/gormdb"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/store/sqlite"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// WIRING - config -> store, directory, service
// =============================================================================

// backend is a store plus its lifecycle hooks.
type backend struct {
	vacation.Store
	migrate func(context.Context) error
	close   func() error
}

func (b *backend) Close() error { return b.close() }

func noopClose() error { return nil }

// openStore picks the store by db.driver. The sqlite store creates its
// schema on open; the gorm store needs Migrate.
func openStore(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	noMigrate := func(context.Context) error { return nil }

	switch cfg.DB.Driver {
	case config.DriverMemory:
		return &backend{Store: memory.New(cfg.DB.LockTimeout), migrate: noMigrate, close: noopClose}, nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.DB.DSN, cfg.DB.LockTimeout)
		if err != nil {
			return nil, err
		}
		return &backend{Store: s, migrate: noMigrate, close: s.Close}, nil

	case config.DriverPostgres:
		db, err := gormdb.OpenPostgres(cfg.DB.DSN, logger)
		if err != nil {
			return nil, err
		}
		s := gormdb.New(db, cfg.DB.LockTimeout)
		return &backend{Store: s, migrate: s.Migrate, close: s.Close}, nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
}

// buildService wires the directory (if configured) and time type overrides.
// Without a directory file every user id is accepted, nobody has approvers
// and there are no public holidays.
func buildService(cfg *config.Config, store vacation.Store, logger *slog.Logger) (*vacation.Service, error) {
	opts := []vacation.Option{vacation.WithLogger(logger)}

	if cfg.Directory.File != "" {
		dir, err := directory.Load(cfg.Directory.File)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			vacation.WithUsers(dir),
			vacation.WithHierarchy(dir),
			vacation.WithHolidays(dir),
		)
		logger.Info("directory loaded", "file", cfg.Directory.File, "users", len(dir.Users()))
	}

	overrides, err := cfg.TimeTypeOverrides()
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		opts = append(opts, vacation.WithTimeTypes(overrides))
	}
	return vacation.NewService(store, opts...), nil
}

// seedPolicies loads path through the policy factory. With onlyIfEmpty it
// does nothing when live policies already exist, so restarts do not
// duplicate them.
func seedPolicies(ctx context.Context, svc *vacation.Service, path string, onlyIfEmpty bool, logger *slog.Logger) (int, error) {
	if onlyIfEmpty {
		existing, err := svc.ListPolicies(ctx)
		if err != nil {
			return 0, err
		}
		if len(existing) > 0 {
			logger.Info("policies already present, skipping seed", "count", len(existing))
			return 0, nil
		}
	}

	f := factory.NewPolicyFactory()
	defs, err := f.LoadFile(path)
	if err != nil {
		return 0, err
	}
	created, err := f.Seed(ctx, svc, defs)
	if err != nil {
		return len(created), err
	}
	logger.Info("policies seeded", "file", path, "count", len(created))
	return len(created), nil
}
