/*
main.go - Application entry point

PURPOSE:
  Command-line front end of the vacation engine: runs the HTTP server,
  applies the database schema, and seeds policies from a file.

COMMANDS:
  serve    Start the HTTP API (default when no command is given)
  migrate  Create or update the schema and exit
  seed     Create the policies of a policies file and exit

CONFIGURATION:
  --config points at a YAML file (see package config). Every key can also
  be set through VACATION_* environment variables, and a few through flags:
    --port        http.port
    --db-driver   db.driver     memory | sqlite | postgres
    --db-dsn      db.dsn        file path for sqlite, URL for postgres

STARTUP SEQUENCE (serve):
  1. Load config, set up logging
  2. Open the store (and migrate for postgres)
  3. Load the directory file, build the service
  4. Seed policies.file into an empty store
  5. Start the HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  # In-memory, seeded from files
  ./server serve --config=./config.yaml

  # SQLite file
  VACATION_DB_DRIVER=sqlite VACATION_DB_DSN=./vacation.db ./server

  # Apply the postgres schema
  ./server migrate --db-driver=postgres --db-dsn="postgres://..."

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Keys and defaults
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/vacation-engine/api"
	"github.com/warp/vacation-engine/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func newRootCmd() *cobra.Command {
	var cfgFile string
	v := config.New()

	root := &cobra.Command{
		Use:           "server",
		Short:         "Vacation ledger and approval engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().Int("port", 8080, "HTTP server port")
	root.PersistentFlags().String("db-driver", config.DriverMemory, "store driver: memory | sqlite | postgres")
	root.PersistentFlags().String("db-dsn", "", "sqlite path or postgres URL")
	_ = v.BindPFlag("http.port", root.PersistentFlags().Lookup("port"))
	_ = v.BindPFlag("db.driver", root.PersistentFlags().Lookup("db-driver"))
	_ = v.BindPFlag("db.dsn", root.PersistentFlags().Lookup("db-dsn"))

	load := func() (*config.Config, error) {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
			}
		}
		return config.Decode(v)
	}

	serve := newServeCmd(load)
	root.AddCommand(serve, newMigrateCmd(load), newSeedCmd(load))
	root.RunE = serve.RunE
	return root
}

type loader func() (*config.Config, error)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := config.SetupLogger(cfg.Log)
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := config.SetupLogger(cfg.Log)

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema up to date", "driver", cfg.DB.Driver)
			return nil
		},
	}
}

func newSeedCmd(load loader) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create policies (and their assignments) from a policies file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := config.SetupLogger(cfg.Log)
			if file == "" {
				file = cfg.Policies.File
			}
			if file == "" {
				return errors.New("no policies file: pass --file or set policies.file")
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.migrate(cmd.Context()); err != nil {
				return err
			}

			svc, err := buildService(cfg, store, logger)
			if err != nil {
				return err
			}
			_, err = seedPolicies(cmd.Context(), svc, file, false, logger)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "policies file (defaults to policies.file)")
	return cmd
}

// =============================================================================
// SERVER
// =============================================================================

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.migrate(ctx); err != nil {
		return err
	}

	svc, err := buildService(cfg, store, logger)
	if err != nil {
		return err
	}
	if cfg.Policies.File != "" {
		if _, err := seedPolicies(ctx, svc, cfg.Policies.File, true, logger); err != nil {
			return err
		}
	}

	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.HTTP.CORSOrigins})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "driver", cfg.DB.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
