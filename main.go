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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/judyrop/inventory/config"
	"github.com/judyrop/inventory/logging"
	"github.com/judyrop/inventory/seed"
	"github.com/judyrop/inventory/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Command failed", logging.FieldError, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "inventory",
		Short: "Inventory dashboard API and data seeding",
		Long: `Inventory serves the dashboard REST API (products, users, expenses,
dashboard metrics) and reseeds the database from JSON snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file to load before reading the environment")

	root.AddCommand(newServeCmd(&envFile), newSeedCmd(&envFile))
	return root
}

func newServeCmd(envFile *string) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			if autoMigrate {
				cfg.AutoMigrate = true
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Create missing tables before serving")
	return cmd
}

func newSeedCmd(envFile *string) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Clear the database and load the JSON snapshots",
		Long: `Seed deletes every seeded table in dependency-safe order, then creates
rows from <dir>/<entity>.json files in dependency order. Missing files,
duplicate rows and blocked deletes are logged and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.SeedDataDir
			}
			open := func(ctx context.Context) (seedStore, error) {
				st, err := store.Open(ctx, store.FromConfig(cfg), logger)
				if err != nil {
					return nil, err
				}
				return gormSeedStore{st}, nil
			}
			return runSeed(cmd.Context(), open, seed.Options{Dir: dir}, logger)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Snapshot directory (default $SEED_DATA_DIR)")
	return cmd
}

// setup loads and validates configuration and installs the logger.
func setup(envFile string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level, _ = logging.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	logger := logging.New(logCfg)
	logging.SetDefault(logger)
	return cfg, logger, nil
}

// seedStore is the store handle a seed run borrows. runSeed releases it.
type seedStore interface {
	Registry() seed.Registry
	Close() error
}

type gormSeedStore struct {
	*store.Store
}

func (s gormSeedStore) Registry() seed.Registry {
	return seed.NewGormRegistry(s.DB())
}

// runSeed opens the store, runs the loader and closes the store exactly
// once, whether the run finished or failed.
func runSeed(ctx context.Context, open func(context.Context) (seedStore, error), opts seed.Options, logger *logging.Logger) error {
	st, err := open(ctx)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer closeStore(st, logger)

	start := time.Now()
	if err := seed.NewLoader(st.Registry(), opts, logger).Run(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	logger.Info("Seed completed", logging.FieldOperation, logging.OpSeed, logging.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// closeStore releases st, logging rather than returning a close failure.
func closeStore(st interface{ Close() error }, logger *logging.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("Error closing database", logging.FieldError, err)
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	st, err := store.Open(ctx, store.FromConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	if cfg.AutoMigrate {
		if err := store.AutoMigrate(ctx, st.DB()); err != nil {
			return err
		}
		logger.Info("Schema migrated", logging.FieldOperation, logging.OpMigrate)
	}

	opts := RouterOptions{Logger: logger}
	if cfg.AuthEnabled() {
		verifier, err := newOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return err
		}
		opts.WriteAuth = AuthMiddleware(verifier)
		logger.WithComponent(logging.ComponentAuth).Info("Bearer auth enabled for write routes", "issuer", cfg.OIDCIssuer)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        SetupRouter(st.DB(), opts),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server is running",
			logging.FieldOperation, logging.OpStartup,
			logging.FieldDriver, st.Driver(),
			"port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", logging.FieldOperation, logging.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
